package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"testing"
	"time"

	apperrors "github.com/remitwise/obligations/internal/platform/errors"
	"github.com/remitwise/obligations/internal/platform/identity"
)

type fakeStore struct {
	obligations map[uint64]Obligation
	schedules   map[uint64]Schedule
	archived    map[uint64]Obligation
	nextID      uint64
	nextSchedID uint64

	admin    string
	paused   bool
	opPaused map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		obligations: make(map[uint64]Obligation),
		schedules:   make(map[uint64]Schedule),
		archived:    make(map[uint64]Obligation),
		opPaused:    make(map[string]bool),
	}
}

func (f *fakeStore) PutObligation(_ context.Context, obligation Obligation) (uint64, error) {
	f.nextID++
	obligation.ID = f.nextID
	f.obligations[obligation.ID] = obligation
	return obligation.ID, nil
}

func (f *fakeStore) GetObligation(_ context.Context, id uint64) (Obligation, error) {
	obligation, ok := f.obligations[id]
	if !ok {
		return Obligation{}, ErrNotFound
	}
	return obligation, nil
}

func (f *fakeStore) PayObligation(ctx context.Context, write PayWrite) (uint64, error) {
	return f.applyPay(ctx, write)
}

func (f *fakeStore) PayObligations(ctx context.Context, writes []PayWrite) error {
	for _, write := range writes {
		if _, err := f.applyPay(ctx, write); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) applyPay(_ context.Context, write PayWrite) (uint64, error) {
	obligation, ok := f.obligations[write.ObligationID]
	if !ok {
		return 0, ErrNotFound
	}
	paidAt := write.PaidAt
	obligation.Paid = true
	obligation.PaidAt = &paidAt
	f.obligations[write.ObligationID] = obligation

	if write.Successor == nil {
		return 0, nil
	}
	f.nextID++
	successor := *write.Successor
	successor.ID = f.nextID
	f.obligations[successor.ID] = successor
	return successor.ID, nil
}

func (f *fakeStore) CancelObligation(_ context.Context, id uint64, scheduleID uint64, _ time.Time) error {
	if _, ok := f.obligations[id]; !ok {
		return ErrNotFound
	}
	delete(f.obligations, id)
	if scheduleID != 0 {
		schedule := f.schedules[scheduleID]
		schedule.Active = false
		f.schedules[scheduleID] = schedule
	}
	return nil
}

func (f *fakeStore) ListUnpaid(_ context.Context, owner string, pageSize int, pageToken string) (ObligationPage, error) {
	return f.page(owner, pageSize, pageToken, func(o Obligation) bool {
		return !o.Paid
	})
}

func (f *fakeStore) ListOverdue(_ context.Context, owner string, now time.Time, pageSize int, pageToken string) (ObligationPage, error) {
	return f.page(owner, pageSize, pageToken, func(o Obligation) bool {
		return !o.Paid && o.DueDate.Before(now)
	})
}

func (f *fakeStore) page(owner string, pageSize int, pageToken string, match func(Obligation) bool) (ObligationPage, error) {
	var afterID uint64
	if pageToken != "" {
		parsed, err := strconv.ParseUint(pageToken, 10, 64)
		if err != nil {
			return ObligationPage{}, fmt.Errorf("bad token: %w", err)
		}
		afterID = parsed
	}

	var matched []Obligation
	for _, obligation := range f.obligations {
		if obligation.Owner == owner && obligation.ID > afterID && match(obligation) {
			matched = append(matched, obligation)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	page := ObligationPage{}
	if len(matched) > pageSize {
		page.Obligations = matched[:pageSize]
		page.NextPageToken = strconv.FormatUint(matched[pageSize-1].ID, 10)
	} else {
		page.Obligations = matched
	}
	return page, nil
}

func (f *fakeStore) ListUnpaidAmounts(_ context.Context, owner string) ([]int64, error) {
	var amounts []int64
	for _, obligation := range f.obligations {
		if obligation.Owner == owner && !obligation.Paid {
			amounts = append(amounts, obligation.Amount)
		}
	}
	return amounts, nil
}

func (f *fakeStore) ListAllObligations(_ context.Context) ([]Obligation, error) {
	all := make([]Obligation, 0, len(f.obligations))
	for _, obligation := range f.obligations {
		all = append(all, obligation)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (f *fakeStore) PutSchedule(_ context.Context, schedule Schedule) (uint64, error) {
	f.nextSchedID++
	schedule.ID = f.nextSchedID
	f.schedules[schedule.ID] = schedule
	return schedule.ID, nil
}

func (f *fakeStore) GetSchedule(_ context.Context, id uint64) (Schedule, error) {
	schedule, ok := f.schedules[id]
	if !ok {
		return Schedule{}, ErrNotFound
	}
	return schedule, nil
}

func (f *fakeStore) UpdateSchedule(_ context.Context, schedule Schedule) error {
	if _, ok := f.schedules[schedule.ID]; !ok {
		return ErrNotFound
	}
	f.schedules[schedule.ID] = schedule
	return nil
}

func (f *fakeStore) ListSchedulesByOwner(_ context.Context, owner string) ([]Schedule, error) {
	var matched []Schedule
	for _, schedule := range f.schedules {
		if schedule.Owner == owner {
			matched = append(matched, schedule)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

func (f *fakeStore) ListDueSchedules(_ context.Context, now time.Time) ([]Schedule, error) {
	var due []Schedule
	for _, schedule := range f.schedules {
		if schedule.Active && !schedule.NextDue.After(now) {
			due = append(due, schedule)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (f *fakeStore) ActiveScheduleForObligation(_ context.Context, obligationID uint64) (Schedule, error) {
	for _, schedule := range f.schedules {
		if schedule.Active && schedule.ObligationID == obligationID {
			return schedule, nil
		}
	}
	return Schedule{}, ErrNotFound
}

func (f *fakeStore) ApplyScheduleExecution(ctx context.Context, schedule Schedule, pay *PayWrite) error {
	if pay != nil {
		successorID, err := f.applyPay(ctx, *pay)
		if err != nil {
			return err
		}
		if pay.Successor != nil {
			schedule.ObligationID = successorID
		}
	}
	return f.UpdateSchedule(ctx, schedule)
}

func (f *fakeStore) ArchivePaidObligations(_ context.Context, owner string, before time.Time, _ time.Time) (uint32, error) {
	var count uint32
	for id, obligation := range f.obligations {
		if obligation.Owner == owner && obligation.Paid && obligation.PaidAt != nil && obligation.PaidAt.Before(before) {
			f.archived[id] = obligation
			delete(f.obligations, id)
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) GetArchivedObligation(_ context.Context, id uint64) (Obligation, error) {
	obligation, ok := f.archived[id]
	if !ok {
		return Obligation{}, ErrNotFound
	}
	return obligation, nil
}

func (f *fakeStore) Admin(_ context.Context) (string, error) { return f.admin, nil }

func (f *fakeStore) SetAdmin(_ context.Context, admin string) error {
	f.admin = admin
	return nil
}

func (f *fakeStore) Paused(_ context.Context) (bool, error) { return f.paused, nil }

func (f *fakeStore) SetPaused(_ context.Context, paused bool) error {
	f.paused = paused
	return nil
}

func (f *fakeStore) OperationPaused(_ context.Context, op string) (bool, error) {
	return f.opPaused[op], nil
}

func (f *fakeStore) SetOperationPaused(_ context.Context, op string, paused bool) error {
	f.opPaused[op] = paused
	return nil
}

type recordingAudit struct {
	events []AuditEvent
}

func (r *recordingAudit) Record(_ context.Context, event AuditEvent) {
	r.events = append(r.events, event)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestService(store Store, at time.Time) *Service {
	return NewService(store, identity.AllowAll{}, &recordingAudit{}, fixedClock(at))
}

func TestCreateValidatesInput(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Unix(1_000, 0).UTC()
	service := newTestService(store, now)
	ctx := context.Background()

	_, err := service.Create(ctx, CreateInput{Owner: "GALPHA", Amount: 0, DueDate: now.Add(time.Hour)})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	_, err = service.Create(ctx, CreateInput{Owner: "GALPHA", Amount: -5, DueDate: now.Add(time.Hour)})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for negative, got %v", err)
	}

	_, err = service.Create(ctx, CreateInput{Owner: "GALPHA", Amount: 100, Recurring: true, FrequencyDays: 0})
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected invalid frequency, got %v", err)
	}

	obligation, err := service.Create(ctx, CreateInput{
		Owner:         "GALPHA",
		Description:   "rent",
		Amount:        1200,
		Currency:      "USD",
		DueDate:       now.Add(24 * time.Hour),
		Recurring:     true,
		FrequencyDays: 30,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if obligation.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if obligation.Paid || obligation.PaidAt != nil {
		t.Fatal("expected new obligation to be unpaid")
	}
}

func TestPayAnchorsSuccessorOnOriginalDueDate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	dueDate := time.Unix(1_000_000, 0).UTC()
	paidAt := time.Unix(1_000_500, 0).UTC()
	service := newTestService(store, paidAt)
	ctx := context.Background()

	id, err := store.PutObligation(ctx, Obligation{
		Owner:         "GALPHA",
		Amount:        500,
		DueDate:       dueDate,
		Recurring:     true,
		FrequencyDays: 30,
	})
	if err != nil {
		t.Fatalf("seed obligation: %v", err)
	}

	result, err := service.Pay(ctx, "GALPHA", id)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if !result.Paid.Paid || result.Paid.PaidAt == nil || !result.Paid.PaidAt.Equal(paidAt) {
		t.Fatal("expected obligation marked paid at the payment time")
	}

	wantDue := time.Unix(3_592_000, 0).UTC()
	if result.Successor.ID == 0 {
		t.Fatal("expected successor for recurring obligation")
	}
	if !result.Successor.DueDate.Equal(wantDue) {
		t.Fatalf("expected successor due at %v, got %v", wantDue, result.Successor.DueDate)
	}
	if result.Successor.Paid {
		t.Fatal("expected successor to start unpaid")
	}

	stored, err := service.Get(ctx, result.Successor.ID)
	if err != nil {
		t.Fatalf("get successor: %v", err)
	}
	if !stored.DueDate.Equal(wantDue) {
		t.Fatalf("expected stored successor due at %v, got %v", wantDue, stored.DueDate)
	}
}

func TestPayRejectsWrongCallerAndRepeats(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Unix(10_000, 0).UTC()
	service := newTestService(store, now)
	ctx := context.Background()

	id, err := store.PutObligation(ctx, Obligation{Owner: "GALPHA", Amount: 100, DueDate: now})
	if err != nil {
		t.Fatalf("seed obligation: %v", err)
	}

	if _, err := service.Pay(ctx, "GALPHA", 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.Pay(ctx, "GBETA", id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := service.Pay(ctx, "GALPHA", id); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := service.Pay(ctx, "GALPHA", id); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected already paid, got %v", err)
	}
}

func TestCancelIsFinal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Unix(10_000, 0).UTC()
	service := newTestService(store, now)
	ctx := context.Background()

	id, err := store.PutObligation(ctx, Obligation{Owner: "GALPHA", Amount: 100, DueDate: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("seed obligation: %v", err)
	}
	schedID, err := store.PutSchedule(ctx, Schedule{
		Owner:        "GALPHA",
		ObligationID: id,
		NextDue:      now.Add(time.Hour),
		Interval:     time.Hour,
		Recurring:    true,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed schedule: %v", err)
	}

	if err := service.Cancel(ctx, "GBETA", id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := service.Cancel(ctx, "GALPHA", id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := service.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after cancel, got %v", err)
	}
	if _, err := service.Pay(ctx, "GALPHA", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected pay after cancel to fail not found, got %v", err)
	}

	schedule, err := service.GetSchedule(ctx, schedID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if schedule.Active {
		t.Fatal("expected linked schedule deactivated by cancel")
	}
}

func TestBatchPayIsAllOrNothing(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Unix(50_000, 0).UTC()
	service := newTestService(store, now)
	ctx := context.Background()

	var ids []uint64
	for i := 0; i < 3; i++ {
		id, err := store.PutObligation(ctx, Obligation{Owner: "GALPHA", Amount: 10, DueDate: now})
		if err != nil {
			t.Fatalf("seed obligation: %v", err)
		}
		ids = append(ids, id)
	}

	if _, err := service.BatchPay(ctx, "GALPHA", append(ids, 9999)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found to abort batch, got %v", err)
	}
	for _, id := range ids {
		obligation, err := service.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if obligation.Paid {
			t.Fatal("expected aborted batch to leave no partial state")
		}
	}

	_, err := service.BatchPay(ctx, "GALPHA", []uint64{ids[0], ids[0]})
	if !errors.Is(err, ErrDuplicateBatchID) || !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected duplicate id to abort with the already-paid code, got %v", err)
	}
	var dup *apperrors.Error
	if !errors.As(err, &dup) || dup.Metadata["Reason"] != "duplicate_id" {
		t.Fatalf("expected duplicate reason metadata, got %v", err)
	}
	if obligation, err := service.Get(ctx, ids[0]); err != nil || obligation.Paid {
		t.Fatalf("expected duplicate abort before any mutation, got paid=%v err=%v", obligation.Paid, err)
	}

	tooMany := make([]uint64, maxBatchSize+1)
	if _, err := service.BatchPay(ctx, "GALPHA", tooMany); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected batch too large, got %v", err)
	}

	count, err := service.BatchPay(ctx, "GALPHA", ids)
	if err != nil {
		t.Fatalf("batch pay: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 paid, got %d", count)
	}
	for _, id := range ids {
		obligation, err := service.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !obligation.Paid {
			t.Fatal("expected every batch member paid")
		}
	}
}

func TestTotalUnpaidIsolatesOwnersAndDetectsOverflow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Unix(70_000, 0).UTC()
	service := newTestService(store, now)
	ctx := context.Background()

	seed := func(owner string, amount int64) uint64 {
		id, err := store.PutObligation(ctx, Obligation{Owner: owner, Amount: amount, DueDate: now})
		if err != nil {
			t.Fatalf("seed obligation: %v", err)
		}
		return id
	}

	first := seed("GALPHA", 100)
	seed("GALPHA", 250)
	seed("GBETA", 999)

	total, err := service.TotalUnpaid(ctx, "GALPHA")
	if err != nil {
		t.Fatalf("total unpaid: %v", err)
	}
	if total != 350 {
		t.Fatalf("expected total 350, got %d", total)
	}

	if _, err := service.Pay(ctx, "GALPHA", first); err != nil {
		t.Fatalf("pay: %v", err)
	}
	total, err = service.TotalUnpaid(ctx, "GALPHA")
	if err != nil {
		t.Fatalf("total unpaid after pay: %v", err)
	}
	if total != 250 {
		t.Fatalf("expected total 250 after paying 100, got %d", total)
	}

	seed("GGAMMA", math.MaxInt64)
	seed("GGAMMA", 1)
	if _, err := service.TotalUnpaid(ctx, "GGAMMA"); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected arithmetic overflow, got %v", err)
	}
}

func TestListOverdueIsStrictAtBoundary(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	due := time.Unix(100_000, 0).UTC()
	ctx := context.Background()

	if _, err := store.PutObligation(ctx, Obligation{Owner: "GALPHA", Amount: 10, DueDate: due}); err != nil {
		t.Fatalf("seed obligation: %v", err)
	}

	atDue := newTestService(store, due)
	page, err := atDue.ListOverdue(ctx, ListInput{Owner: "GALPHA"})
	if err != nil {
		t.Fatalf("list overdue at due: %v", err)
	}
	if len(page.Obligations) != 0 {
		t.Fatal("expected obligation not overdue at exactly its due time")
	}

	pastDue := newTestService(store, due.Add(time.Second))
	page, err = pastDue.ListOverdue(ctx, ListInput{Owner: "GALPHA"})
	if err != nil {
		t.Fatalf("list overdue past due: %v", err)
	}
	if len(page.Obligations) != 1 {
		t.Fatalf("expected one overdue obligation, got %d", len(page.Obligations))
	}
}

func TestListAllRequiresAdmin(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Unix(100_000, 0).UTC()
	service := newTestService(store, now)
	ctx := context.Background()

	if _, err := store.PutObligation(ctx, Obligation{Owner: "GALPHA", Amount: 10, DueDate: now}); err != nil {
		t.Fatalf("seed obligation: %v", err)
	}

	if _, err := service.ListAll(ctx, "GALPHA"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized before admin is set, got %v", err)
	}

	if err := service.SetAdmin(ctx, "GADMIN", "GADMIN"); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if _, err := service.ListAll(ctx, "GALPHA"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected data owner to stay unauthorized, got %v", err)
	}

	all, err := service.ListAll(ctx, "GADMIN")
	if err != nil {
		t.Fatalf("list all as admin: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(all))
	}
}

func TestSetAdminFirstSelfThenOnlyAdmin(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	service := newTestService(store, time.Unix(100_000, 0).UTC())
	ctx := context.Background()

	if err := service.SetAdmin(ctx, "GALPHA", "GOTHER"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected first assignment to require self-claim, got %v", err)
	}
	if err := service.SetAdmin(ctx, "GADMIN", "GADMIN"); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if err := service.SetAdmin(ctx, "GALPHA", "GALPHA"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected non-admin reassignment to fail, got %v", err)
	}
	if err := service.SetAdmin(ctx, "GADMIN", "GNEXT"); err != nil {
		t.Fatalf("admin reassignment: %v", err)
	}

	admin, err := store.Admin(ctx)
	if err != nil {
		t.Fatalf("read admin: %v", err)
	}
	if admin != "GNEXT" {
		t.Fatalf("expected admin GNEXT, got %q", admin)
	}
}

func TestPauseBlocksMutationsNotReads(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Unix(100_000, 0).UTC()
	service := newTestService(store, now)
	ctx := context.Background()

	id, err := store.PutObligation(ctx, Obligation{Owner: "GALPHA", Amount: 10, DueDate: now})
	if err != nil {
		t.Fatalf("seed obligation: %v", err)
	}
	if err := service.SetAdmin(ctx, "GADMIN", "GADMIN"); err != nil {
		t.Fatalf("set admin: %v", err)
	}

	if err := service.Pause(ctx, "GALPHA"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected pause to be admin only, got %v", err)
	}
	if err := service.Pause(ctx, "GADMIN"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, err := service.Pay(ctx, "GALPHA", id); !errors.Is(err, ErrServicePaused) {
		t.Fatalf("expected service paused, got %v", err)
	}
	if _, err := service.Get(ctx, id); err != nil {
		t.Fatalf("expected reads to work while paused: %v", err)
	}

	if err := service.Unpause(ctx, "GADMIN"); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := service.PauseOperation(ctx, "GADMIN", OpPay); err != nil {
		t.Fatalf("pause operation: %v", err)
	}
	if _, err := service.Pay(ctx, "GALPHA", id); !errors.Is(err, ErrOperationPaused) {
		t.Fatalf("expected operation paused, got %v", err)
	}
	if _, err := service.Create(ctx, CreateInput{Owner: "GALPHA", Amount: 5, DueDate: now}); err != nil {
		t.Fatalf("expected other operations unaffected: %v", err)
	}

	if err := service.UnpauseOperation(ctx, "GADMIN", OpPay); err != nil {
		t.Fatalf("unpause operation: %v", err)
	}
	if _, err := service.Pay(ctx, "GALPHA", id); err != nil {
		t.Fatalf("pay after unpause: %v", err)
	}

	if err := service.PauseOperation(ctx, "GADMIN", Operation("bogus")); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected unknown operation, got %v", err)
	}
}

func TestPauseAllBlocksEveryMutation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Unix(100_000, 0).UTC()
	service := newTestService(store, now)
	ctx := context.Background()

	if err := service.SetAdmin(ctx, "GADMIN", "GADMIN"); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if err := service.PauseAll(ctx, "GADMIN"); err != nil {
		t.Fatalf("pause all: %v", err)
	}

	paused, err := service.Paused(ctx)
	if err != nil {
		t.Fatalf("paused: %v", err)
	}
	if !paused {
		t.Fatal("expected global flag set")
	}
	for _, op := range Operations() {
		opPaused, err := store.OperationPaused(ctx, string(op))
		if err != nil {
			t.Fatalf("operation paused: %v", err)
		}
		if !opPaused {
			t.Fatalf("expected operation %s paused", op)
		}
	}
}

func TestArchivePaidMovesSettledRecords(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Unix(200_000, 0).UTC()
	service := newTestService(store, now)
	ctx := context.Background()

	paidID, err := store.PutObligation(ctx, Obligation{Owner: "GALPHA", Amount: 10, DueDate: now.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("seed obligation: %v", err)
	}
	unpaidID, err := store.PutObligation(ctx, Obligation{Owner: "GALPHA", Amount: 20, DueDate: now})
	if err != nil {
		t.Fatalf("seed obligation: %v", err)
	}
	if _, err := service.Pay(ctx, "GALPHA", paidID); err != nil {
		t.Fatalf("pay: %v", err)
	}

	count, err := service.ArchivePaid(ctx, "GALPHA", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("archive paid: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 archived, got %d", count)
	}

	if _, err := service.Get(ctx, paidID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected archived record gone from live store, got %v", err)
	}
	archived, err := service.GetArchived(ctx, paidID)
	if err != nil {
		t.Fatalf("get archived: %v", err)
	}
	if !archived.Paid {
		t.Fatal("expected archived record to stay paid")
	}
	if _, err := service.Get(ctx, unpaidID); err != nil {
		t.Fatalf("expected unpaid record to stay live: %v", err)
	}
}
