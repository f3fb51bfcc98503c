package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "github.com/remitwise/obligations/internal/platform/errors"
	"github.com/remitwise/obligations/internal/platform/identity"
)

// AuditEvent is one append-only journal entry describing a mutation.
type AuditEvent struct {
	Kind      string
	Owner     string
	SubjectID uint64
	Detail    string
	At        time.Time
}

// AuditSink receives audit events from mutating operations. Recording is
// best-effort; sink failures never fail the mutation they describe.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}

// Service orchestrates obligation lifecycle behavior.
type Service struct {
	store      Store
	authorizer identity.Authorizer
	audit      AuditSink
	clock      func() time.Time
}

// NewService constructs obligation domain use-cases.
func NewService(store Store, authorizer identity.Authorizer, audit AuditSink, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:      store,
		authorizer: authorizer,
		audit:      audit,
		clock:      clock,
	}
}

// Create stores one obligation owned by the caller.
func (s *Service) Create(ctx context.Context, input CreateInput) (Obligation, error) {
	if err := s.ready(); err != nil {
		return Obligation{}, err
	}
	owner := strings.TrimSpace(input.Owner)
	if owner == "" {
		return Obligation{}, ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, owner); err != nil {
		return Obligation{}, err
	}
	if err := s.checkPause(ctx, OpCreate); err != nil {
		return Obligation{}, err
	}
	if input.Amount <= 0 {
		return Obligation{}, ErrInvalidAmount
	}
	if input.Recurring && input.FrequencyDays == 0 {
		return Obligation{}, ErrInvalidFrequency
	}

	obligation := Obligation{
		Owner:         owner,
		Description:   strings.TrimSpace(input.Description),
		Amount:        input.Amount,
		Currency:      strings.TrimSpace(input.Currency),
		DueDate:       input.DueDate.UTC(),
		Recurring:     input.Recurring,
		FrequencyDays: input.FrequencyDays,
		CreatedAt:     s.nowUTC(),
	}
	id, err := s.store.PutObligation(ctx, obligation)
	if err != nil {
		return Obligation{}, err
	}
	obligation.ID = id

	s.emit(ctx, AuditEvent{Kind: "obligation.created", Owner: owner, SubjectID: id})
	return obligation, nil
}

// Pay settles one obligation and, for recurring obligations, creates its
// successor anchored on the original due date.
func (s *Service) Pay(ctx context.Context, caller string, id uint64) (PayResult, error) {
	if err := s.ready(); err != nil {
		return PayResult{}, err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return PayResult{}, ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, caller); err != nil {
		return PayResult{}, err
	}
	if err := s.checkPause(ctx, OpPay); err != nil {
		return PayResult{}, err
	}

	obligation, err := s.store.GetObligation(ctx, id)
	if err != nil {
		return PayResult{}, err
	}
	if obligation.Owner != caller {
		return PayResult{}, ErrUnauthorized
	}
	if obligation.Paid {
		return PayResult{}, ErrAlreadyPaid
	}

	now := s.nowUTC()
	write := PayWrite{ObligationID: id, PaidAt: now}
	if obligation.Recurring {
		successor := successorOf(obligation, now)
		write.Successor = &successor
	}

	successorID, err := s.store.PayObligation(ctx, write)
	if err != nil {
		return PayResult{}, err
	}

	result := PayResult{Paid: obligation}
	result.Paid.Paid = true
	result.Paid.PaidAt = &now
	if write.Successor != nil {
		result.Successor = *write.Successor
		result.Successor.ID = successorID
	}

	s.emit(ctx, AuditEvent{Kind: "obligation.paid", Owner: caller, SubjectID: id})
	if successorID != 0 {
		s.emit(ctx, AuditEvent{Kind: "obligation.created", Owner: caller, SubjectID: successorID})
	}
	return result, nil
}

// Cancel removes one obligation outright and deactivates any active
// schedule bound to it. Already-created successors are left untouched.
func (s *Service) Cancel(ctx context.Context, caller string, id uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, caller); err != nil {
		return err
	}
	if err := s.checkPause(ctx, OpCancel); err != nil {
		return err
	}

	obligation, err := s.store.GetObligation(ctx, id)
	if err != nil {
		return err
	}
	if obligation.Owner != caller {
		return ErrUnauthorized
	}

	var scheduleID uint64
	schedule, err := s.store.ActiveScheduleForObligation(ctx, id)
	switch {
	case err == nil:
		scheduleID = schedule.ID
	case errors.Is(err, ErrNotFound):
	default:
		return err
	}

	if err := s.store.CancelObligation(ctx, id, scheduleID, s.nowUTC()); err != nil {
		return err
	}

	s.emit(ctx, AuditEvent{Kind: "obligation.cancelled", Owner: caller, SubjectID: id})
	if scheduleID != 0 {
		s.emit(ctx, AuditEvent{Kind: "schedule.cancelled", Owner: caller, SubjectID: scheduleID})
	}
	return nil
}

// BatchPay settles up to maxBatchSize obligations as one unit. The whole
// batch is validated before any write; the first per-item failure aborts
// the call with no partial state.
func (s *Service) BatchPay(ctx context.Context, caller string, ids []uint64) (uint32, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return 0, ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, caller); err != nil {
		return 0, err
	}
	if err := s.checkPause(ctx, OpBatchPay); err != nil {
		return 0, err
	}
	if len(ids) > maxBatchSize {
		return 0, apperrors.WithMetadata(
			apperrors.CodeBatchTooLarge,
			"batch exceeds maximum size",
			map[string]string{"Max": fmt.Sprintf("%d", maxBatchSize)},
		)
	}

	now := s.nowUTC()
	seen := make(map[uint64]struct{}, len(ids))
	writes := make([]PayWrite, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return 0, ErrDuplicateBatchID
		}
		seen[id] = struct{}{}

		obligation, err := s.store.GetObligation(ctx, id)
		if err != nil {
			return 0, err
		}
		if obligation.Owner != caller {
			return 0, ErrUnauthorized
		}
		if obligation.Paid {
			return 0, ErrAlreadyPaid
		}

		write := PayWrite{ObligationID: id, PaidAt: now}
		if obligation.Recurring {
			successor := successorOf(obligation, now)
			write.Successor = &successor
		}
		writes = append(writes, write)
	}

	if len(writes) == 0 {
		return 0, nil
	}
	if err := s.store.PayObligations(ctx, writes); err != nil {
		return 0, err
	}

	for _, write := range writes {
		s.emit(ctx, AuditEvent{Kind: "obligation.paid", Owner: caller, SubjectID: write.ObligationID})
	}
	return uint32(len(writes)), nil
}

// Get returns one obligation by id regardless of payment state.
func (s *Service) Get(ctx context.Context, id uint64) (Obligation, error) {
	if err := s.readyStore(); err != nil {
		return Obligation{}, err
	}
	return s.store.GetObligation(ctx, id)
}

// ListUnpaid pages through the owner's unpaid obligations.
func (s *Service) ListUnpaid(ctx context.Context, input ListInput) (ObligationPage, error) {
	if err := s.readyStore(); err != nil {
		return ObligationPage{}, err
	}
	owner := strings.TrimSpace(input.Owner)
	if owner == "" {
		return ObligationPage{}, ErrOwnerRequired
	}
	return s.store.ListUnpaid(ctx, owner, clampPageSize(input.PageSize), input.PageToken)
}

// ListOverdue pages through the owner's unpaid obligations whose due date
// has strictly passed.
func (s *Service) ListOverdue(ctx context.Context, input ListInput) (ObligationPage, error) {
	if err := s.readyStore(); err != nil {
		return ObligationPage{}, err
	}
	owner := strings.TrimSpace(input.Owner)
	if owner == "" {
		return ObligationPage{}, ErrOwnerRequired
	}
	return s.store.ListOverdue(ctx, owner, s.nowUTC(), clampPageSize(input.PageSize), input.PageToken)
}

// TotalUnpaid sums the owner's unpaid amounts with overflow-checked
// addition. Overflow fails the call rather than wrapping.
func (s *Service) TotalUnpaid(ctx context.Context, owner string) (int64, error) {
	if err := s.readyStore(); err != nil {
		return 0, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return 0, ErrOwnerRequired
	}

	amounts, err := s.store.ListUnpaidAmounts(ctx, owner)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, amount := range amounts {
		next, ok := checkedAdd(total, amount)
		if !ok {
			return 0, ErrArithmeticOverflow
		}
		total = next
	}
	return total, nil
}

// ListAll returns every obligation across owners. Restricted to the
// administrative principal; data owners are rejected like anyone else.
func (s *Service) ListAll(ctx context.Context, caller string) ([]Obligation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, caller); err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	return s.store.ListAllObligations(ctx)
}

// ArchivePaid moves the caller's paid obligations settled before the
// cutoff into the archive store and reports how many moved.
func (s *Service) ArchivePaid(ctx context.Context, caller string, before time.Time) (uint32, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return 0, ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, caller); err != nil {
		return 0, err
	}
	if err := s.checkPause(ctx, OpArchivePaid); err != nil {
		return 0, err
	}

	count, err := s.store.ArchivePaidObligations(ctx, caller, before.UTC(), s.nowUTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.emit(ctx, AuditEvent{
			Kind:   "archive.swept",
			Owner:  caller,
			Detail: fmt.Sprintf("archived %d obligations", count),
		})
	}
	return count, nil
}

// GetArchived returns one archived obligation. Archived entries are
// invisible to live-store queries.
func (s *Service) GetArchived(ctx context.Context, id uint64) (Obligation, error) {
	if err := s.readyStore(); err != nil {
		return Obligation{}, err
	}
	return s.store.GetArchivedObligation(ctx, id)
}

// successorOf builds the next cycle of a recurring obligation. The due
// date advances from the original due date, never from the payment time,
// so early or late payment cannot perturb the cadence.
func successorOf(obligation Obligation, createdAt time.Time) Obligation {
	return Obligation{
		Owner:         obligation.Owner,
		Description:   obligation.Description,
		Amount:        obligation.Amount,
		Currency:      obligation.Currency,
		DueDate:       obligation.DueDate.Add(time.Duration(obligation.FrequencyDays) * 24 * time.Hour),
		Recurring:     true,
		FrequencyDays: obligation.FrequencyDays,
		CreatedAt:     createdAt,
	}
}

func checkedAdd(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, false
	}
	return a + b, true
}

func clampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return defaultPageSize
	}
	if pageSize > maxPageSize {
		return maxPageSize
	}
	return pageSize
}

func (s *Service) ready() error {
	if err := s.readyStore(); err != nil {
		return err
	}
	if s.authorizer == nil {
		return ErrAuthorizerNotConfigured
	}
	return nil
}

func (s *Service) readyStore() error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	return nil
}

func (s *Service) checkPause(ctx context.Context, op Operation) error {
	paused, err := s.store.Paused(ctx)
	if err != nil {
		return err
	}
	if paused {
		return ErrServicePaused
	}
	opPaused, err := s.store.OperationPaused(ctx, string(op))
	if err != nil {
		return err
	}
	if opPaused {
		return apperrors.WithMetadata(
			apperrors.CodeOperationPaused,
			"operation is paused",
			map[string]string{"Operation": string(op)},
		)
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, caller string) error {
	admin, err := s.store.Admin(ctx)
	if err != nil {
		return err
	}
	if admin == "" || caller != admin {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event AuditEvent) {
	if s.audit == nil {
		return
	}
	if event.At.IsZero() {
		event.At = s.nowUTC()
	}
	s.audit.Record(ctx, event)
}

func (s *Service) nowUTC() time.Time {
	return s.clock().UTC()
}
