// Package app wires the obligation domain service to its persistence,
// identity, and audit dependencies.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/remitwise/obligations/internal/obligations/domain"
	"github.com/remitwise/obligations/internal/obligations/storage"
)

// domainStoreAdapter bridges the storage contract to the domain store
// boundary and translates storage sentinels into domain errors.
type domainStoreAdapter struct {
	store storage.Store
}

func newDomainStoreAdapter(store storage.Store) *domainStoreAdapter {
	return &domainStoreAdapter{store: store}
}

func (a *domainStoreAdapter) PutObligation(ctx context.Context, obligation domain.Obligation) (uint64, error) {
	if a == nil || a.store == nil {
		return 0, domain.ErrStoreNotConfigured
	}
	id, err := a.store.PutObligation(ctx, toStorageObligation(obligation))
	if err != nil {
		return 0, mapStorageError(err)
	}
	return id, nil
}

func (a *domainStoreAdapter) GetObligation(ctx context.Context, id uint64) (domain.Obligation, error) {
	if a == nil || a.store == nil {
		return domain.Obligation{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.GetObligation(ctx, id)
	if err != nil {
		return domain.Obligation{}, mapStorageError(err)
	}
	return toDomainObligation(record), nil
}

func (a *domainStoreAdapter) PayObligation(ctx context.Context, write domain.PayWrite) (uint64, error) {
	if a == nil || a.store == nil {
		return 0, domain.ErrStoreNotConfigured
	}
	successorID, err := a.store.PayObligation(ctx, toStoragePayWrite(write))
	if err != nil {
		return 0, mapStorageError(err)
	}
	return successorID, nil
}

func (a *domainStoreAdapter) PayObligations(ctx context.Context, writes []domain.PayWrite) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	storageWrites := make([]storage.PayWrite, 0, len(writes))
	for _, write := range writes {
		storageWrites = append(storageWrites, toStoragePayWrite(write))
	}
	return mapStorageError(a.store.PayObligations(ctx, storageWrites))
}

func (a *domainStoreAdapter) CancelObligation(ctx context.Context, id uint64, scheduleID uint64, at time.Time) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.store.CancelObligation(ctx, id, scheduleID, at))
}

func (a *domainStoreAdapter) ListUnpaid(ctx context.Context, owner string, pageSize int, pageToken string) (domain.ObligationPage, error) {
	if a == nil || a.store == nil {
		return domain.ObligationPage{}, domain.ErrStoreNotConfigured
	}
	page, err := a.store.ListUnpaid(ctx, owner, pageSize, pageToken)
	if err != nil {
		return domain.ObligationPage{}, mapStorageError(err)
	}
	return toDomainPage(page), nil
}

func (a *domainStoreAdapter) ListOverdue(ctx context.Context, owner string, now time.Time, pageSize int, pageToken string) (domain.ObligationPage, error) {
	if a == nil || a.store == nil {
		return domain.ObligationPage{}, domain.ErrStoreNotConfigured
	}
	page, err := a.store.ListOverdue(ctx, owner, now, pageSize, pageToken)
	if err != nil {
		return domain.ObligationPage{}, mapStorageError(err)
	}
	return toDomainPage(page), nil
}

func (a *domainStoreAdapter) ListUnpaidAmounts(ctx context.Context, owner string) ([]int64, error) {
	if a == nil || a.store == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	amounts, err := a.store.ListUnpaidAmounts(ctx, owner)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return amounts, nil
}

func (a *domainStoreAdapter) ListAllObligations(ctx context.Context) ([]domain.Obligation, error) {
	if a == nil || a.store == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.store.ListAllObligations(ctx)
	if err != nil {
		return nil, mapStorageError(err)
	}
	obligations := make([]domain.Obligation, 0, len(records))
	for _, record := range records {
		obligations = append(obligations, toDomainObligation(record))
	}
	return obligations, nil
}

func (a *domainStoreAdapter) PutSchedule(ctx context.Context, schedule domain.Schedule) (uint64, error) {
	if a == nil || a.store == nil {
		return 0, domain.ErrStoreNotConfigured
	}
	id, err := a.store.PutSchedule(ctx, toStorageSchedule(schedule))
	if err != nil {
		return 0, mapStorageError(err)
	}
	return id, nil
}

func (a *domainStoreAdapter) GetSchedule(ctx context.Context, id uint64) (domain.Schedule, error) {
	if a == nil || a.store == nil {
		return domain.Schedule{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.GetSchedule(ctx, id)
	if err != nil {
		return domain.Schedule{}, mapStorageError(err)
	}
	return toDomainSchedule(record), nil
}

func (a *domainStoreAdapter) UpdateSchedule(ctx context.Context, schedule domain.Schedule) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.store.UpdateSchedule(ctx, toStorageSchedule(schedule)))
}

func (a *domainStoreAdapter) ListSchedulesByOwner(ctx context.Context, owner string) ([]domain.Schedule, error) {
	if a == nil || a.store == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.store.ListSchedulesByOwner(ctx, owner)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return toDomainSchedules(records), nil
}

func (a *domainStoreAdapter) ListDueSchedules(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
	if a == nil || a.store == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.store.ListDueSchedules(ctx, now)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return toDomainSchedules(records), nil
}

func (a *domainStoreAdapter) ActiveScheduleForObligation(ctx context.Context, obligationID uint64) (domain.Schedule, error) {
	if a == nil || a.store == nil {
		return domain.Schedule{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.ActiveScheduleForObligation(ctx, obligationID)
	if err != nil {
		return domain.Schedule{}, mapStorageError(err)
	}
	return toDomainSchedule(record), nil
}

func (a *domainStoreAdapter) ApplyScheduleExecution(ctx context.Context, schedule domain.Schedule, pay *domain.PayWrite) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	var storagePay *storage.PayWrite
	if pay != nil {
		write := toStoragePayWrite(*pay)
		storagePay = &write
	}
	return mapStorageError(a.store.ApplyScheduleExecution(ctx, toStorageSchedule(schedule), storagePay))
}

func (a *domainStoreAdapter) ArchivePaidObligations(ctx context.Context, owner string, before time.Time, archivedAt time.Time) (uint32, error) {
	if a == nil || a.store == nil {
		return 0, domain.ErrStoreNotConfigured
	}
	count, err := a.store.ArchivePaidObligations(ctx, owner, before, archivedAt)
	if err != nil {
		return 0, mapStorageError(err)
	}
	return count, nil
}

func (a *domainStoreAdapter) GetArchivedObligation(ctx context.Context, id uint64) (domain.Obligation, error) {
	if a == nil || a.store == nil {
		return domain.Obligation{}, domain.ErrStoreNotConfigured
	}
	record, err := a.store.GetArchivedObligation(ctx, id)
	if err != nil {
		return domain.Obligation{}, mapStorageError(err)
	}
	return toDomainObligation(record), nil
}

func (a *domainStoreAdapter) Admin(ctx context.Context) (string, error) {
	if a == nil || a.store == nil {
		return "", domain.ErrStoreNotConfigured
	}
	admin, err := a.store.Admin(ctx)
	return admin, mapStorageError(err)
}

func (a *domainStoreAdapter) SetAdmin(ctx context.Context, admin string) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.store.SetAdmin(ctx, admin))
}

func (a *domainStoreAdapter) Paused(ctx context.Context) (bool, error) {
	if a == nil || a.store == nil {
		return false, domain.ErrStoreNotConfigured
	}
	paused, err := a.store.Paused(ctx)
	return paused, mapStorageError(err)
}

func (a *domainStoreAdapter) SetPaused(ctx context.Context, paused bool) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.store.SetPaused(ctx, paused))
}

func (a *domainStoreAdapter) OperationPaused(ctx context.Context, op string) (bool, error) {
	if a == nil || a.store == nil {
		return false, domain.ErrStoreNotConfigured
	}
	paused, err := a.store.OperationPaused(ctx, op)
	return paused, mapStorageError(err)
}

func (a *domainStoreAdapter) SetOperationPaused(ctx context.Context, op string, paused bool) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.store.SetOperationPaused(ctx, op, paused))
}

func toStorageObligation(obligation domain.Obligation) storage.ObligationRecord {
	return storage.ObligationRecord{
		ID:            obligation.ID,
		Owner:         obligation.Owner,
		Description:   obligation.Description,
		Amount:        obligation.Amount,
		Currency:      obligation.Currency,
		DueDate:       obligation.DueDate,
		Recurring:     obligation.Recurring,
		FrequencyDays: obligation.FrequencyDays,
		Paid:          obligation.Paid,
		PaidAt:        obligation.PaidAt,
		CreatedAt:     obligation.CreatedAt,
	}
}

func toDomainObligation(record storage.ObligationRecord) domain.Obligation {
	return domain.Obligation{
		ID:            record.ID,
		Owner:         record.Owner,
		Description:   record.Description,
		Amount:        record.Amount,
		Currency:      record.Currency,
		DueDate:       record.DueDate,
		Recurring:     record.Recurring,
		FrequencyDays: record.FrequencyDays,
		Paid:          record.Paid,
		PaidAt:        record.PaidAt,
		CreatedAt:     record.CreatedAt,
	}
}

func toStoragePayWrite(write domain.PayWrite) storage.PayWrite {
	storageWrite := storage.PayWrite{
		ObligationID: write.ObligationID,
		PaidAt:       write.PaidAt,
	}
	if write.Successor != nil {
		successor := toStorageObligation(*write.Successor)
		storageWrite.Successor = &successor
	}
	return storageWrite
}

func toStorageSchedule(schedule domain.Schedule) storage.ScheduleRecord {
	return storage.ScheduleRecord{
		ID:           schedule.ID,
		Owner:        schedule.Owner,
		ObligationID: schedule.ObligationID,
		NextDue:      schedule.NextDue,
		IntervalSecs: int64(schedule.Interval / time.Second),
		Recurring:    schedule.Recurring,
		Active:       schedule.Active,
		CreatedAt:    schedule.CreatedAt,
		LastExecuted: schedule.LastExecuted,
		MissedCount:  schedule.MissedCount,
	}
}

func toDomainSchedule(record storage.ScheduleRecord) domain.Schedule {
	return domain.Schedule{
		ID:           record.ID,
		Owner:        record.Owner,
		ObligationID: record.ObligationID,
		NextDue:      record.NextDue,
		Interval:     time.Duration(record.IntervalSecs) * time.Second,
		Recurring:    record.Recurring,
		Active:       record.Active,
		CreatedAt:    record.CreatedAt,
		LastExecuted: record.LastExecuted,
		MissedCount:  record.MissedCount,
	}
}

func toDomainSchedules(records []storage.ScheduleRecord) []domain.Schedule {
	schedules := make([]domain.Schedule, 0, len(records))
	for _, record := range records {
		schedules = append(schedules, toDomainSchedule(record))
	}
	return schedules
}

func toDomainPage(page storage.ObligationPage) domain.ObligationPage {
	obligations := make([]domain.Obligation, 0, len(page.Obligations))
	for _, record := range page.Obligations {
		obligations = append(obligations, toDomainObligation(record))
	}
	return domain.ObligationPage{
		Obligations:   obligations,
		NextPageToken: page.NextPageToken,
	}
}

func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return domain.ErrAlreadyPaid
	default:
		return err
	}
}
