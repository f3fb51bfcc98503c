package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/remitwise/obligations/internal/obligations/domain/catchup"
)

// CreateSchedule binds a catch-up pointer to one of the owner's obligations.
func (s *Service) CreateSchedule(ctx context.Context, input CreateScheduleInput) (Schedule, error) {
	if err := s.ready(); err != nil {
		return Schedule{}, err
	}
	owner := strings.TrimSpace(input.Owner)
	if owner == "" {
		return Schedule{}, ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, owner); err != nil {
		return Schedule{}, err
	}
	if err := s.checkPause(ctx, OpCreateSchedule); err != nil {
		return Schedule{}, err
	}

	now := s.nowUTC()
	if err := validateScheduleTiming(input.NextDue, input.Interval, now); err != nil {
		return Schedule{}, err
	}

	obligation, err := s.store.GetObligation(ctx, input.ObligationID)
	if err != nil {
		return Schedule{}, err
	}
	if obligation.Owner != owner {
		return Schedule{}, ErrUnauthorized
	}

	schedule := Schedule{
		Owner:        owner,
		ObligationID: input.ObligationID,
		NextDue:      input.NextDue.UTC(),
		Interval:     input.Interval,
		Recurring:    input.Interval > 0,
		Active:       true,
		CreatedAt:    now,
	}
	id, err := s.store.PutSchedule(ctx, schedule)
	if err != nil {
		return Schedule{}, err
	}
	schedule.ID = id

	s.emit(ctx, AuditEvent{Kind: "schedule.created", Owner: owner, SubjectID: id})
	return schedule, nil
}

// ModifySchedule repoints an existing schedule to a new due time and interval.
func (s *Service) ModifySchedule(ctx context.Context, input ModifyScheduleInput) (Schedule, error) {
	if err := s.ready(); err != nil {
		return Schedule{}, err
	}
	caller := strings.TrimSpace(input.Caller)
	if caller == "" {
		return Schedule{}, ErrOwnerRequired
	}
	if err := s.authorizer.Authorize(ctx, caller); err != nil {
		return Schedule{}, err
	}
	if err := s.checkPause(ctx, OpModifySchedule); err != nil {
		return Schedule{}, err
	}

	now := s.nowUTC()
	if err := validateScheduleTiming(input.NextDue, input.Interval, now); err != nil {
		return Schedule{}, err
	}

	schedule, err := s.store.GetSchedule(ctx, input.ID)
	if err != nil {
		return Schedule{}, err
	}
	if schedule.Owner != caller {
		return Schedule{}, ErrUnauthorized
	}

	schedule.NextDue = input.NextDue.UTC()
	schedule.Interval = input.Interval
	schedule.Recurring = input.Interval > 0
	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		return Schedule{}, err
	}

	s.emit(ctx, AuditEvent{Kind: "schedule.modified", Owner: caller, SubjectID: schedule.ID})
	return schedule, nil
}

// CancelSchedule soft-deactivates a schedule. The record itself is kept.
func (s *Service) CancelSchedule(ctx context.Context, caller string, id uint64) error {
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
	if err := s.checkPause(ctx, OpCancelSchedule); err != nil {
		return err
	}

	schedule, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if schedule.Owner != caller {
		return ErrUnauthorized
	}
	if !schedule.Active {
		return nil
	}

	schedule.Active = false
	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		return err
	}

	s.emit(ctx, AuditEvent{Kind: "schedule.cancelled", Owner: caller, SubjectID: id})
	return nil
}

// GetSchedule returns one schedule by id.
func (s *Service) GetSchedule(ctx context.Context, id uint64) (Schedule, error) {
	if err := s.readyStore(); err != nil {
		return Schedule{}, err
	}
	return s.store.GetSchedule(ctx, id)
}

// ListSchedules returns every schedule belonging to the owner, active or not.
func (s *Service) ListSchedules(ctx context.Context, owner string) ([]Schedule, error) {
	if err := s.readyStore(); err != nil {
		return nil, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	return s.store.ListSchedulesByOwner(ctx, owner)
}

// ExecuteDueSchedules is the keeper entry point: it advances every active
// schedule whose due time has arrived. It takes no caller and may be
// invoked by anyone, arbitrarily often; a schedule already advanced past
// now is untouched by re-invocation.
func (s *Service) ExecuteDueSchedules(ctx context.Context) ([]uint64, error) {
	if err := s.readyStore(); err != nil {
		return nil, err
	}
	if err := s.checkPause(ctx, OpExecuteDueSchedules); err != nil {
		return nil, err
	}

	now := s.nowUTC()
	due, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		return nil, err
	}

	return executeDue(ctx, due, now, s.applyScheduleCycle)
}

// executeDue advances each due schedule, invoking apply exactly once per
// schedule with the fully advanced record and the number of windows
// skipped beyond the first. One-shot schedules deactivate; recurring
// schedules jump past now in whole intervals. The same advancement drives
// every schedule kind, parameterized only by the apply callback.
func executeDue(ctx context.Context, schedules []Schedule, now time.Time, apply func(context.Context, Schedule, uint32) error) ([]uint64, error) {
	executed := make([]uint64, 0, len(schedules))
	for _, schedule := range schedules {
		if !schedule.Active || schedule.NextDue.After(now) {
			continue
		}

		advanced := schedule
		executedAt := now
		advanced.LastExecuted = &executedAt
		var missed uint32
		if schedule.Interval <= 0 {
			advanced.Active = false
		} else {
			nextDue, skipped, err := catchup.Advance(schedule.NextDue, schedule.Interval, now)
			if err != nil {
				return executed, err
			}
			advanced.NextDue = nextDue
			advanced.MissedCount += skipped
			missed = skipped
		}

		if err := apply(ctx, advanced, missed); err != nil {
			return executed, err
		}
		executed = append(executed, schedule.ID)
	}
	return executed, nil
}

// applyScheduleCycle persists one schedule advancement together with its
// pay effect. Settling a recurring cycle rebinds the schedule to the
// successor obligation so the next execution pays the current cycle. A
// linked obligation that is gone or already settled does not block the
// advancement; the schedule still moves forward.
func (s *Service) applyScheduleCycle(ctx context.Context, schedule Schedule, missed uint32) error {
	var pay *PayWrite

	obligation, err := s.store.GetObligation(ctx, schedule.ObligationID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	case !obligation.Paid:
		executedAt := s.nowUTC()
		if schedule.LastExecuted != nil {
			executedAt = *schedule.LastExecuted
		}
		pay = &PayWrite{ObligationID: obligation.ID, PaidAt: executedAt}
		if obligation.Recurring {
			successor := successorOf(obligation, executedAt)
			pay.Successor = &successor
		}
	}

	if err := s.store.ApplyScheduleExecution(ctx, schedule, pay); err != nil {
		return err
	}

	s.emit(ctx, AuditEvent{Kind: "schedule.executed", Owner: schedule.Owner, SubjectID: schedule.ID})
	if missed > 0 {
		s.emit(ctx, AuditEvent{
			Kind:      "schedule.missed",
			Owner:     schedule.Owner,
			SubjectID: schedule.ID,
			Detail:    fmt.Sprintf("skipped %d windows", missed),
		})
	}
	return nil
}

// validateScheduleTiming rejects due times that are not in the future and
// intervals below the store's second granularity. A zero interval marks a
// one-shot schedule.
func validateScheduleTiming(nextDue time.Time, interval time.Duration, now time.Time) error {
	if !nextDue.After(now) {
		return ErrInvalidTimestamp
	}
	if interval != 0 && interval < time.Second {
		return ErrInvalidFrequency
	}
	return nil
}
