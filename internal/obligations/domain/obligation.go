// Package domain implements recurring-obligation lifecycle behavior.
package domain

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/remitwise/obligations/internal/platform/errors"
)

var (
	// ErrNotFound indicates an obligation or schedule record was not found.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "obligation not found")
	// ErrUnauthorized indicates the caller may not act on the record.
	ErrUnauthorized = apperrors.New(apperrors.CodeUnauthorized, "caller is not authorized")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = apperrors.New(apperrors.CodeInvalidAmount, "amount must be positive")
	// ErrInvalidFrequency indicates a recurring record without a positive frequency.
	ErrInvalidFrequency = apperrors.New(apperrors.CodeInvalidFrequency, "frequency must be positive for recurring obligations")
	// ErrInvalidTimestamp indicates a due timestamp that is not in the future.
	ErrInvalidTimestamp = apperrors.New(apperrors.CodeInvalidTimestamp, "timestamp must be in the future")
	// ErrAlreadyPaid indicates the obligation was already settled.
	ErrAlreadyPaid = apperrors.New(apperrors.CodeAlreadyPaid, "obligation is already paid")
	// ErrBatchTooLarge indicates the batch exceeds the permitted size.
	ErrBatchTooLarge = apperrors.New(apperrors.CodeBatchTooLarge, "batch exceeds maximum size")
	// ErrDuplicateBatchID indicates one obligation appears twice in a
	// batch. It carries the already-paid code because the first
	// occurrence would settle the obligation before the second applies.
	ErrDuplicateBatchID = apperrors.WithMetadata(
		apperrors.CodeAlreadyPaid,
		"duplicate obligation id in batch",
		map[string]string{"Reason": "duplicate_id"},
	)
	// ErrServicePaused indicates the global pause flag blocks the call.
	ErrServicePaused = apperrors.New(apperrors.CodeServicePaused, "service is paused")
	// ErrOperationPaused indicates the per-operation pause map blocks the call.
	ErrOperationPaused = apperrors.New(apperrors.CodeOperationPaused, "operation is paused")
	// ErrArithmeticOverflow indicates an aggregate could not be represented.
	ErrArithmeticOverflow = apperrors.New(apperrors.CodeArithmeticOverflow, "arithmetic overflow")

	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("obligation store is not configured")
	// ErrAuthorizerNotConfigured indicates the service is missing the identity gate.
	ErrAuthorizerNotConfigured = errors.New("identity authorizer is not configured")
	// ErrOwnerRequired indicates an owner principal is required.
	ErrOwnerRequired = errors.New("owner principal is required")
	// ErrUnknownOperation indicates a pause target that is not a known operation.
	ErrUnknownOperation = errors.New("unknown operation")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxBatchSize    = 20
)

// Operation names mutating entry points for the per-operation pause map.
type Operation string

const (
	OpCreate              Operation = "create"
	OpPay                 Operation = "pay"
	OpCancel              Operation = "cancel"
	OpBatchPay            Operation = "batch_pay"
	OpArchivePaid         Operation = "archive_paid"
	OpCreateSchedule      Operation = "create_schedule"
	OpModifySchedule      Operation = "modify_schedule"
	OpCancelSchedule      Operation = "cancel_schedule"
	OpExecuteDueSchedules Operation = "execute_due_schedules"
)

// Operations lists every pausable operation.
func Operations() []Operation {
	return []Operation{
		OpCreate,
		OpPay,
		OpCancel,
		OpBatchPay,
		OpArchivePaid,
		OpCreateSchedule,
		OpModifySchedule,
		OpCancelSchedule,
		OpExecuteDueSchedules,
	}
}

// Obligation captures one recurring or one-shot payable item.
type Obligation struct {
	ID            uint64
	Owner         string
	Description   string
	Amount        int64
	Currency      string
	DueDate       time.Time
	Recurring     bool
	FrequencyDays uint32
	Paid          bool
	PaidAt        *time.Time
	CreatedAt     time.Time
}

// Schedule is a standalone catch-up pointer driving periodic execution
// of one obligation's pay cycle.
type Schedule struct {
	ID           uint64
	Owner        string
	ObligationID uint64
	NextDue      time.Time
	Interval     time.Duration
	Recurring    bool
	Active       bool
	CreatedAt    time.Time
	LastExecuted *time.Time
	MissedCount  uint32
}

// ObligationPage is a paged owner-scoped obligation view.
type ObligationPage struct {
	Obligations   []Obligation
	NextPageToken string
}

// CreateInput describes one obligation creation request.
type CreateInput struct {
	Owner         string
	Description   string
	Amount        int64
	Currency      string
	DueDate       time.Time
	Recurring     bool
	FrequencyDays uint32
}

// CreateScheduleInput describes one schedule creation request.
type CreateScheduleInput struct {
	Owner        string
	ObligationID uint64
	NextDue      time.Time
	Interval     time.Duration
}

// ModifyScheduleInput describes one schedule modification request.
type ModifyScheduleInput struct {
	Caller   string
	ID       uint64
	NextDue  time.Time
	Interval time.Duration
}

// ListInput configures owner-scoped paginated listing.
type ListInput struct {
	Owner     string
	PageSize  int
	PageToken string
}

// PayResult reports a settled obligation and its successor, if any.
// Successor is the zero value for non-recurring obligations.
type PayResult struct {
	Paid      Obligation
	Successor Obligation
}

// PayWrite is one atomic settlement write: mark the obligation paid and,
// for recurring obligations, insert its successor in the same unit.
type PayWrite struct {
	ObligationID uint64
	PaidAt       time.Time
	Successor    *Obligation
}

// ObligationStore persists obligation records.
type ObligationStore interface {
	PutObligation(ctx context.Context, obligation Obligation) (uint64, error)
	GetObligation(ctx context.Context, id uint64) (Obligation, error)
	PayObligation(ctx context.Context, write PayWrite) (uint64, error)
	PayObligations(ctx context.Context, writes []PayWrite) error
	CancelObligation(ctx context.Context, id uint64, scheduleID uint64, at time.Time) error
	ListUnpaid(ctx context.Context, owner string, pageSize int, pageToken string) (ObligationPage, error)
	ListOverdue(ctx context.Context, owner string, now time.Time, pageSize int, pageToken string) (ObligationPage, error)
	ListUnpaidAmounts(ctx context.Context, owner string) ([]int64, error)
	ListAllObligations(ctx context.Context) ([]Obligation, error)
}

// ScheduleStore persists catch-up schedules.
type ScheduleStore interface {
	PutSchedule(ctx context.Context, schedule Schedule) (uint64, error)
	GetSchedule(ctx context.Context, id uint64) (Schedule, error)
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	ListSchedulesByOwner(ctx context.Context, owner string) ([]Schedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]Schedule, error)
	ActiveScheduleForObligation(ctx context.Context, obligationID uint64) (Schedule, error)
	// ApplyScheduleExecution writes one schedule advancement and its pay
	// effect atomically, rebinding the schedule to the pay's successor
	// when one is inserted.
	ApplyScheduleExecution(ctx context.Context, schedule Schedule, pay *PayWrite) error
}

// ArchiveStore persists immutable copies of settled obligations.
type ArchiveStore interface {
	ArchivePaidObligations(ctx context.Context, owner string, before time.Time, archivedAt time.Time) (uint32, error)
	GetArchivedObligation(ctx context.Context, id uint64) (Obligation, error)
}

// SettingsStore persists the admin principal and pause state.
type SettingsStore interface {
	Admin(ctx context.Context) (string, error)
	SetAdmin(ctx context.Context, admin string) error
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
	OperationPaused(ctx context.Context, op string) (bool, error)
	SetOperationPaused(ctx context.Context, op string, paused bool) error
}

// Store is the domain persistence boundary for obligation lifecycle behavior.
type Store interface {
	ObligationStore
	ScheduleStore
	ArchiveStore
	SettingsStore
}
