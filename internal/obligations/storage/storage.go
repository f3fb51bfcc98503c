// Package storage defines persistence records and store contracts for
// obligation state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested obligation or schedule record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with existing state.
	ErrConflict = errors.New("record conflict")
)

// LeaseRegion identifies one independently leased store region.
type LeaseRegion string

const (
	// LeaseRegionLive holds active obligation and schedule records.
	LeaseRegionLive LeaseRegion = "live"
	// LeaseRegionArchive holds settled obligation copies.
	LeaseRegionArchive LeaseRegion = "archive"
)

// ObligationRecord stores one payable item.
type ObligationRecord struct {
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

// ObligationPage stores a paged owner-scoped listing result.
type ObligationPage struct {
	Obligations   []ObligationRecord
	NextPageToken string
}

// ScheduleRecord stores one catch-up pointer.
type ScheduleRecord struct {
	ID           uint64
	Owner        string
	ObligationID uint64
	NextDue      time.Time
	IntervalSecs int64
	Recurring    bool
	Active       bool
	CreatedAt    time.Time
	LastExecuted *time.Time
	MissedCount  uint32
}

// PayWrite marks one obligation paid and optionally inserts its successor
// in the same atomic unit.
type PayWrite struct {
	ObligationID uint64
	PaidAt       time.Time
	Successor    *ObligationRecord
}

// AuditRecord stores one append-only journal entry.
type AuditRecord struct {
	Seq       uint64
	Kind      string
	Owner     string
	SubjectID uint64
	Detail    string
	At        time.Time
}

// ObligationStore persists obligation lifecycle state.
type ObligationStore interface {
	PutObligation(ctx context.Context, record ObligationRecord) (uint64, error)
	GetObligation(ctx context.Context, id uint64) (ObligationRecord, error)
	PayObligation(ctx context.Context, write PayWrite) (uint64, error)
	PayObligations(ctx context.Context, writes []PayWrite) error
	CancelObligation(ctx context.Context, id uint64, scheduleID uint64, at time.Time) error
	ListUnpaid(ctx context.Context, owner string, pageSize int, pageToken string) (ObligationPage, error)
	ListOverdue(ctx context.Context, owner string, now time.Time, pageSize int, pageToken string) (ObligationPage, error)
	ListUnpaidAmounts(ctx context.Context, owner string) ([]int64, error)
	ListAllObligations(ctx context.Context) ([]ObligationRecord, error)
}

// ScheduleStore persists catch-up schedule state.
type ScheduleStore interface {
	PutSchedule(ctx context.Context, record ScheduleRecord) (uint64, error)
	GetSchedule(ctx context.Context, id uint64) (ScheduleRecord, error)
	UpdateSchedule(ctx context.Context, record ScheduleRecord) error
	ListSchedulesByOwner(ctx context.Context, owner string) ([]ScheduleRecord, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]ScheduleRecord, error)
	ActiveScheduleForObligation(ctx context.Context, obligationID uint64) (ScheduleRecord, error)
	// ApplyScheduleExecution writes one schedule advancement and its pay
	// effect atomically. A pay that inserts a successor rebinds the
	// schedule to the successor id.
	ApplyScheduleExecution(ctx context.Context, record ScheduleRecord, pay *PayWrite) error
}

// ArchiveStore persists immutable settled-obligation copies.
type ArchiveStore interface {
	ArchivePaidObligations(ctx context.Context, owner string, before time.Time, archivedAt time.Time) (uint32, error)
	GetArchivedObligation(ctx context.Context, id uint64) (ObligationRecord, error)
}

// SettingsStore persists the admin principal and pause flags.
type SettingsStore interface {
	Admin(ctx context.Context) (string, error)
	SetAdmin(ctx context.Context, admin string) error
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
	OperationPaused(ctx context.Context, op string) (bool, error)
	SetOperationPaused(ctx context.Context, op string, paused bool) error
}

// AuditStore persists the append-only audit journal.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, record AuditRecord) error
	ListAuditEvents(ctx context.Context, afterSeq uint64, limit int) ([]AuditRecord, error)
}

// LeaseStore exposes lease expiries for observation; every mutating store
// method refreshes the relevant region's lease internally when it drops
// below the low-water threshold.
type LeaseStore interface {
	LeaseExpiry(ctx context.Context, region LeaseRegion) (time.Time, error)
}

// Store is the full persistence contract for the obligation service.
type Store interface {
	ObligationStore
	ScheduleStore
	ArchiveStore
	SettingsStore
	AuditStore
	LeaseStore
}
