package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/remitwise/obligations/internal/obligations/storage"
)

// PutSchedule inserts one schedule row and returns its assigned id.
func (s *Store) PutSchedule(ctx context.Context, record storage.ScheduleRecord) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(record.Owner) == "" {
		return 0, fmt.Errorf("owner is required")
	}

	var id uint64
	err := s.inTx(ctx, []storage.LeaseRegion{storage.LeaseRegionLive}, func(tx *sql.Tx) error {
		var lastExecuted any
		if record.LastExecuted != nil {
			lastExecuted = toUnix(*record.LastExecuted)
		}
		result, err := tx.ExecContext(ctx, `
INSERT INTO schedules (owner, obligation_id, next_due, interval_secs, recurring, active, created_at, last_executed, missed_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, record.Owner, record.ObligationID, toUnix(record.NextDue), record.IntervalSecs,
			boolToInt(record.Recurring), boolToInt(record.Active), toUnix(record.CreatedAt),
			lastExecuted, record.MissedCount)
		if err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
		insertedID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("schedule insert id: %w", err)
		}
		id = uint64(insertedID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetSchedule loads one schedule row by id.
func (s *Store) GetSchedule(ctx context.Context, id uint64) (storage.ScheduleRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ScheduleRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ScheduleRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, owner, obligation_id, next_due, interval_secs, recurring, active, created_at, last_executed, missed_count
FROM schedules
WHERE id = ?
`, id)
	record, err := scanSchedule(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ScheduleRecord{}, storage.ErrNotFound
		}
		return storage.ScheduleRecord{}, fmt.Errorf("get schedule: %w", err)
	}
	return record, nil
}

// UpdateSchedule rewrites one schedule row in place.
func (s *Store) UpdateSchedule(ctx context.Context, record storage.ScheduleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	return s.inTx(ctx, []storage.LeaseRegion{storage.LeaseRegionLive}, func(tx *sql.Tx) error {
		return updateScheduleExec(ctx, tx, record)
	})
}

func updateScheduleExec(ctx context.Context, db dbtx, record storage.ScheduleRecord) error {
	var lastExecuted any
	if record.LastExecuted != nil {
		lastExecuted = toUnix(*record.LastExecuted)
	}
	result, err := db.ExecContext(ctx, `
UPDATE schedules
SET obligation_id = ?, next_due = ?, interval_secs = ?, recurring = ?, active = ?, last_executed = ?, missed_count = ?
WHERE id = ?
`, record.ObligationID, toUnix(record.NextDue), record.IntervalSecs, boolToInt(record.Recurring),
		boolToInt(record.Active), lastExecuted, record.MissedCount, record.ID)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update schedule rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListSchedulesByOwner returns every schedule row for one owner in id order.
func (s *Store) ListSchedulesByOwner(ctx context.Context, owner string) ([]storage.ScheduleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, owner, obligation_id, next_due, interval_secs, recurring, active, created_at, last_executed, missed_count
FROM schedules
WHERE owner = ?
ORDER BY id ASC
`, owner)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ListDueSchedules returns every active schedule whose due time has arrived.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]storage.ScheduleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, owner, obligation_id, next_due, interval_secs, recurring, active, created_at, last_executed, missed_count
FROM schedules
WHERE active = 1 AND next_due <= ?
ORDER BY id ASC
`, toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ActiveScheduleForObligation returns the active schedule bound to one
// obligation, if any.
func (s *Store) ActiveScheduleForObligation(ctx context.Context, obligationID uint64) (storage.ScheduleRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ScheduleRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ScheduleRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, owner, obligation_id, next_due, interval_secs, recurring, active, created_at, last_executed, missed_count
FROM schedules
WHERE obligation_id = ? AND active = 1
ORDER BY id ASC
LIMIT 1
`, obligationID)
	record, err := scanSchedule(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ScheduleRecord{}, storage.ErrNotFound
		}
		return storage.ScheduleRecord{}, fmt.Errorf("active schedule for obligation: %w", err)
	}
	return record, nil
}

// ApplyScheduleExecution persists one schedule advancement and its pay
// effect as a single transaction. When the pay spawns a successor cycle
// the schedule is rebound to the successor id so the next execution pays
// the then-current cycle rather than the already-settled one.
func (s *Store) ApplyScheduleExecution(ctx context.Context, record storage.ScheduleRecord, pay *storage.PayWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	return s.inTx(ctx, []storage.LeaseRegion{storage.LeaseRegionLive}, func(tx *sql.Tx) error {
		if pay != nil {
			successorID, err := applyPayWrite(ctx, tx, *pay)
			if err != nil {
				return err
			}
			if pay.Successor != nil {
				record.ObligationID = successorID
			}
		}
		return updateScheduleExec(ctx, tx, record)
	})
}

func collectSchedules(rows *sql.Rows) ([]storage.ScheduleRecord, error) {
	var records []storage.ScheduleRecord
	for rows.Next() {
		record, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return records, nil
}

func scanSchedule(scan func(dest ...any) error) (storage.ScheduleRecord, error) {
	var (
		record       storage.ScheduleRecord
		nextDue      int64
		recurring    int
		active       int
		createdAt    int64
		lastExecuted sql.NullInt64
	)
	if err := scan(
		&record.ID,
		&record.Owner,
		&record.ObligationID,
		&nextDue,
		&record.IntervalSecs,
		&recurring,
		&active,
		&createdAt,
		&lastExecuted,
		&record.MissedCount,
	); err != nil {
		return storage.ScheduleRecord{}, err
	}
	record.NextDue = fromUnix(nextDue)
	record.Recurring = recurring != 0
	record.Active = active != 0
	record.CreatedAt = fromUnix(createdAt)
	if lastExecuted.Valid {
		value := fromUnix(lastExecuted.Int64)
		record.LastExecuted = &value
	}
	return record, nil
}
