// Package sqlite provides SQLite-backed persistence for obligation state.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/remitwise/obligations/internal/obligations/storage"
	"github.com/remitwise/obligations/internal/obligations/storage/sqlite/migrations"
	"github.com/remitwise/obligations/internal/platform/storage/cursor"
	sqlitemigrate "github.com/remitwise/obligations/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

const (
	leaseLowWater      = 24 * time.Hour
	leaseLiveWindow    = 30 * 24 * time.Hour
	leaseArchiveWindow = 180 * 24 * time.Hour
)

// Store provides SQLite-backed persistence for obligation state.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// dbtx abstracts *sql.DB and *sql.Tx for shared statement helpers.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toUnix(value time.Time) int64 {
	return value.UTC().Unix()
}

func fromUnix(value int64) time.Time {
	return time.Unix(value, 0).UTC()
}

// Open opens an obligation SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, clock: time.Now}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) nowUTC() time.Time {
	return s.clock().UTC()
}

// touchLease refreshes a region lease inside the caller's transaction when
// the remaining lifetime is below the low-water threshold.
func touchLease(ctx context.Context, db dbtx, region storage.LeaseRegion, now time.Time) error {
	window := leaseLiveWindow
	if region == storage.LeaseRegionArchive {
		window = leaseArchiveWindow
	}

	var expiresAt int64
	err := db.QueryRowContext(ctx, `SELECT expires_at FROM store_leases WHERE region = ?`, string(region)).Scan(&expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read lease: %w", err)
	default:
		if fromUnix(expiresAt).Sub(now) >= leaseLowWater {
			return nil
		}
	}

	if _, err := db.ExecContext(ctx, `
INSERT INTO store_leases (region, expires_at) VALUES (?, ?)
ON CONFLICT(region) DO UPDATE SET expires_at = excluded.expires_at
`, string(region), toUnix(now.Add(window))); err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	return nil
}

// LeaseExpiry returns the absolute expiry of one store region's lease.
func (s *Store) LeaseExpiry(ctx context.Context, region storage.LeaseRegion) (time.Time, error) {
	if err := s.ready(); err != nil {
		return time.Time{}, err
	}
	var expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT expires_at FROM store_leases WHERE region = ?`, string(region)).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, storage.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read lease: %w", err)
	}
	return fromUnix(expiresAt), nil
}

// inTx runs fn inside one transaction with lease upkeep for the given regions.
func (s *Store) inTx(ctx context.Context, regions []storage.LeaseRegion, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback write: %v", cause, rollbackErr)
		}
		return cause
	}

	if err := fn(tx); err != nil {
		return rollbackWith(err)
	}
	now := s.nowUTC()
	for _, region := range regions {
		if err := touchLease(ctx, tx, region, now); err != nil {
			return rollbackWith(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write: %w", err)
	}
	return nil
}

// PutObligation inserts one obligation row and returns its assigned id.
func (s *Store) PutObligation(ctx context.Context, record storage.ObligationRecord) (uint64, error) {
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
		insertedID, err := insertObligation(ctx, tx, record)
		if err != nil {
			return err
		}
		id = insertedID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertObligation(ctx context.Context, db dbtx, record storage.ObligationRecord) (uint64, error) {
	var paidAt any
	if record.PaidAt != nil {
		paidAt = toUnix(*record.PaidAt)
	}
	result, err := db.ExecContext(ctx, `
INSERT INTO obligations (owner, description, amount, currency, due_date, recurring, frequency_days, paid, paid_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, record.Owner, record.Description, record.Amount, record.Currency,
		toUnix(record.DueDate), boolToInt(record.Recurring), record.FrequencyDays,
		boolToInt(record.Paid), paidAt, toUnix(record.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert obligation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("obligation insert id: %w", err)
	}
	return uint64(id), nil
}

// GetObligation loads one obligation row by id.
func (s *Store) GetObligation(ctx context.Context, id uint64) (storage.ObligationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ObligationRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ObligationRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, owner, description, amount, currency, due_date, recurring, frequency_days, paid, paid_at, created_at
FROM obligations
WHERE id = ?
`, id)
	record, err := scanObligation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ObligationRecord{}, storage.ErrNotFound
		}
		return storage.ObligationRecord{}, fmt.Errorf("get obligation: %w", err)
	}
	return record, nil
}

// PayObligation marks one obligation paid and inserts its successor in the
// same transaction. Returns the successor id, zero when none was written.
func (s *Store) PayObligation(ctx context.Context, write storage.PayWrite) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	var successorID uint64
	err := s.inTx(ctx, []storage.LeaseRegion{storage.LeaseRegionLive}, func(tx *sql.Tx) error {
		id, err := applyPayWrite(ctx, tx, write)
		if err != nil {
			return err
		}
		successorID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return successorID, nil
}

// PayObligations applies every settlement write in one transaction.
func (s *Store) PayObligations(ctx context.Context, writes []storage.PayWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	return s.inTx(ctx, []storage.LeaseRegion{storage.LeaseRegionLive}, func(tx *sql.Tx) error {
		for _, write := range writes {
			if _, err := applyPayWrite(ctx, tx, write); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyPayWrite(ctx context.Context, db dbtx, write storage.PayWrite) (uint64, error) {
	result, err := db.ExecContext(ctx, `
UPDATE obligations SET paid = 1, paid_at = ? WHERE id = ? AND paid = 0
`, toUnix(write.PaidAt), write.ObligationID)
	if err != nil {
		return 0, fmt.Errorf("mark obligation paid: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark obligation paid rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		scanErr := db.QueryRowContext(ctx, `SELECT 1 FROM obligations WHERE id = ?`, write.ObligationID).Scan(&exists)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		if scanErr != nil {
			return 0, fmt.Errorf("check obligation: %w", scanErr)
		}
		return 0, storage.ErrConflict
	}

	if write.Successor == nil {
		return 0, nil
	}
	return insertObligation(ctx, db, *write.Successor)
}

// CancelObligation deletes one obligation row outright and deactivates the
// given schedule when non-zero.
func (s *Store) CancelObligation(ctx context.Context, id uint64, scheduleID uint64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	return s.inTx(ctx, []storage.LeaseRegion{storage.LeaseRegionLive}, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM obligations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete obligation: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete obligation rows affected: %w", err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}

		if scheduleID != 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE schedules SET active = 0 WHERE id = ?`, scheduleID); err != nil {
				return fmt.Errorf("deactivate schedule: %w", err)
			}
		}
		return nil
	})
}

// ListUnpaid pages through one owner's unpaid obligations in id order.
func (s *Store) ListUnpaid(ctx context.Context, owner string, pageSize int, pageToken string) (storage.ObligationPage, error) {
	filter := "unpaid:" + owner
	return s.listObligations(ctx, owner, pageSize, pageToken, filter, `
SELECT id, owner, description, amount, currency, due_date, recurring, frequency_days, paid, paid_at, created_at
FROM obligations
WHERE owner = ? AND paid = 0 AND id > ?
ORDER BY id ASC
LIMIT ?
`, nil)
}

// ListOverdue pages through one owner's unpaid obligations whose due date
// has strictly passed.
func (s *Store) ListOverdue(ctx context.Context, owner string, now time.Time, pageSize int, pageToken string) (storage.ObligationPage, error) {
	filter := "overdue:" + owner
	cutoff := toUnix(now)
	return s.listObligations(ctx, owner, pageSize, pageToken, filter, `
SELECT id, owner, description, amount, currency, due_date, recurring, frequency_days, paid, paid_at, created_at
FROM obligations
WHERE owner = ? AND paid = 0 AND due_date < ? AND id > ?
ORDER BY id ASC
LIMIT ?
`, []any{cutoff})
}

func (s *Store) listObligations(ctx context.Context, owner string, pageSize int, pageToken, filter, query string, extraArgs []any) (storage.ObligationPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.ObligationPage{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ObligationPage{}, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return storage.ObligationPage{}, fmt.Errorf("owner is required")
	}
	if pageSize <= 0 {
		return storage.ObligationPage{}, fmt.Errorf("page size must be greater than zero")
	}

	var afterID uint64
	if pageToken = strings.TrimSpace(pageToken); pageToken != "" {
		decoded, err := cursor.Decode(pageToken)
		if err != nil {
			return storage.ObligationPage{}, fmt.Errorf("decode page token: %w", err)
		}
		if err := cursor.ValidateFilterHash(decoded, filter); err != nil {
			return storage.ObligationPage{}, fmt.Errorf("validate page token: %w", err)
		}
		afterID = decoded.LastID
	}

	args := []any{owner}
	args = append(args, extraArgs...)
	args = append(args, afterID, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.ObligationPage{}, fmt.Errorf("list obligations: %w", err)
	}
	defer rows.Close()

	var records []storage.ObligationRecord
	for rows.Next() {
		record, err := scanObligation(rows.Scan)
		if err != nil {
			return storage.ObligationPage{}, fmt.Errorf("scan obligation: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return storage.ObligationPage{}, fmt.Errorf("iterate obligations: %w", err)
	}

	page := storage.ObligationPage{Obligations: records}
	if len(records) > pageSize {
		page.Obligations = records[:pageSize]
		token, err := cursor.Encode(cursor.New(page.Obligations[pageSize-1].ID, filter))
		if err != nil {
			return storage.ObligationPage{}, fmt.Errorf("encode page token: %w", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// ListUnpaidAmounts returns every unpaid amount for one owner. Summation is
// left to the caller so overflow can be detected explicitly.
func (s *Store) ListUnpaidAmounts(ctx context.Context, owner string) ([]int64, error) {
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
SELECT amount FROM obligations WHERE owner = ? AND paid = 0 ORDER BY id ASC
`, owner)
	if err != nil {
		return nil, fmt.Errorf("list unpaid amounts: %w", err)
	}
	defer rows.Close()

	var amounts []int64
	for rows.Next() {
		var amount int64
		if err := rows.Scan(&amount); err != nil {
			return nil, fmt.Errorf("scan unpaid amount: %w", err)
		}
		amounts = append(amounts, amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unpaid amounts: %w", err)
	}
	return amounts, nil
}

// ListAllObligations returns every live obligation row in id order.
func (s *Store) ListAllObligations(ctx context.Context) ([]storage.ObligationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, owner, description, amount, currency, due_date, recurring, frequency_days, paid, paid_at, created_at
FROM obligations
ORDER BY id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list all obligations: %w", err)
	}
	defer rows.Close()

	var records []storage.ObligationRecord
	for rows.Next() {
		record, err := scanObligation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan obligation: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate obligations: %w", err)
	}
	return records, nil
}

// ArchivePaidObligations copies settled rows into the archive region and
// removes them from the live table, refreshing both leases.
func (s *Store) ArchivePaidObligations(ctx context.Context, owner string, before time.Time, archivedAt time.Time) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return 0, fmt.Errorf("owner is required")
	}

	var count uint32
	regions := []storage.LeaseRegion{storage.LeaseRegionLive, storage.LeaseRegionArchive}
	err := s.inTx(ctx, regions, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
INSERT INTO archived_obligations (id, owner, description, amount, currency, due_date, recurring, frequency_days, paid, paid_at, created_at, archived_at)
SELECT id, owner, description, amount, currency, due_date, recurring, frequency_days, paid, paid_at, created_at, ?
FROM obligations
WHERE owner = ? AND paid = 1 AND paid_at IS NOT NULL AND paid_at < ?
`, toUnix(archivedAt), owner, toUnix(before))
		if err != nil {
			return fmt.Errorf("copy to archive: %w", err)
		}
		moved, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("archive rows affected: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
DELETE FROM obligations WHERE owner = ? AND paid = 1 AND paid_at IS NOT NULL AND paid_at < ?
`, owner, toUnix(before)); err != nil {
			return fmt.Errorf("delete archived rows: %w", err)
		}
		count = uint32(moved)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetArchivedObligation loads one archived row by its original id.
func (s *Store) GetArchivedObligation(ctx context.Context, id uint64) (storage.ObligationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ObligationRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.ObligationRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, owner, description, amount, currency, due_date, recurring, frequency_days, paid, paid_at, created_at
FROM archived_obligations
WHERE id = ?
`, id)
	record, err := scanObligation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ObligationRecord{}, storage.ErrNotFound
		}
		return storage.ObligationRecord{}, fmt.Errorf("get archived obligation: %w", err)
	}
	return record, nil
}

func scanObligation(scan func(dest ...any) error) (storage.ObligationRecord, error) {
	var (
		record        storage.ObligationRecord
		dueDate       int64
		recurring     int
		paid          int
		paidAt        sql.NullInt64
		createdAt     int64
		frequencyDays int64
	)
	if err := scan(
		&record.ID,
		&record.Owner,
		&record.Description,
		&record.Amount,
		&record.Currency,
		&dueDate,
		&recurring,
		&frequencyDays,
		&paid,
		&paidAt,
		&createdAt,
	); err != nil {
		return storage.ObligationRecord{}, err
	}
	record.DueDate = fromUnix(dueDate)
	record.Recurring = recurring != 0
	record.FrequencyDays = uint32(frequencyDays)
	record.Paid = paid != 0
	if paidAt.Valid {
		value := fromUnix(paidAt.Int64)
		record.PaidAt = &value
	}
	record.CreatedAt = fromUnix(createdAt)
	return record, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
