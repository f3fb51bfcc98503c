package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/remitwise/obligations/internal/obligations/storage"
)

const (
	settingAdmin        = "admin"
	settingPaused       = "paused"
	settingOpPausedPref = "op_paused:"
)

func (s *Store) getSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT v FROM settings WHERE k = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) putSetting(ctx context.Context, key, value string) error {
	return s.inTx(ctx, []storage.LeaseRegion{storage.LeaseRegionLive}, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO settings (k, v) VALUES (?, ?)
ON CONFLICT(k) DO UPDATE SET v = excluded.v
`, key, value); err != nil {
			return fmt.Errorf("write setting %s: %w", key, err)
		}
		return nil
	})
}

// Admin returns the administrative principal, empty when unset.
func (s *Store) Admin(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.ready(); err != nil {
		return "", err
	}
	return s.getSetting(ctx, settingAdmin)
}

// SetAdmin stores the administrative principal.
func (s *Store) SetAdmin(ctx context.Context, admin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	admin = strings.TrimSpace(admin)
	if admin == "" {
		return fmt.Errorf("admin principal is required")
	}
	return s.putSetting(ctx, settingAdmin, admin)
}

// Paused reports the global pause flag.
func (s *Store) Paused(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	value, err := s.getSetting(ctx, settingPaused)
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// SetPaused stores the global pause flag.
func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	value := "0"
	if paused {
		value = "1"
	}
	return s.putSetting(ctx, settingPaused, value)
}

// OperationPaused reports one entry in the per-operation pause map.
func (s *Store) OperationPaused(ctx context.Context, op string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}
	op = strings.TrimSpace(op)
	if op == "" {
		return false, fmt.Errorf("operation is required")
	}
	value, err := s.getSetting(ctx, settingOpPausedPref+op)
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// SetOperationPaused stores one entry in the per-operation pause map.
func (s *Store) SetOperationPaused(ctx context.Context, op string, paused bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	op = strings.TrimSpace(op)
	if op == "" {
		return fmt.Errorf("operation is required")
	}
	value := "0"
	if paused {
		value = "1"
	}
	return s.putSetting(ctx, settingOpPausedPref+op, value)
}

// AppendAuditEvent inserts one journal row. The sequence is assigned by
// the store and only ever grows.
func (s *Store) AppendAuditEvent(ctx context.Context, record storage.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(record.Kind) == "" {
		return fmt.Errorf("audit kind is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO audit_events (kind, owner, subject_id, detail, at)
VALUES (?, ?, ?, ?, ?)
`, record.Kind, record.Owner, record.SubjectID, record.Detail, toUnix(record.At)); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns journal rows after the given sequence in order.
func (s *Store) ListAuditEvents(ctx context.Context, afterSeq uint64, limit int) ([]storage.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT seq, kind, owner, subject_id, detail, at
FROM audit_events
WHERE seq > ?
ORDER BY seq ASC
LIMIT ?
`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var records []storage.AuditRecord
	for rows.Next() {
		var (
			record storage.AuditRecord
			at     int64
		)
		if err := rows.Scan(&record.Seq, &record.Kind, &record.Owner, &record.SubjectID, &record.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		record.At = fromUnix(at)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return records, nil
}
