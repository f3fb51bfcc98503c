package keeper

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/remitwise/obligations/internal/obligations/app"
	"github.com/remitwise/obligations/internal/obligations/domain"
	"github.com/remitwise/obligations/internal/obligations/storage"
	"github.com/remitwise/obligations/internal/obligations/storage/sqlite"
	"github.com/remitwise/obligations/internal/platform/identity"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("keeper", flag.ContinueOnError)
	t.Setenv("REMITWISE_KEEPER_DB_PATH", "env/obligations.db")
	t.Setenv("REMITWISE_KEEPER_CRON", "@every 5m")

	cfg, err := ParseConfig(fs, []string{"-sweep-timeout", "30s", "-run-on-start=false"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "env/obligations.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "env/obligations.db")
	}
	if cfg.CronSpec != "@every 5m" {
		t.Fatalf("cron = %q, want %q", cfg.CronSpec, "@every 5m")
	}
	if cfg.SweepTimeout != 30*time.Second {
		t.Fatalf("sweep timeout = %v, want 30s", cfg.SweepTimeout)
	}
	if cfg.RunOnStart {
		t.Fatal("run-on-start flag should override the default")
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("keeper", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "data/obligations.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/obligations.db")
	}
	if cfg.CronSpec != "@every 1m" {
		t.Fatalf("cron = %q, want %q", cfg.CronSpec, "@every 1m")
	}
	if !cfg.RunOnStart {
		t.Fatal("expected run-on-start default true")
	}
	if cfg.SweepTimeout != time.Minute {
		t.Fatalf("sweep timeout = %v, want 1m", cfg.SweepTimeout)
	}
}

func TestSweepOnceExecutesDueSchedules(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_000_000, 0).UTC()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "obligations.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	ctx := context.Background()

	setup := app.NewService(store, identity.AllowAll{}, zerolog.Nop(), func() time.Time { return start.Add(-time.Hour) })
	created, err := setup.Create(ctx, domain.CreateInput{
		Owner: "GALPHA", Amount: 100, DueDate: start, Recurring: true, FrequencyDays: 30,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := setup.CreateSchedule(ctx, domain.CreateScheduleInput{
		Owner: "GALPHA", ObligationID: created.ID, NextDue: start, Interval: 24 * time.Hour,
	}); err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	service := app.NewService(store, identity.AllowAll{}, zerolog.Nop(), func() time.Time { return start.Add(time.Hour) })
	sweepOnce(ctx, service, zerolog.Nop(), time.Minute)

	obligation, err := service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get obligation: %v", err)
	}
	if !obligation.Paid {
		t.Fatal("expected sweep to settle the due obligation")
	}
}

func TestSweepOnceToleratesPause(t *testing.T) {
	t.Parallel()

	at := time.Unix(1_000_000, 0).UTC()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "obligations.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	ctx := context.Background()

	service := app.NewService(store, identity.AllowAll{}, zerolog.Nop(), func() time.Time { return at })
	if err := service.SetAdmin(ctx, "GADMIN", "GADMIN"); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if err := service.Pause(ctx, "GADMIN"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// A paused service is a quiet no-op, not a sweep failure.
	sweepOnce(ctx, service, zerolog.Nop(), time.Minute)
}

func TestSweepOnceLogsDomainFailureWithGRPCCode(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0).UTC()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "obligations.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	ctx := context.Background()

	// A one-second schedule left untouched for longer than a uint32 of
	// seconds overflows the missed counter during catch-up.
	if _, err := store.PutSchedule(ctx, storage.ScheduleRecord{
		Owner: "GALPHA", ObligationID: 1, NextDue: start,
		IntervalSecs: 1, Recurring: true, Active: true, CreatedAt: start,
	}); err != nil {
		t.Fatalf("put schedule: %v", err)
	}

	farFuture := time.Unix(5_000_000_000, 0).UTC()
	service := app.NewService(store, identity.AllowAll{}, zerolog.Nop(), func() time.Time { return farFuture })

	var buf bytes.Buffer
	sweepOnce(ctx, service, zerolog.New(&buf), time.Minute)

	logged := buf.String()
	if !strings.Contains(logged, "execute due schedules") {
		t.Fatalf("expected sweep failure logged, got %q", logged)
	}
	if !strings.Contains(logged, "ARITHMETIC_OVERFLOW") {
		t.Fatalf("expected machine-readable reason in log, got %q", logged)
	}
	if !strings.Contains(logged, "grpc_code") {
		t.Fatalf("expected grpc status code in log, got %q", logged)
	}
}
