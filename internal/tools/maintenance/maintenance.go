// Package maintenance implements operator sweeps and reports for the
// obligations store.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/remitwise/obligations/internal/obligations/app"
	"github.com/remitwise/obligations/internal/obligations/storage"
	"github.com/remitwise/obligations/internal/obligations/storage/sqlite"
	"github.com/remitwise/obligations/internal/platform/identity"
)

const defaultAuditLimit = 50

// Config holds maintenance command configuration.
type Config struct {
	DBPath        string        `env:"REMITWISE_DB_PATH"`
	Timeout       time.Duration `env:"REMITWISE_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	Caller        string
	ArchiveSweep  bool
	ArchiveAge    time.Duration
	AuditReport   bool
	AuditAfterSeq uint64
	AuditLimit    int
	LeaseReport   bool
	JSONOutput    bool
}

type envConfig struct {
	DBPath  string        `env:"REMITWISE_DB_PATH"`
	Timeout time.Duration `env:"REMITWISE_MAINTENANCE_TIMEOUT" envDefault:"10m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		DBPath:     envCfg.DBPath,
		Timeout:    envCfg.Timeout,
		AuditLimit: defaultAuditLimit,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "obligations.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to obligations sqlite database (default: REMITWISE_DB_PATH or data/obligations.db)")
	fs.StringVar(&cfg.Caller, "caller", "", "principal performing the sweep")
	fs.BoolVar(&cfg.ArchiveSweep, "archive-sweep", false, "move settled obligations into the archive region")
	fs.DurationVar(&cfg.ArchiveAge, "archive-age", 0, "only archive obligations settled at least this long ago")
	fs.BoolVar(&cfg.AuditReport, "audit-report", false, "print the audit journal")
	fs.Uint64Var(&cfg.AuditAfterSeq, "audit-after-seq", 0, "print journal entries after this sequence")
	fs.IntVar(&cfg.AuditLimit, "audit-limit", cfg.AuditLimit, "max journal entries to print")
	fs.BoolVar(&cfg.LeaseReport, "lease-report", false, "print live and archive lease expiries")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if !cfg.ArchiveSweep && !cfg.AuditReport && !cfg.LeaseReport {
		return errors.New("select at least one of -archive-sweep, -audit-report, or -lease-report")
	}
	if cfg.ArchiveSweep && cfg.Caller == "" {
		return errors.New("-archive-sweep requires -caller")
	}
	return nil
}

type report struct {
	Archived *uint32               `json:"archived,omitempty"`
	Audit    []storage.AuditRecord `json:"audit,omitempty"`
	Leases   map[string]time.Time  `json:"leases,omitempty"`
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "close store: %v\n", err)
		}
	}()

	var rep report
	if cfg.ArchiveSweep {
		service := app.NewService(store, identity.AllowAll{}, zerolog.Nop(), nil)
		archived, err := service.ArchivePaid(ctx, cfg.Caller, time.Now().UTC().Add(-cfg.ArchiveAge))
		if err != nil {
			return fmt.Errorf("archive sweep: %w", err)
		}
		rep.Archived = &archived
	}
	if cfg.AuditReport {
		events, err := store.ListAuditEvents(ctx, cfg.AuditAfterSeq, cfg.AuditLimit)
		if err != nil {
			return fmt.Errorf("audit report: %w", err)
		}
		rep.Audit = events
	}
	if cfg.LeaseReport {
		rep.Leases = map[string]time.Time{}
		for _, region := range []storage.LeaseRegion{storage.LeaseRegionLive, storage.LeaseRegionArchive} {
			expiry, err := store.LeaseExpiry(ctx, region)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("lease report: %w", err)
			}
			if err == nil {
				rep.Leases[string(region)] = expiry
			}
		}
	}

	if cfg.JSONOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return printReport(out, rep)
}

func printReport(out io.Writer, rep report) error {
	if rep.Archived != nil {
		if _, err := fmt.Fprintf(out, "archived %d settled obligations\n", *rep.Archived); err != nil {
			return err
		}
	}
	for _, event := range rep.Audit {
		if _, err := fmt.Fprintf(out, "%d\t%s\t%s\t%d\t%s\t%s\n",
			event.Seq, event.At.UTC().Format(time.RFC3339), event.Kind, event.SubjectID, event.Owner, event.Detail); err != nil {
			return err
		}
	}
	for region, expiry := range rep.Leases {
		if _, err := fmt.Fprintf(out, "lease %s expires %s\n", region, expiry.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}
