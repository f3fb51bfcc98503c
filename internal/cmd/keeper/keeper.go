// Package keeper parses keeper command flags and launches the schedule keeper.
package keeper

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/status"

	"github.com/remitwise/obligations/internal/obligations/app"
	"github.com/remitwise/obligations/internal/obligations/domain"
	entrypoint "github.com/remitwise/obligations/internal/platform/cmd"
	apperrors "github.com/remitwise/obligations/internal/platform/errors"
	"github.com/remitwise/obligations/internal/platform/identity"
)

// Config holds keeper command configuration.
type Config struct {
	DBPath       string        `env:"REMITWISE_KEEPER_DB_PATH" envDefault:"data/obligations.db"`
	CronSpec     string        `env:"REMITWISE_KEEPER_CRON" envDefault:"@every 1m"`
	RunOnStart   bool          `env:"REMITWISE_KEEPER_RUN_ON_START" envDefault:"true"`
	SweepTimeout time.Duration `env:"REMITWISE_KEEPER_SWEEP_TIMEOUT" envDefault:"1m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The obligations SQLite database path")
	fs.StringVar(&cfg.CronSpec, "cron", cfg.CronSpec, "Cron spec driving schedule sweeps")
	fs.BoolVar(&cfg.RunOnStart, "run-on-start", cfg.RunOnStart, "Sweep once immediately on startup")
	fs.DurationVar(&cfg.SweepTimeout, "sweep-timeout", cfg.SweepTimeout, "Per-sweep execution timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the keeper loop and blocks until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceKeeper, func(ctx context.Context) error {
		log := zerolog.New(os.Stderr).With().Timestamp().Str("service", entrypoint.ServiceKeeper).Logger()

		runtime, err := app.Open(cfg.DBPath, identity.AllowAll{}, log)
		if err != nil {
			return fmt.Errorf("open runtime: %w", err)
		}
		defer func() {
			if err := runtime.Close(); err != nil {
				log.Warn().Err(err).Msg("close runtime")
			}
		}()

		sweep := func() {
			sweepOnce(ctx, runtime.Service, log, cfg.SweepTimeout)
		}
		if cfg.RunOnStart {
			sweep()
		}

		c := cron.New()
		if _, err := c.AddFunc(cfg.CronSpec, sweep); err != nil {
			return fmt.Errorf("register cron spec %q: %w", cfg.CronSpec, err)
		}
		c.Start()
		log.Info().Str("cron", cfg.CronSpec).Str("db", cfg.DBPath).Msg("keeper started")

		<-ctx.Done()
		stopped := c.Stop()
		select {
		case <-stopped.Done():
		case <-time.After(cfg.SweepTimeout):
			log.Warn().Msg("keeper stop timed out waiting for in-flight sweep")
		}
		log.Info().Msg("keeper stopped")
		return nil
	})
}

// sweepOnce runs a single due-schedule sweep under its own timeout.
func sweepOnce(ctx context.Context, service *domain.Service, log zerolog.Logger, timeout time.Duration) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	sweepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	executed, err := service.ExecuteDueSchedules(sweepCtx)
	if errors.Is(err, domain.ErrServicePaused) || errors.Is(err, domain.ErrOperationPaused) {
		log.Info().Msg("schedule sweeps are paused")
		return
	}
	if err != nil {
		event := log.Error().Err(err)
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			event = event.Str("reason", string(appErr.Code)).
				Str("grpc_code", status.Code(appErr.ToGRPCStatus()).String())
		}
		event.Msg("execute due schedules")
		return
	}
	if len(executed) > 0 {
		log.Info().Int("executed", len(executed)).Msg("swept due schedules")
	}
}
