package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/metsync/internal/fetch"
	"github.com/wolfeidau/metsync/internal/logger"
	"github.com/wolfeidau/metsync/internal/records"
	"github.com/wolfeidau/metsync/internal/refresh"
	"github.com/wolfeidau/metsync/internal/telemetry"
)

type RefreshCmd struct {
	Log      string        `short:"l" help:"path to a YAML logging configuration file" env:"METSYNC_LOG_CONFIG"`
	Interval time.Duration `help:"refresh repeatedly at this interval instead of once" default:"0s" env:"METSYNC_REFRESH_INTERVAL"`
	Timeout  time.Duration `help:"maximum duration of a single refresh" default:"30m" env:"METSYNC_REFRESH_TIMEOUT"`
	Workers  int           `help:"number of federations refreshed concurrently" default:"1" env:"METSYNC_REFRESH_WORKERS"`
	Policy   string        `help:"entity failure policy (fail-fast or isolate)" default:"fail-fast" enum:"fail-fast,isolate" env:"METSYNC_REFRESH_POLICY"`

	// Fetch configuration
	NoFetch      bool          `help:"use stored documents only, never download" default:"false"`
	CacheDir     string        `help:"directory for the HTTP cache, in-memory when empty" default:"" env:"METSYNC_CACHE_DIR"`
	FetchTimeout time.Duration `help:"timeout for a single metadata download" default:"2m" env:"METSYNC_FETCH_TIMEOUT"`
	FetchTries   uint          `help:"attempts for a failing metadata download" default:"4" env:"METSYNC_FETCH_TRIES"`
}

func (c *RefreshCmd) Run(ctx context.Context, kctx *kong.Context, globals *Globals) error {
	log, closer, err := c.logger(globals)
	if err != nil {
		if errors.Is(err, logger.ErrLogConfigNotFound) {
			fmt.Fprintf(kctx.Stdout, "File '%s' does not exist.\n", c.Log)
			_ = kctx.PrintUsage(false)
		}
		return err
	}
	defer closer.Close()
	setupLogger(log)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting refresh")

	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{ServiceName: "metsync", Version: globals.Version})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		shutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}()

	policy, err := records.ParsePolicy(c.Policy)
	if err != nil {
		return err
	}

	backend, err := globals.Backend.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	opts := []refresh.Option{
		refresh.WithLogger(log),
		refresh.WithWorkers(c.Workers),
	}
	if !c.NoFetch {
		opts = append(opts, refresh.WithFetcher(fetch.New(fetch.Config{
			CacheDir:  c.CacheDir,
			Timeout:   c.FetchTimeout,
			MaxTries:  c.FetchTries,
			UserAgent: userAgent(globals.Version),
		})))
	}

	refresher := refresh.New(backend.Registry(records.WithPolicy(policy)), opts...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Interval > 0 {
		log.Info().Dur("interval", c.Interval).Msg("Refreshing on schedule")
		return refresher.RunEvery(ctx, c.Interval, c.Timeout)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	report, err := refresher.Run(runCtx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	if report.Failed() > 0 {
		log.Warn().Int("failures", report.Failed()).Msg("Some records could not be refreshed")
	}
	return nil
}

// logger builds the logger from --log when given, otherwise the default
// stderr logger.
func (c *RefreshCmd) logger(globals *Globals) (zerolog.Logger, io.Closer, error) {
	if c.Log == "" {
		return logger.Setup(globals.Debug), io.NopCloser(nil), nil
	}

	cfg, err := logger.LoadConfig(c.Log)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	if globals.Debug {
		cfg.Level = "debug"
	}
	return cfg.Build()
}
