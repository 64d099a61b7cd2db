package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"ripcast/internal/config"
	"ripcast/internal/deps"
	"ripcast/internal/extractor"
	"ripcast/internal/history"
	"ripcast/internal/jobs"
	"ripcast/internal/logging"
	"ripcast/internal/ratelimit"
	"ripcast/internal/token"
	"ripcast/internal/validate"
)

// historyRetention bounds how long archived rows are kept before pruning.
const historyRetention = 30 * 24 * time.Hour

// Daemon wires the job registry, token service, rate limiter, extractor
// runner, and API server together and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *jobs.Registry
	tokens   *token.Service
	limiter  *ratelimit.Limiter
	runner   *extractor.Runner
	archive  *history.Store

	server *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running            bool
	PID                int
	ActiveJobs         int
	TerminalJobs       int
	RunningExtractions int
	MaxExtractions     int
	History            map[string]int
	Dependencies       []deps.Status
	LockFilePath       string
	HistoryDBPath      string
}

// Option configures optional daemon dependencies.
type Option func(*settings)

type settings struct {
	executor extractor.Executor
}

// WithExecutor injects a custom extractor executor (primarily for tests).
func WithExecutor(exec extractor.Executor) Option {
	return func(s *settings) {
		s.executor = exec
	}
}

// New constructs a daemon with all subsystems initialized. The caller owns
// Close.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	var cfgOpts settings
	for _, opt := range opts {
		opt(&cfgOpts)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	archive, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	tokens := token.NewService(cfg.TokenTTL(), logger)
	limiter := ratelimit.New(
		cfg.LimitWindow(),
		cfg.Limits.MaxRequests,
		cfg.Limits.MaxJobs,
		cfg.Limits.BurstThreshold,
		cfg.BurstDelay(),
	)

	registry := jobs.NewRegistry(cfg.JobRetention(), cfg.StreamGrace(), logger,
		jobs.WithFinishedHook(func(snap jobs.Snapshot) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := archive.RecordFinished(ctx, snap); err != nil {
				logger.Warn("history archive write failed",
					logging.String("job_id", snap.ID), logging.Error(err))
			}
		}),
	)

	var clientOpts []extractor.Option
	if cfgOpts.executor != nil {
		clientOpts = append(clientOpts, extractor.WithExecutor(cfgOpts.executor))
	}
	client, err := extractor.New(cfg.Extractor.Binary, cfg.ExtractorTimeout(), cfg.Paths.WorkDir, clientOpts...)
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("init extractor client: %w", err)
	}
	runner := extractor.NewRunner(registry, tokens, client, cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Extractor.MaxConcurrent, logger)

	validator := validate.New(
		cfg.Validation.AllowedDomains,
		cfg.Validation.AllowedFormats,
		cfg.Validation.DefaultFormat,
		cfg.Validation.MaxNameLength,
		cfg.Validation.MaxBatchSize,
	)

	lockPath := filepath.Join(cfg.Paths.StateDir, "ripcastd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		registry: registry,
		tokens:   tokens,
		limiter:  limiter,
		runner:   runner,
		archive:  archive,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, logger, validator)
	return d, nil
}

// Start acquires the daemon lock, starts the API server, and launches the
// background sweepers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another ripcast daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.server.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	go d.sweepLoop(d.ctx, d.cfg.RetentionSweepInterval(), d.sweepJobs)
	go d.sweepLoop(d.ctx, d.cfg.TokenSweepInterval(), d.sweepTokens)
	go d.sweepLoop(d.ctx, d.cfg.LimitWindow(), d.pruneLimiter)
	go d.sweepLoop(d.ctx, d.cfg.RetentionSweepInterval(), d.sweepArtifacts)

	d.running.Store(true)
	d.logger.Info("ripcast daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the API server, stops the sweepers, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("ripcast daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.archive != nil {
		return d.archive.Close()
	}
	return nil
}

// Status returns the current daemon status. History stats failures degrade to
// an empty map rather than failing the whole call.
func (d *Daemon) Status(ctx context.Context) Status {
	active, terminal := d.registry.Counts()
	status := Status{
		Running:            d.running.Load(),
		PID:                os.Getpid(),
		ActiveJobs:         active,
		TerminalJobs:       terminal,
		RunningExtractions: d.runner.Running(),
		MaxExtractions:     d.cfg.Extractor.MaxConcurrent,
		LockFilePath:       d.lockPath,
		HistoryDBPath:      d.archive.Path(),
	}
	if stats, err := d.archive.Stats(ctx); err == nil {
		status.History = stats
	}
	status.Dependencies = deps.CheckBinaries(deps.Default(d.cfg.Extractor.Binary))
	status.Dependencies = append(status.Dependencies, deps.CheckFFmpegForExtractor(d.cfg.Extractor.Binary))
	return status
}

// sweepLoop runs fn on a fixed interval until ctx ends. A failed pass is
// logged and the loop keeps going.
func (d *Daemon) sweepLoop(ctx context.Context, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				d.logger.Warn("sweep pass failed", logging.Error(err))
			}
		}
	}
}

func (d *Daemon) sweepJobs(ctx context.Context) error {
	if removed := d.registry.Sweep(); removed > 0 {
		d.logger.Debug("retention sweep", logging.Int("jobs_removed", removed))
	}
	cutoff := time.Now().Add(-historyRetention)
	if _, err := d.archive.PruneOlderThan(ctx, cutoff); err != nil {
		return err
	}
	return nil
}

func (d *Daemon) sweepTokens(context.Context) error {
	d.tokens.Sweep()
	return nil
}

func (d *Daemon) pruneLimiter(context.Context) error {
	d.limiter.Prune()
	return nil
}

// sweepArtifacts removes finished output files older than the configured age
// cap. Subdirectories are left alone; the output directory is flat.
func (d *Daemon) sweepArtifacts(context.Context) error {
	maxAge := d.cfg.ArtifactMaxAge()
	if maxAge <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(d.cfg.Paths.OutputDir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(d.cfg.Paths.OutputDir, entry.Name())
		if err := os.Remove(path); err != nil {
			d.logger.Warn("artifact removal failed", logging.String("artifact", entry.Name()), logging.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		d.logger.Info("artifact sweep", logging.Int("removed", removed))
	}
	return nil
}
