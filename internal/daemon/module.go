// Package daemon wires one ingestion run: it takes the archive lock, opens
// the store and the archive, runs the pipeline and exposes the run's state
// over a gRPC health endpoint until the run ends.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/matheus3301/mailingest/internal/archive"
	"github.com/matheus3301/mailingest/internal/archive/mailtree"
	"github.com/matheus3301/mailingest/internal/bus"
	"github.com/matheus3301/mailingest/internal/config"
	"github.com/matheus3301/mailingest/internal/identity"
	"github.com/matheus3301/mailingest/internal/ingest"
	"github.com/matheus3301/mailingest/internal/lock"
	"github.com/matheus3301/mailingest/internal/logging"
	"github.com/matheus3301/mailingest/internal/paths"
	"github.com/matheus3301/mailingest/internal/resolve"
	"github.com/matheus3301/mailingest/internal/status"
	"github.com/matheus3301/mailingest/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the command line inputs of one run.
type Params struct {
	ArchivePath string
	ImportID    string // empty = generate
	ConfigPath  string // empty = paths.ConfigPath()
	OrgDomains  []string
	BatchSize   int    // 0 = config value
	DBPath      string // empty = config value, then paths.DBPath()
	SocketPath  string // optional override for testing; empty = use default
}

// Run identifies the run being executed.
type Run struct {
	Archive  string
	Key      string
	ImportID string
}

// Module returns the fx module for one ingestion run, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideRun,
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideArchive,
			provideResolver,
			providePipeline,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideRun(p Params) (*Run, error) {
	if p.ArchivePath == "" {
		return nil, errors.New("archive path is required")
	}
	key, err := paths.ArchiveKey(p.ArchivePath)
	if err != nil {
		return nil, err
	}
	id := p.ImportID
	if id == "" {
		id = uuid.New().String()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid import id %q: %w", id, err)
	}
	return &Run{Archive: p.ArchivePath, Key: key, ImportID: id}, nil
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = paths.ConfigPath()
	}
	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, err
	}
	cfg.OrgDomains = append(cfg.OrgDomains, p.OrgDomains...)
	if p.BatchSize != 0 {
		cfg.BatchSize = p.BatchSize
	}
	if p.DBPath != "" {
		cfg.DBPath = p.DBPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath = paths.DBPath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(run *Run, cfg *config.Config) (*zap.Logger, error) {
	if err := paths.EnsureRunDir(run.Key); err != nil {
		return nil, err
	}
	return logging.New(paths.LogPath(run.Key), run.ImportID, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(run *Run, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring archive lock", zap.String("archive", run.Archive))
	l, err := lock.Acquire(paths.RunDir(run.Key), run.ImportID)
	if err != nil {
		return nil, err
	}
	logger.Info("archive lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// The lock is requested so that no run touches the store or the archive
// before it holds the archive.
func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.DBPath))
	return db, nil
}

func provideArchive(run *Run, _ *lock.Lock, logger *zap.Logger) (archive.Archive, error) {
	a, err := mailtree.Open(run.Archive)
	if err != nil {
		return nil, err
	}
	logger.Info("archive opened", zap.String("archive", run.Archive))
	return a, nil
}

func provideResolver(db *store.DB, cfg *config.Config, logger *zap.Logger) *resolve.Resolver {
	return resolve.New(db, cfg.OrgDomains, logger.Named("resolve"))
}

func providePipeline(db *store.DB, r *resolve.Resolver, b *bus.Bus, cfg *config.Config, run *Run, logger *zap.Logger) *ingest.Pipeline {
	return ingest.NewPipeline(db, r, b, logger.Named("ingest"), ingest.Options{
		ImportID:  run.ImportID,
		BatchSize: cfg.BatchSize,
		BodyLimit: cfg.BodyLimit,
		Threader:  identity.Threader{SingleStrip: !cfg.StripAllReplyMarkers},
	})
}

func registerLifecycle(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	run *Run,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	arc archive.Archive,
	pipeline *ingest.Pipeline,
	machine *status.Machine,
	b *bus.Bus,
	logger *zap.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			watchProgress(ctx, b, srv, logger)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if err := db.CreateImport(run.ImportID, filepath.Base(run.Archive)); err != nil {
				return fmt.Errorf("create import: %w", err)
			}
			if err := machine.Transition(status.Ingesting); err != nil {
				return err
			}

			go func() {
				defer close(done)
				code := execute(ctx, run, db, arc, pipeline, machine, logger)
				if err := sd.Shutdown(fx.ExitCode(code)); err != nil {
					logger.Warn("shutdown request failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				logger.Warn("run did not stop in time")
			}
			srv.Stop(stopCtx)
			if err := arc.Close(); err != nil {
				logger.Warn("error closing archive", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

// execute runs the pipeline and records the outcome on the import. It
// returns the process exit code.
func execute(ctx context.Context, run *Run, db *store.DB, arc archive.Archive, pipeline *ingest.Pipeline, machine *status.Machine, logger *zap.Logger) int {
	stats, runErr := pipeline.Run(ctx, arc)

	final, importStatus, code := status.Completed, store.ImportCompleted, 0
	if runErr != nil {
		logger.Error("ingestion run failed", zap.Error(runErr))
		final, importStatus, code = status.Failed, store.ImportFailed, 1
	}
	if err := db.FinishImport(run.ImportID, importStatus, stats.Processed); err != nil {
		logger.Error("failed to record import result", zap.Error(err))
		final, code = status.Failed, 1
	}
	if err := machine.Transition(final); err != nil {
		logger.Warn("status transition failed", zap.Error(err))
	}

	logger.Info("import finished",
		zap.String("status", string(importStatus)),
		zap.Int64("processed", stats.Processed),
		zap.Int64("errors", stats.Errors),
		zap.Int64("inserted", stats.Inserted),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("failed_batches", stats.FailedBatches),
		zap.Int64("dropped_records", stats.DroppedRecords),
		zap.Int64("resolve_errors", stats.ResolveErrors))
	return code
}

// watchProgress mirrors status changes into the health server and logs
// run progress until ctx is done.
func watchProgress(ctx context.Context, b *bus.Bus, srv *Server, logger *zap.Logger) {
	ch, unsub := b.Subscribe("", 256)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				switch p := evt.Payload.(type) {
				case status.StatusChange:
					srv.SetStatus(p.To)
					logger.Info("run status changed", zap.String("from", string(p.From)), zap.String("to", string(p.To)))
				case ingest.BatchResult:
					if evt.Kind == bus.KindBatchFlushed {
						logger.Info("batch flushed", zap.Int("size", p.Size), zap.Int64("inserted", p.Inserted))
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
