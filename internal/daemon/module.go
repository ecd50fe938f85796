package daemon

import (
	"context"
	"fmt"

	"github.com/maclap/cashtrack/internal/api"
	"github.com/maclap/cashtrack/internal/bus"
	"github.com/maclap/cashtrack/internal/config"
	"github.com/maclap/cashtrack/internal/lock"
	"github.com/maclap/cashtrack/internal/logging"
	"github.com/maclap/cashtrack/internal/netstate"
	"github.com/maclap/cashtrack/internal/outbox"
	"github.com/maclap/cashtrack/internal/profile"
	"github.com/maclap/cashtrack/internal/remote"
	"github.com/maclap/cashtrack/internal/status"
	"github.com/maclap/cashtrack/internal/store"
	cashsync "github.com/maclap/cashtrack/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Config     *config.Config
	SocketPath string       // optional override for testing; empty = use default
	Remote     remote.Store // optional override for testing; nil = use Config.Remote
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideQueue,
			provideRemote,
			provideMonitor,
			provideCoordinator,
			provideWriter,
			provideTracker,
			provideRecordService,
			provideSyncService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile, logging.Options{
		Level:      p.Config.Log.Level,
		MaxSizeMB:  p.Config.Log.MaxSizeMB,
		MaxBackups: p.Config.Log.MaxBackups,
		MaxAgeDays: p.Config.Log.MaxAgeDays,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock")
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideQueue opens the offline queue. The lock parameter orders it after
// lock acquisition. An unusable queue does not stop the daemon: it keeps
// serving with every queue operation failing as unavailable.
func provideQueue(p Params, _ *lock.Lock, logger *zap.Logger) *store.Queue {
	path := profile.QueuePath(p.Profile)
	q := store.NewQueue(path)
	if err := q.Initialize(context.Background()); err != nil {
		logger.Error("offline storage unavailable; running degraded", zap.Error(err), zap.String("path", path))
		return q
	}
	schema := q.Schema()
	logger.Info("queue initialized",
		zap.String("path", path),
		zap.Uint("schema_version", schema.Version),
		zap.Bool("migrated", schema.Applied),
	)
	return q
}

func provideRemote(p Params, logger *zap.Logger) (remote.Store, error) {
	if p.Remote != nil {
		return p.Remote, nil
	}
	rc := p.Config.Remote
	switch rc.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory remote store; synced records are not persisted")
		return remote.NewMemory(), nil
	case config.BackendFirestore, "":
		fs, err := remote.NewFirestore(context.Background(), remote.FirestoreConfig{
			ProjectID:       rc.ProjectID,
			DatabaseID:      rc.DatabaseID,
			CredentialsFile: rc.CredentialsFile,
			Endpoint:        rc.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("firestore remote configured", zap.String("project", rc.ProjectID), zap.String("database", rc.DatabaseID))
		return fs, nil
	}
	return nil, fmt.Errorf("unknown remote backend %q", rc.Backend)
}

func provideMonitor(p Params, b *bus.Bus, logger *zap.Logger) (*netstate.Monitor, error) {
	nc := p.Config.Network
	mode, err := netstate.ParseMode(nc.Mode)
	if err != nil {
		return nil, err
	}
	opts := netstate.Options{
		Interval: nc.ProbeInterval,
		Mode:     mode,
	}
	if nc.ProbeAddr != "" {
		opts.Probe = netstate.DialProber(nc.ProbeAddr, nc.ProbeTimeout)
	} else {
		// Nothing to probe: assume reachable unless forced offline.
		opts.InitialOnline = true
	}
	return netstate.NewMonitor(b, logger.Named("netstate"), opts), nil
}

func coordinatorOptions(cfg *config.Config) outbox.Options {
	return outbox.Options{
		Interval:       cfg.Sync.Interval,
		RetryBudget:    cfg.Sync.RetryBudget,
		AttemptTimeout: cfg.Sync.AttemptTimeout,
		DropExhausted:  !cfg.Sync.DeadLetter,
	}
}

func provideCoordinator(p Params, q *store.Queue, rs remote.Store, m *netstate.Monitor, b *bus.Bus, logger *zap.Logger) *outbox.Coordinator {
	return outbox.NewCoordinator(q, rs, m, b, logger.Named("outbox"), coordinatorOptions(p.Config))
}

func provideWriter(p Params, q *store.Queue, rs remote.Store, m *netstate.Monitor, b *bus.Bus, logger *zap.Logger) *outbox.Writer {
	return outbox.NewWriter(q, rs, m, b, logger.Named("writer"), coordinatorOptions(p.Config))
}

func provideTracker(q *store.Queue, b *bus.Bus, logger *zap.Logger) *cashsync.Tracker {
	return cashsync.NewTracker(q, b, logger.Named("sync"))
}

func provideRecordService(w *outbox.Writer) *api.RecordService {
	return api.NewRecordService(w)
}

func provideSyncService(p Params, q *store.Queue, c *outbox.Coordinator, m *netstate.Monitor, machine *status.Machine, tr *cashsync.Tracker, b *bus.Bus) *api.SyncService {
	return api.NewSyncService(p.Profile, q, c, m, machine, tr, b)
}

type lifecycleDeps struct {
	fx.In

	Server      *Server
	Lock        *lock.Lock
	Queue       *store.Queue
	Monitor     *netstate.Monitor
	Coordinator *outbox.Coordinator
	Tracker     *cashsync.Tracker
	Machine     *status.Machine
	Bus         *bus.Bus
	Logger      *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Follow before the first probe so its transition is not missed.
			status.Follow(ctx, d.Bus, d.Machine, d.Logger)
			d.Tracker.Start(ctx)

			d.Monitor.Start(ctx)
			if d.Monitor.Online() && d.Machine.Current() == status.Offline {
				_ = d.Machine.Transition(status.Online)
			}

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			d.Coordinator.Start(ctx)
			d.Logger.Info("daemon started",
				zap.Bool("online", d.Monitor.Online()),
				zap.String("network_mode", string(d.Monitor.Mode())),
			)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			d.Coordinator.Stop()
			d.Monitor.Stop()
			d.Tracker.Stop()
			cancel()
			d.Server.Stop(stopCtx)
			if err := d.Queue.Close(); err != nil {
				d.Logger.Warn("error closing queue", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			return nil
		},
	})
}
