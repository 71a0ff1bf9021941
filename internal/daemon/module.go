// Package daemon composes the per-session sync daemon with fx.
package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/imagecache"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/seen"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	// Config replaces the config file and environment when set.
	Config *config.Config
	// Logger replaces the file logger when set.
	Logger *zap.Logger
	// Reset wipes the cache database before it is loaded.
	Reset bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStatus,
			provideLock,
			provideStore,
			provideCaches,
			provideSeen,
			provideKeeper,
			provideTransport,
			provideRemote,
			provideConnectivity,
			provideImages,
			provideCoordinator,
			provideEngine,
			provideSessionService,
			provideChatService,
			api.NewUserService,
			api.NewMediaService,
			provideCacheService,
			provideEventService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	if err := config.LoadEnv(session.EnvPath(p.SessionName), ".env"); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger.With(zap.String("session", p.SessionName)), nil
	}
	lvl, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, lvl)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStatus(b *bus.Bus) *status.Registry {
	return status.NewRegistry(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second
// daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
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
	if p.Reset {
		if err := db.Wipe(context.Background()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("reset cache: %w", err)
		}
		logger.Info("cache database wiped")
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCaches(db *store.DB, logger *zap.Logger) (*cache.ChatListCache, *cache.ChatDetailCache, *cache.UserDirectoryCache, error) {
	ctx := context.Background()
	chats := cache.NewChatList(db.Chats())
	details := cache.NewChatDetail(db.ChatDetails())
	users := cache.NewUserDirectory(db.Users())
	if err := chats.Load(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("load chat list cache: %w", err)
	}
	if err := details.Load(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("load chat detail cache: %w", err)
	}
	if err := users.Load(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("load user cache: %w", err)
	}
	if st, err := db.Stats(ctx); err == nil {
		logger.Info("caches loaded",
			zap.Int64("chats", st.Chats),
			zap.Int64("chat_details", st.ChatDetails),
			zap.Int64("users", st.Users),
			zap.Int64("seen", st.Seen))
	}
	return chats, details, users, nil
}

func provideSeen(db *store.DB) (*seen.Tracker, error) {
	t := seen.NewTracker(db)
	if err := t.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("load seen ledger: %w", err)
	}
	return t, nil
}

func provideKeeper(db *store.DB, logger *zap.Logger) (*session.Keeper, error) {
	k := session.NewKeeper(db)
	restored, err := k.Restore(context.Background())
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if restored {
		c, _ := k.Current()
		logger.Info("session restored", zap.String("username", c.Username))
	}
	return k, nil
}

func provideTransport(cfg *config.Config, logger *zap.Logger) *transport.Client {
	return transport.New(cfg.API.BaseURL,
		transport.WithTimeout(cfg.API.Timeout.Duration),
		transport.WithLogger(logger),
	)
}

func provideRemote(t *transport.Client, cfg *config.Config, logger *zap.Logger) *remote.Client {
	return remote.New(t, cfg.API.ImageTimeout.Duration, logger)
}

func provideConnectivity(cfg *config.Config) (transport.Connectivity, error) {
	return transport.NewProbe(cfg.API.BaseURL, 0)
}

func provideImages(p Params, cfg *config.Config, rc *remote.Client, logger *zap.Logger) (*imagecache.Loader, error) {
	dir := cfg.Images.Dir
	if dir == "" {
		dir = session.ImageCacheDir(p.SessionName)
	}
	c, err := imagecache.New(dir, imagecache.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return imagecache.NewLoader(c, rc, cfg.Images.Workers, logger), nil
}

type coordinatorIn struct {
	fx.In

	Config  *config.Config
	Remote  *remote.Client
	Conn    transport.Connectivity
	Chats   *cache.ChatListCache
	Details *cache.ChatDetailCache
	Users   *cache.UserDirectoryCache
	Seen    *seen.Tracker
	Session *session.Keeper
	Images  *imagecache.Loader
	Status  *status.Registry
	Bus     *bus.Bus
	Logger  *zap.Logger
}

func provideCoordinator(in coordinatorIn) *intsync.Coordinator {
	return intsync.NewCoordinator(intsync.Deps{
		Remote:  in.Remote,
		Conn:    in.Conn,
		Chats:   in.Chats,
		Details: in.Details,
		Users:   in.Users,
		Seen:    in.Seen,
		Session: in.Session,
		Images:  in.Images,
		Status:  in.Status,
		Bus:     in.Bus,
		Logger:  in.Logger,
		TTLs: intsync.TTLs{
			ChatList:   in.Config.Sync.ChatListTTL.Duration,
			ChatDetail: in.Config.Sync.ChatDetailTTL.Duration,
			Users:      in.Config.Sync.UsersTTL.Duration,
		},
		ImageTTL: in.Config.Images.TTL.Duration,
	})
}

func provideEngine(coord *intsync.Coordinator, t *seen.Tracker, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(coord, seen.NewDiffer(t, logger), b, cfg.Sync.ChatListInterval.Duration, logger)
}

func provideSessionService(p Params, coord *intsync.Coordinator, engine *intsync.Engine) *api.SessionService {
	return api.NewSessionService(p.SessionName, coord, engine)
}

func provideChatService(coord *intsync.Coordinator, cfg *config.Config, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(coord, cfg.Sync.ChatDetailInterval.Duration, logger)
}

func provideCacheService(coord *intsync.Coordinator, logger *zap.Logger) *api.CacheService {
	return api.NewCacheService(coord, logger)
}

func provideEventService(p Params, b *bus.Bus, logger *zap.Logger) *api.EventService {
	return api.NewEventService(b, p.SessionName, logger)
}

type lifecycleIn struct {
	fx.In

	Lifecycle fx.Lifecycle
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Coord     *intsync.Coordinator
	Engine    *intsync.Engine
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func registerLifecycle(in lifecycleIn) {
	logger := in.Logger
	ctx, cancel := context.WithCancel(context.Background())
	var unsub func()

	in.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start gRPC server in background.
			go func() {
				if err := in.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// The poller only runs while logged in.
			var events <-chan bus.Event
			events, unsub = in.Bus.Subscribe(bus.KindSessionChanged, 16)
			in.Engine.Start(ctx)
			if !in.Coord.Session().HasSession() {
				logger.Info("no session, waiting for login")
				in.Engine.Pause()
			} else {
				go validateSession(ctx, in.Coord, logger)
			}
			go followSession(events, in.Engine, logger)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			in.Engine.Stop()
			if unsub != nil {
				unsub()
			}
			in.Server.Stop(stopCtx)
			if err := in.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := in.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// followSession pauses the poller on logout and resumes it on login until
// events is closed.
func followSession(events <-chan bus.Event, engine *intsync.Engine, logger *zap.Logger) {
	for evt := range events {
		sc, ok := evt.Payload.(bus.SessionChanged)
		if !ok {
			continue
		}
		if sc.LoggedIn {
			engine.Resume()
		} else {
			engine.Pause()
		}
		logger.Debug("session changed", zap.Bool("logged_in", sc.LoggedIn))
	}
}

// validateSession checks a restored token with the server. Being offline is
// not a reason to drop it.
func validateSession(ctx context.Context, coord *intsync.Coordinator, logger *zap.Logger) {
	if !coord.Online(ctx) {
		return
	}
	valid, err := coord.ValidateSession(ctx)
	if err != nil {
		logger.Warn("session validation failed", zap.Error(err))
		return
	}
	if !valid {
		logger.Info("restored session rejected by server, logged out")
	}
}
