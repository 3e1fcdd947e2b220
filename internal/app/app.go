// Package app wires configuration, backends and HTTP handlers together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/scrollable/internal/auth"
	"github.com/ayush/scrollable/internal/config"
	"github.com/ayush/scrollable/internal/events"
	"github.com/ayush/scrollable/internal/media"
	"github.com/ayush/scrollable/internal/posts"
	"github.com/ayush/scrollable/internal/store"
	"github.com/ayush/scrollable/internal/telemetry"
)

// Store is everything the handlers need from the database driver.
type Store interface {
	auth.UserStore
	posts.PostStore
	posts.UserDirectory
}

// Backends are the already-connected dependencies of the HTTP layer.
type Backends struct {
	Store   Store
	Files   media.FileStore
	Bucket  string
	Revoker auth.Revoker
	Events  events.Publisher
}

// App owns the process-wide resources and the HTTP handler.
type App struct {
	cfg     *config.Config
	log     *logrus.Logger
	handler http.Handler
	closers []func(context.Context) error
}

// New connects to every configured backend. Resources opened before a
// failure are released.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}
	if err := a.connect(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	shutdownTracing, err := telemetry.Init(ctx, cfg.OtelEndpoint, cfg.Env)
	if err != nil {
		return err
	}
	a.onClose(shutdownTracing)

	var b Backends
	if b.Store, err = a.openStore(ctx); err != nil {
		return err
	}
	if b.Files, b.Bucket, err = a.openFiles(ctx); err != nil {
		return err
	}

	b.Revoker = auth.NoopRevoker{}
	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		a.onClose(func(context.Context) error { return rdb.Close() })
		b.Revoker = auth.NewRedisRevoker(rdb)
		log.WithField("addr", cfg.RedisAddr).Info("token revocation enabled")
	}

	b.Events = events.Noop{}
	if cfg.NatsURL != "" {
		nc, err := events.Connect(cfg.NatsURL)
		if err != nil {
			return err
		}
		a.onClose(func(context.Context) error { return drain(nc) })
		b.Events = events.NewNatsPublisher(nc)
		log.WithField("url", cfg.NatsURL).Info("event publishing enabled")
	}

	a.handler = NewRouter(cfg, log, b)
	return nil
}

func (a *App) onClose(fn func(context.Context) error) { a.closers = append(a.closers, fn) }

func (a *App) openStore(ctx context.Context) (Store, error) {
	switch a.cfg.DBDriver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().
			ApplyURI(a.cfg.MongoURI).
			SetServerSelectionTimeout(5*time.Second))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		a.onClose(client.Disconnect)
		if err := client.Ping(connectCtx, nil); err != nil {
			return nil, fmt.Errorf("mongo ping: %w", err)
		}
		s := store.NewMongoStore(client.Database(a.cfg.MongoDB))
		if err := s.EnsureIndexes(connectCtx); err != nil {
			return nil, err
		}
		a.log.WithField("db", a.cfg.MongoDB).Info("connected to mongodb")
		return s, nil

	case config.DriverPostgres:
		poolCfg, err := pgxpool.ParseConfig(a.cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres config: %w", err)
		}
		poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		a.onClose(func(context.Context) error { pool.Close(); return nil })
		s := store.NewPostgresStore(pool)
		if err := s.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		a.log.Info("connected to postgres")
		return s, nil

	default:
		a.log.Warn("using in-memory store; data is lost on exit")
		return store.NewMemoryStore(), nil
	}
}

func (a *App) openFiles(ctx context.Context) (media.FileStore, string, error) {
	if a.cfg.MediaDriver != config.DriverMinio {
		a.log.Warn("using in-memory media store")
		return store.NewMemoryFileStore(), "", nil
	}
	s, err := store.NewMinioStore(ctx, store.MinioOptions{
		Endpoint:   a.cfg.MinioEndpoint,
		AccessKey:  a.cfg.MinioAccessKey,
		SecretKey:  a.cfg.MinioSecretKey,
		Bucket:     a.cfg.MinioBucket,
		UseSSL:     a.cfg.MinioUseSSL,
		PublicRead: true,
	})
	if err != nil {
		return nil, "", err
	}
	a.log.WithField("bucket", s.Bucket()).Info("connected to object storage")
	return s, s.Bucket(), nil
}

func drain(nc *nats.Conn) error {
	if err := nc.Drain(); err != nil {
		nc.Close()
		return err
	}
	return nil
}

func (a *App) Handler() http.Handler { return a.handler }

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
