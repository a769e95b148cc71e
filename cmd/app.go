package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/inboxindex/internal/config"
	"github.com/teemow/inboxindex/internal/events"
	"github.com/teemow/inboxindex/internal/gmail"
	"github.com/teemow/inboxindex/internal/google"
	"github.com/teemow/inboxindex/internal/instrumentation"
	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/mailindex"
	"github.com/teemow/inboxindex/internal/rowstore"
)

// app holds the wired components of one process. Close releases them
// in reverse order of construction.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	rows     rowstore.Client
	manager  *google.Manager
	mail     *mailindex.Service
	closers  []func() error
}

// newApp wires configuration into stores, the OAuth manager and the
// mail service.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (rt *app, err error) {
	rt = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	rt.provider, err = instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	rt.onClose(func() error { return rt.provider.Shutdown(context.Background()) })
	metrics := rt.provider.Metrics()

	if rt.rows, err = rt.openRowStore(); err != nil {
		return nil, err
	}

	tokens, err := rt.openTokenStore()
	if err != nil {
		return nil, err
	}
	pending, err := rt.openPendingStore(ctx)
	if err != nil {
		return nil, err
	}

	rt.manager = google.NewManager(cfg.GoogleSettings(), tokens, pending,
		google.WithLogger(logging.WithComponent(logger, "oauth")),
		google.WithMetrics(metrics))

	publisher, err := rt.openPublisher()
	if err != nil {
		return nil, err
	}

	mailLogger := logging.WithComponent(logger, "mail")
	open := func(ctx context.Context) (mailindex.Mailbox, error) {
		hc, err := rt.manager.HTTPClient(ctx)
		if err != nil {
			return nil, err
		}
		return gmail.NewClient(ctx, hc, nil, gmail.WithMetrics(metrics), gmail.WithLogger(mailLogger))
	}
	rt.mail = mailindex.NewService(open, mailindex.NewStore(rt.rows),
		mailindex.WithPublisher(publisher),
		mailindex.WithMetrics(metrics),
		mailindex.WithLogger(mailLogger))

	return rt, nil
}

func (rt *app) onClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases every component and reports the first failure.
func (rt *app) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *app) openRowStore() (rowstore.Client, error) {
	switch rt.cfg.RowStore {
	case config.RowStorePostgREST:
		return rowstore.NewPostgREST(rt.cfg.SupabaseURL, rt.cfg.SupabaseKey)
	case config.RowStoreSQLite:
		db, err := rowstore.OpenSQLite(rt.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		rt.onClose(db.Close)
		return db, nil
	default:
		rt.logger.Warn("using the in-memory row store; nothing survives a restart")
		return rowstore.NewMemory(), nil
	}
}

func (rt *app) openTokenStore() (google.TokenStore, error) {
	logger := logging.WithComponent(rt.logger, "tokenstore")
	if rt.cfg.TokenStore == config.TokenStoreRowStore {
		return google.NewRowTokenStore(rt.rows, logger), nil
	}
	return google.NewFileTokenStore(rt.cfg.TokenFile, logger), nil
}

func (rt *app) openPendingStore(ctx context.Context) (google.PendingStore, error) {
	logger := logging.WithComponent(rt.logger, "pending")
	if rt.cfg.PendingStore != config.PendingStoreRedis {
		return google.NewFilePendingStore(rt.cfg.PendingDir, logger), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rt.cfg.Redis.Addr,
		Password: rt.cfg.Redis.Password,
		DB:       rt.cfg.Redis.DB,
	})
	rt.onClose(client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", rt.cfg.Redis.Addr, err)
	}
	return google.NewRedisPendingStore(client, google.DefaultPendingKeyPrefix, rt.cfg.PendingTTL, logger), nil
}

func (rt *app) openPublisher() (events.Publisher, error) {
	if rt.cfg.NATSURL == "" {
		return events.Noop{}, nil
	}
	pub, err := events.Connect(rt.cfg.NATSURL, rt.cfg.NATSStream, logging.WithComponent(rt.logger, "events"))
	if err != nil {
		return nil, err
	}
	rt.onClose(func() error {
		pub.Close()
		return nil
	})
	return pub, nil
}
