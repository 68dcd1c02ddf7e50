package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/cache"
	"github.com/iliyamo/campus-events/internal/config"
	"github.com/iliyamo/campus-events/internal/database"
	"github.com/iliyamo/campus-events/internal/oauth"
	"github.com/iliyamo/campus-events/internal/queue"
	"github.com/iliyamo/campus-events/internal/repository"
	"github.com/iliyamo/campus-events/internal/repository/memstore"
	"github.com/iliyamo/campus-events/internal/repository/mongostore"
	"github.com/iliyamo/campus-events/internal/service"
	"github.com/iliyamo/campus-events/internal/storage"
)

// stores groups the repositories of the selected STORE_DRIVER.
type stores struct {
	users  repository.UserStore
	tokens repository.TokenStore
	events repository.EventStore
	close  func()
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		ms, err := mongostore.NewStore(cfg.MongoURI, cfg.MongoDB, logger)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		users := ms.Users()
		return &stores{
			users:  users,
			tokens: users,
			events: ms.Events(),
			close: func() {
				if err := ms.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Warn().Err(err).Msg("mongo disconnect")
				}
			},
		}, nil
	case config.DriverMemory:
		logger.Warn().Msg("STORE_DRIVER=memory: data is lost on restart")
		users := memstore.NewUsers()
		return &stores{users: users, tokens: users, events: memstore.NewEvents(), close: func() {}}, nil
	default:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		return &stores{
			users:  repository.NewUserRepo(db),
			tokens: repository.NewTokenRepo(db),
			events: repository.NewEventRepo(db),
			close:  func() { _ = db.Close() },
		}, nil
	}
}

// buildCache returns the response cache store, or nil when caching is off.
func buildCache(cfg config.Config, rdb *redis.Client, logger zerolog.Logger) cache.Store {
	if !cfg.Cache.Enabled {
		return nil
	}
	if cfg.Cache.Driver == "redis" {
		if rdb != nil {
			return cache.NewInstrumented(cache.NewRedisStore(rdb), "redis")
		}
		logger.Warn().Msg("CACHE_DRIVER=redis but redis is unavailable, using memory cache")
	}
	return cache.NewInstrumented(cache.NewMemoryStore(cfg.Cache.MaxEntries), "memory")
}

// buildImages returns the MinIO thumbnail store, or a no-op store when
// MinIO is not configured or unreachable.
func buildImages(ctx context.Context, cfg config.Config, logger zerolog.Logger) storage.ImageStore {
	if cfg.MinIO.Endpoint == "" {
		logger.Info().Msg("MINIO_ENDPOINT not set, thumbnails are disabled")
		return storage.Nop{}
	}
	m, err := storage.NewMinIO(cfg.MinIO, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("minio unavailable, thumbnails are disabled")
		return storage.Nop{}
	}
	if err := m.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Str("bucket", cfg.MinIO.Bucket).Msg("could not ensure bucket")
	}
	return m
}

func buildVerifier(cfg config.Config) service.IdentityVerifier {
	if cfg.GoogleClientID == "" {
		return nil
	}
	return oauth.NewGoogleVerifier(cfg.GoogleClientID)
}

// buildNotifier wires cache invalidation and change publishing. The caller
// closes the returned publisher.
func buildNotifier(cfg config.Config, store cache.Store, logger zerolog.Logger) (*service.Notifier, queue.Publisher) {
	pub := queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
	return service.NewNotifier(store, service.EventsCachePrefix(cfg.Cache.Prefix), pub, logger), pub
}
