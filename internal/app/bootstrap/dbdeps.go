package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/config"
	"github.com/dalemusser/addfriend/internal/friendreq"
)

// DBDeps holds the backends. Exactly one of Service and Remote is set.
type DBDeps struct {
	Redis   *redis.Client // nil unless redis_url is set in local mode
	Service *friendreq.Service
	Remote  *friendreq.Client
}

// ConnectDB builds either a remote friend-service client or a local Service
// over Redis or memory.
func ConnectDB(ctx context.Context, core *config.CoreConfig, cfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	if cfg.Remote() {
		if cfg.RedisURL != "" {
			logger.Warn("redis_url ignored when friend_service_url is set")
		}
		logger.Info("using remote friend service", zap.String("url", cfg.FriendServiceURL))
		return DBDeps{Remote: friendreq.NewClient(friendreq.ClientConfig{
			BaseURL: cfg.FriendServiceURL,
			APIKey:  cfg.FriendServiceAPIKey,
			Timeout: cfg.FriendServiceTimeout,
		})}, nil
	}

	var deps DBDeps
	var store friendreq.Store
	if cfg.RedisURL != "" {
		timeout := core.DBConnectTimeout
		if dl, ok := ctx.Deadline(); ok {
			timeout = timeUntil(dl)
		}
		client, err := friendreq.ConnectRedis(cfg.RedisURL, timeout)
		if err != nil {
			return DBDeps{}, fmt.Errorf("redis: %w", err)
		}
		deps.Redis = client
		store = friendreq.NewRedisStore(client, cfg.RedisKeyPrefix)
		logger.Info("connected to redis", zap.String("prefix", cfg.RedisKeyPrefix))
	} else {
		store = friendreq.NewMemoryStore()
		logger.Info("using in-memory friend store")
	}

	var notifier friendreq.Notifier = friendreq.NopNotifier{}
	if cfg.Mail.Host != "" {
		notifier = friendreq.NewMailNotifier(cfg.Mail)
		logger.Info("mail notifications enabled", zap.String("smtp_host", cfg.Mail.Host), zap.Int("smtp_port", cfg.Mail.Port))
	}

	deps.Service = friendreq.NewService(store, notifier, logger)
	return deps, nil
}

// EnsureSchema checks the store and seeds users and friendships. Remote mode has nothing to
// prepare.
func EnsureSchema(ctx context.Context, _ *config.CoreConfig, cfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Service == nil {
		return nil
	}
	if err := deps.Service.Store().Ping(ctx); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	n, err := deps.Service.Seed(ctx, cfg.SeedUsers)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	if len(cfg.SeedUsers) > 0 {
		logger.Info("seeded users", zap.Int("created", n), zap.Int("configured", len(cfg.SeedUsers)))
	}
	if err := deps.Service.SeedFriends(ctx, cfg.SeedFriends); err != nil {
		return fmt.Errorf("seed friends: %w", err)
	}
	if len(cfg.SeedFriends) > 0 {
		logger.Info("seeded friendships", zap.Int("pairs", len(cfg.SeedFriends)))
	}
	return nil
}

// Shutdown closes the Redis client if one was opened.
func Shutdown(_ context.Context, deps DBDeps, logger *zap.Logger) error {
	if deps.Redis == nil {
		return nil
	}
	if err := deps.Redis.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	logger.Info("redis closed")
	return nil
}

func timeUntil(t time.Time) time.Duration {
	d := time.Until(t)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
