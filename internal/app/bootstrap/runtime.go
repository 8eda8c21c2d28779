package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wa-retell-relay/internal/channels/evolution"
	appconfig "github.com/wolfman30/wa-retell-relay/internal/config"
	"github.com/wolfman30/wa-retell-relay/internal/conversation/retellclient"
	"github.com/wolfman30/wa-retell-relay/internal/events"
	"github.com/wolfman30/wa-retell-relay/internal/http/handlers"
	"github.com/wolfman30/wa-retell-relay/internal/observability/metrics"
	"github.com/wolfman30/wa-retell-relay/internal/relay"
	"github.com/wolfman30/wa-retell-relay/internal/session"
	"github.com/wolfman30/wa-retell-relay/pkg/logging"
)

// BuildRedisClient returns a client for REDIS_ADDR, or nil when Redis is not
// configured or (with verify) does not answer a ping.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || !cfg.UseRedis() {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildProcessedTracker picks the Redis tracker when a client is available and
// falls back to the in-process one otherwise.
func BuildProcessedTracker(client *redis.Client, cfg *appconfig.Config, logger *logging.Logger) handlers.ProcessedTracker {
	if logger == nil {
		logger = logging.Default()
	}
	ttl := events.DefaultProcessedTTL
	if cfg != nil && cfg.ProcessedEventTTL > 0 {
		ttl = cfg.ProcessedEventTTL
	}
	if client != nil {
		logger.Info("duplicate suppression backed by redis", "ttl", ttl.String())
		return events.NewRedisProcessedStore(client, ttl)
	}
	logger.Info("duplicate suppression backed by memory", "ttl", ttl.String())
	return events.NewMemoryProcessedStore(ttl)
}

// BuildRelay wires both upstream clients, the session store and the relay service.
func BuildRelay(cfg *appconfig.Config, logger *logging.Logger, m *metrics.RelayMetrics) (*relay.Service, session.Store, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	conv, err := retellclient.New(retellclient.Config{
		BaseURL: cfg.RetellBaseURL,
		APIKey:  cfg.RetellAPIKey,
		Timeout: cfg.RetellTimeout,
		Logger:  logger.With("upstream", "retell").Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: retell client: %w", err)
	}
	delivery, err := evolution.NewClient(evolution.ClientConfig{
		BaseURL:    cfg.EvolutionURL,
		Token:      cfg.EvolutionToken,
		Instance:   cfg.EvolutionInstance,
		AuthScheme: cfg.EvolutionAuthScheme,
		Timeout:    cfg.EvolutionTimeout,
		Logger:     logger.With("upstream", "evolution"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: evolution client: %w", err)
	}

	store := session.NewMemoryStore()
	svc, err := relay.NewService(relay.Config{
		Resolver:     session.NewResolver(store, session.WithCreateTimeout(cfg.RetellTimeout)),
		Conversation: conv,
		Delivery:     delivery,
		AgentID:      cfg.RetellAgentID,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: relay service: %w", err)
	}
	return svc, store, nil
}
