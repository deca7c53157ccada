package verification

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/thelesson/lessonbill/internal/clock"
	"github.com/thelesson/lessonbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewStore picks redis when an address is configured and falls back to the
// in-memory store otherwise.
func NewStore(cfg config.Config, clk clock.Clock, log *zap.Logger) Store {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Warn("verification store running in memory, codes will not survive restarts")
		return NewMemoryStore(clk)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	return NewRedisStore(client)
}

var Module = fx.Module("verification",
	fx.Provide(NewStore),
)
