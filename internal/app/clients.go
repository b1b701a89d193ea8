package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/persona-backend/internal/config"
	"github.com/yungbote/persona-backend/internal/data/cache"
	"github.com/yungbote/persona-backend/internal/inference/engine"
	"github.com/yungbote/persona-backend/internal/inference/engine/oaihttp"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

type Clients struct {
	// Gateway is nil when no API key is configured; GatewayErr says why.
	Gateway    engine.Gateway
	GatewayErr error
	Guard      cache.Guard
}

func wireClients(log *logger.Logger, cfg config.Config) (Clients, error) {
	log.Info("Wiring clients...")

	var out Clients

	// Completion gateway
	if err := cfg.RequireAPIKey(); err != nil {
		log.Warn("completion gateway disabled; analysis requests will fail", "error", err)
		out.GatewayErr = err
	} else {
		gw, err := oaihttp.New(oaihttp.Config{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  cfg.OpenAI.APIKey,
			Timeout: cfg.Retry.AttemptTimeout,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init completion gateway: %w", err)
		}
		out.Gateway = gw
	}

	// Redis
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		g, err := cache.NewRedisGuard(cfg.RedisAddr, cfg.InflightTTL, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis in-flight guard: %w", err)
		}
		out.Guard = g
	} else {
		out.Guard = cache.NewMemoryGuard(cfg.InflightTTL)
	}

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if closer, ok := c.Guard.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

