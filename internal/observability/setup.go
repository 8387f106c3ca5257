package observability

import (
	"context"

	"github.com/honeynil/skillswap-timebank/internal/config"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/observability"
)

// Setup installs logging, metrics and tracing from cfg and returns the tracer shutdown.
func Setup(cfg *config.Config) func(context.Context) error {
	observability.InitLogger(cfg.LogLevel)
	observability.InitMetrics(cfg.MetricsAddr)
	return observability.InitTracing(cfg.ServiceName, cfg.OTLPEndpoint)
}
