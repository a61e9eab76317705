package router

import (
	"github.com/gin-gonic/gin"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"github.com/leasehold/backend/internal/interfaces/http/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultMaxBodySize caps request bodies when EngineConfig leaves it unset
const DefaultMaxBodySize int64 = 1 << 20

// EngineConfig configures the global middleware stack
type EngineConfig struct {
	Logger         *zap.Logger
	Tracing        middleware.TracingConfig
	Metrics        *middleware.HTTPMetrics
	Gatherer       prometheus.Gatherer // serves /metrics when set
	MaxBodySize    int64
	TrustedProxies []string
}

// NewEngine builds a gin engine with the middleware every request passes
// through, in order: request id, access log, panic recovery, tracing,
// metrics, body limit.
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	if cfg.Tracing.Enabled {
		engine.Use(middleware.Tracing(cfg.Tracing))
	}
	if cfg.Metrics != nil {
		engine.Use(cfg.Metrics.Middleware())
	}
	engine.Use(middleware.BodyLimit(cfg.MaxBodySize))

	if cfg.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return engine
}
