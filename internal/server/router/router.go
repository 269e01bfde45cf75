package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/metrics"
	"github.com/mamadbah2/shellsale/internal/server/handlers"
)

// Options lists the handlers mounted on the engine. Nil handlers are skipped.
type Options struct {
	Sales   *handlers.SalesHandler
	Webhook *handlers.WebhookHandler
	Metrics *metrics.Recorder
	Logger  *zap.Logger
}

// New wires the Gin engine with required routes and middlewares.
func New(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	if opts.Sales != nil {
		opts.Sales.Register(r)
	}
	if opts.Webhook != nil {
		opts.Webhook.Register(r)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	logger.Info("router initialized")
	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
