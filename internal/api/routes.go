package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rawblock/txrisk-engine/internal/config"
	"github.com/rawblock/txrisk-engine/internal/engine"
	"github.com/rawblock/txrisk-engine/internal/forest"
	"github.com/rawblock/txrisk-engine/internal/review"
	"github.com/rawblock/txrisk-engine/internal/rules"
)

// Handler bundles the services the REST surface fronts.
type Handler struct {
	engine  *engine.Engine
	queue   *review.Queue
	rules   *rules.Registry
	forests *forest.Manager
	wsHub   *Hub
}

// SetupRouter wires the full HTTP surface: evaluation, results, review
// queue, rules CRUD, model training, health, the websocket stream and
// Prometheus metrics.
func SetupRouter(eng *engine.Engine, queue *review.Queue, registry *rules.Registry,
	forests *forest.Manager, wsHub *Hub, cfg config.ServerConfig) *gin.Engine {

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	h := &Handler{engine: eng, queue: queue, rules: registry, forests: forests, wsHub: wsHub}

	limiter := NewRateLimiter(cfg.RateLimitPerMin, cfg.RateBurst)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	api.Use(AuthMiddleware(cfg.AuthToken))
	{
		api.POST("/evaluate", h.handleEvaluate)
		api.GET("/results/:txnId", h.handleGetResult)

		api.GET("/review", h.handleReviewList)
		api.GET("/review/counts", h.handleReviewCounts)
		api.POST("/review/:txnId/feedback", h.handleReviewFeedback)
		api.POST("/review/feedback", h.handleBulkFeedback)

		api.GET("/rules", h.handleListRules)
		api.GET("/rules/:ruleId", h.handleGetRule)
		api.PUT("/rules/:ruleId", h.handleSaveRule)
		api.DELETE("/rules/:ruleId", h.handleDeleteRule)

		api.POST("/models/:clientId/train", h.handleTrainModel)

		api.GET("/health", h.handleHealth)
		api.GET("/stream", wsHub.Subscribe)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// corsMiddleware allows the configured origins, or any origin when none are
// configured.
func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
