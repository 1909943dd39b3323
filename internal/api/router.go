package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/finsight/finsight/internal/marketdata"
	"github.com/finsight/finsight/internal/monitoring"
	"github.com/finsight/finsight/pkg/config"
	appErrors "github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/logging"
	"github.com/finsight/finsight/pkg/metrics"
)

// Repositories groups the guarded market-data repositories served by the API
type Repositories struct {
	Quotes          *marketdata.QuoteRepository
	Recommendations *marketdata.RecommendationRepository
	News            *marketdata.NewsRepository
}

// SetupRoutes builds the router: guarded market-data endpoints plus the
// monitoring egress (system health, alerts, Prometheus metrics)
func SetupRoutes(cfg *config.Config, monitor *monitoring.Service, prom *metrics.Metrics, repos *Repositories) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(correlationMiddleware())
	router.Use(requestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-Correlation-ID")
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthHandler(monitor))
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/alerts", alertsHandler(monitor))

	if prom != nil {
		router.GET("/metrics", prom.GinHandler())
	}

	if repos != nil {
		v1 := router.Group("/v1")
		v1.GET("/quote/:symbol", quoteHandler(repos.Quotes, prom))
		v1.GET("/recommendations/:symbol", recommendationsHandler(repos.Recommendations, prom))
		v1.GET("/news/:symbol", newsHandler(repos.News))
	}

	return router
}

func quoteHandler(repo *marketdata.QuoteRepository, prom *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		quote, err := repo.FindBySymbol(c.Request.Context(), c.Param("symbol"))
		if err != nil {
			if prom != nil {
				prom.RecordError("quote_api", string(appErrors.GetType(err)))
			}
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, quote)
	}
}

func recommendationsHandler(repo *marketdata.RecommendationRepository, prom *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		recommendations, err := repo.FindRecentBySymbol(c.Request.Context(), c.Param("symbol"), 10)
		if err != nil {
			if prom != nil {
				prom.RecordError("recommendations_api", string(appErrors.GetType(err)))
			}
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"recommendations": recommendations})
	}
}

func newsHandler(repo *marketdata.NewsRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		items := repo.FindRecentBySymbol(c.Request.Context(), c.Param("symbol"), 10)
		c.JSON(http.StatusOK, gin.H{"news": items})
	}
}

func statusForError(err error) int {
	switch appErrors.GetType(err) {
	case appErrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case appErrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case appErrors.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

// healthHandler serves the aggregated system health. Unhealthy systems get
// a 503 so load balancers can act on the status code alone.
func healthHandler(monitor *monitoring.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := monitor.GetSystemHealth()

		statusCode := http.StatusOK
		if health.Status == monitoring.StateUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, health)
	}
}

func alertsHandler(monitor *monitoring.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		alerts := monitor.GetAlerts()
		c.JSON(http.StatusOK, gin.H{
			"alerts": alerts,
			"count":  len(alerts),
		})
	}
}

// correlationMiddleware ensures every request carries a correlation ID
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.NewCorrelationID()
		}

		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	logger := logging.GetLogger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
			"http_method":      c.Request.Method,
			"http_path":        c.Request.URL.Path,
			"http_status":      c.Writer.Status(),
			"response_time_ms": time.Since(start).Milliseconds(),
		}).Info("HTTP request processed")
	}
}
