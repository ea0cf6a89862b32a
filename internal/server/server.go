// Package server exposes the dashboard HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/ddos-defense-dashboard/internal/attackmode"
	"github.com/nshruti113/ddos-defense-dashboard/internal/backend"
	"github.com/nshruti113/ddos-defense-dashboard/internal/config"
	"github.com/nshruti113/ddos-defense-dashboard/internal/hub"
	"github.com/nshruti113/ddos-defense-dashboard/internal/models"
	"github.com/nshruti113/ddos-defense-dashboard/internal/poller"
	"github.com/nshruti113/ddos-defense-dashboard/internal/simulation"
	"github.com/nshruti113/ddos-defense-dashboard/internal/training"
)

// ModelBackend is the part of the backend client the model views use
type ModelBackend interface {
	ModelInfo(ctx context.Context) (*models.ModelInfo, error)
	DownloadModel(ctx context.Context) (*backend.ModelFile, error)
}

// AlertHistory is the read side of the alert history store
type AlertHistory interface {
	RecentAlerts(ctx context.Context, limit int) ([]models.AlertEvent, error)
	LabelCounts(ctx context.Context) (map[string]int64, error)
	Subscribe(ctx context.Context) (<-chan models.AlertEvent, error)
}

// RunLister reads persisted training runs
type RunLister interface {
	List(limit int) ([]models.TrainingRun, error)
	Get(id string) (*models.TrainingRun, error)
}

// Deps are the components the API serves. History and Runs may be nil.
type Deps struct {
	Config     *config.Config
	Controller *attackmode.Controller
	Session    *simulation.Session
	Backend    ModelBackend
	Tracker    *training.Tracker
	Panels     *poller.Group
	Hub        *hub.Hub
	History    AlertHistory
	Runs       RunLister
	Gatherer   prometheus.Gatherer
	Logger     *logrus.Logger
}

type Server struct {
	Deps
	router *gin.Engine
}

func New(deps Deps) *Server {
	gin.SetMode(deps.Config.Server.Mode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))
	router.Use(corsMiddleware(deps.Config.Server.AllowedOrigins))

	s := &Server{
		Deps:   deps,
		router: router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)
	if s.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api")
	{
		// Attack simulation
		api.GET("/attack", s.getAttackMode)
		api.POST("/attack", s.setAttackMode)
		api.GET("/traffic", s.getTraffic)

		// Alerts
		api.GET("/alerts/live", s.getLiveAlerts)
		api.GET("/alerts/history", s.getAlertHistory)
		api.GET("/alerts/stream", s.streamAlerts)

		// DevOps panels
		api.GET("/panels/:name", s.getPanel)

		// Model management
		api.GET("/model/info", s.getModelInfo)
		api.GET("/model/download", s.downloadModel)
		api.POST("/model/train", s.startTraining)
		api.GET("/model/train/:id", s.getTrainingJob)
		api.GET("/model/train/:id/events", s.streamTrainingJob)
		api.GET("/model/runs", s.listRuns)

		// Datasets
		api.POST("/datasets/validate", s.validateDataset)
	}

	// WebSocket endpoint
	s.router.GET("/ws", func(c *gin.Context) {
		s.Hub.ServeWS(c.Writer, c.Request)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLogger logs one line per request through logrus
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}

// corsMiddleware handles CORS. An empty allow list admits any origin.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowOrigin := "*"
		if len(allowed) > 0 {
			allowOrigin = allowed[0]
			for _, a := range allowed {
				if a == origin {
					allowOrigin = origin
					break
				}
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		if allowOrigin != "*" {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
