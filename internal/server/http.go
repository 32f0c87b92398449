package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tushaar82/VELOX-N8N-sub000/internal/gateway"
	"github.com/tushaar82/VELOX-N8N-sub000/internal/stream"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/config"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/logger"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/timeframe"
)

// Server is the HTTP surface: the /ws streaming endpoint plus a small REST
// API for health and monitoring.
type Server struct {
	logger   logger.Interface
	registry *stream.Registry
	gateway  *gateway.Gateway
	engine   *gin.Engine
	httpSrv  *http.Server

	startedAt time.Time
}

// New wires the gin engine and routes. The caller owns the registry and
// gateway lifecycles.
func New(cfg config.ServerConfig, appCfg config.AppConfig, registry *stream.Registry, gw *gateway.Gateway, log logger.Interface) *Server {
	if appCfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		logger:    log,
		registry:  registry,
		gateway:   gw,
		engine:    gin.New(),
		startedAt: time.Now(),
	}
	s.engine.Use(gin.Recovery())

	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.engine,
	}
	return s
}

func (s *Server) setupRoutes() {
	// WebSocket endpoint
	s.engine.GET("/ws", func(c *gin.Context) {
		s.gateway.ServeWS(c.Writer, c.Request)
	})

	// REST API endpoints
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/stats", s.getStats)
	api.GET("/timeframes", s.getTimeframes)
	api.GET("/candles/:symbol/:timeframe", s.getCurrentCandle)
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("http server listening",
		logger.Field{Key: "addr", Value: s.httpSrv.Addr},
	)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown closes the WebSocket connections first so clients see a going-away
// close, then drains the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.gateway.Shutdown()
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the engine for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"connections":   s.gateway.ConnectionCount(),
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stream":      s.registry.GetStats(),
		"connections": s.gateway.Stats(),
	})
}

func (s *Server) getTimeframes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timeframes": timeframe.Codes(),
	})
}

func (s *Server) getCurrentCandle(c *gin.Context) {
	symbol := c.Param("symbol")
	tfInput := c.Param("timeframe")

	if _, err := timeframe.Normalize(tfInput); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeframe: " + tfInput})
		return
	}

	snap, ok := s.registry.GetCurrentCandle(symbol, tfInput)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active candle for " + symbol + "/" + tfInput})
		return
	}
	c.JSON(http.StatusOK, snap)
}
