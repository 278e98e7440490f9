// Package api is the Control Service's HTTP surface (spec §6): the agent
// RPC upgrade endpoint, the core sync/push/branch REST subset, and a
// realtime websocket that fans out WorkspaceSynced signals to the UI.
// Grounded on the teacher's internal/api/api.go Gin server shape
// (gin.New + Recovery + CORS + graceful shutdown), generalized from
// Station's MCP/agent API surface to GrayMoon's workspace/repository API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	v1 "graymoon/internal/api/v1"
	"graymoon/internal/config"
	"graymoon/internal/control/agentbridge"
	"graymoon/internal/control/broadcast"
	"graymoon/internal/control/depsolver"
	"graymoon/internal/control/pushscheduler"
	"graymoon/internal/control/rpchub"
	"graymoon/internal/control/syncqueue"
	"graymoon/internal/db/repositories"
	"graymoon/internal/logging"
)

type Server struct {
	cfg         *config.ControlConfig
	repos       *repositories.Repositories
	hub         *rpchub.Hub
	bridge      *agentbridge.Bridge
	syncQueue   *syncqueue.Queue
	scheduler   *pushscheduler.Scheduler
	solver      *depsolver.Solver
	broadcaster *broadcast.Channel
	httpServer  *http.Server
}

func New(cfg *config.ControlConfig, repos *repositories.Repositories, hub *rpchub.Hub, bridge *agentbridge.Bridge, sq *syncqueue.Queue, scheduler *pushscheduler.Scheduler, solver *depsolver.Solver, broadcaster *broadcast.Channel) *Server {
	return &Server{
		cfg: cfg, repos: repos, hub: hub, bridge: bridge,
		syncQueue: sq, scheduler: scheduler, solver: solver, broadcaster: broadcaster,
	}
}

func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/health", s.handleHealth)
	router.GET("/agent/ws", s.handleAgentWS)

	handlers := v1.New(s.repos, s.bridge, s.syncQueue, s.scheduler, s.solver, s.broadcaster)
	handlers.RegisterRoutes(router)

	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("control api server error: %v", err)
		}
	}()
	logging.Info("control api listening on %s", s.cfg.ListenAddr)

	<-ctx.Done()

	logging.Info("shutting down control api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"service":         "graymoon-control",
		"agentConnected":  s.hub.IsAgentConnected(),
		"agentSemVer":     s.hub.AgentSemVer(),
		"pendingRequests": s.hub.PendingRequestCount(),
		"syncQueueDepth":  s.syncQueue.Depth(),
	})
}

// handleAgentWS is the single inbound websocket endpoint the Agent dials
// to establish the persistent bidirectional RPC channel (spec §4.6/§6).
func (s *Server) handleAgentWS(c *gin.Context) {
	if err := s.hub.ServeWS(c.Writer, c.Request); err != nil {
		if _, ok := err.(*websocket.CloseError); !ok {
			logging.Warn("agent websocket handshake failed: %v", err)
		}
	}
}
