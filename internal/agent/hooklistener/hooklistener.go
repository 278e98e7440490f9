// Package hooklistener is the Hook Listener (spec C8): a loopback-only HTTP
// endpoint receiving POST /notify from local VCS hooks and enqueueing a
// Notify job. Grounded on the teacher's gin-based internal/api server setup.
package hooklistener

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"graymoon/internal/agent/jobqueue"
	"graymoon/internal/logging"
	"graymoon/pkg/models"
)

const shutdownGrace = 10 * time.Second

type notifyBody struct {
	RepositoryID   int64  `json:"repositoryId" binding:"required"`
	WorkspaceID    int64  `json:"workspaceId" binding:"required"`
	RepositoryPath string `json:"repositoryPath" binding:"required"`
}

// Listener binds 127.0.0.1:<port> and serves POST /notify.
type Listener struct {
	queue      *jobqueue.Queue
	port       int
	engine     *gin.Engine
	server     *http.Server
	shuttingDown atomic.Bool
}

func New(queue *jobqueue.Queue, port int) *Listener {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	l := &Listener{queue: queue, port: port, engine: engine}
	engine.POST("/notify", l.handleNotify)
	engine.GET("/healthz", l.handleHealth)
	return l
}

func (l *Listener) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"queueDepth": l.queue.Depth()})
}

func (l *Listener) handleNotify(c *gin.Context) {
	if l.shuttingDown.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}

	var body notifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := models.NewNotifyEnvelope(body.RepositoryID, body.WorkspaceID, body.RepositoryPath)
	if err := l.queue.Enqueue(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	c.Status(http.StatusAccepted)
}

// Run blocks serving on 127.0.0.1:<port> until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	addr := "127.0.0.1:" + strconv.Itoa(l.port)
	l.server = &http.Server{Addr: addr, Handler: l.engine}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("hook listener serving on %s", addr)
		if err := l.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.shuttingDown.Store(true)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return l.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
