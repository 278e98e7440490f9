// Package rpclink is the Agent-side RPC Link (spec C7): a long-lived
// bidirectional websocket connection to the Control Service's RPC Hub,
// with forever-retry exponential backoff reconnect. Grounded on the
// teacher's ManagementChannelService reconnect/registration-state-machine
// idiom, transported over gorilla/websocket instead of the teacher's gRPC
// stream (no generated proto stubs are available in this corpus — see
// DESIGN.md) as spec §9 explicitly sanctions "persistent WebSocket plus a
// small framing protocol".
package rpclink

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"graymoon/internal/agent/jobqueue"
	"graymoon/internal/logging"
	"graymoon/pkg/models"
	"graymoon/pkg/rpc"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 30 * time.Second
)

// Link maintains the persistent connection and multiplexes inbound
// RequestCommand frames into the Job Queue while serialising outbound
// ResponseCommand/SyncCommand/ReportSemVer writes.
type Link struct {
	endpoint string
	semVer   string
	queue    *jobqueue.Queue

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func New(endpoint, semVer string, queue *jobqueue.Queue) *Link {
	return &Link{endpoint: endpoint, semVer: semVer, queue: queue}
}

// IsConnected reports whether the websocket is currently established.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Run maintains the connection forever until ctx is cancelled, reconnecting
// with exponential backoff (base 1s, cap 30s, +/-20% jitter) per spec §4.6.
func (l *Link) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if err := l.connectAndServe(ctx); err != nil {
			logging.Warn("rpc link disconnected: %v", err)
		}
		l.setConnected(false)

		if ctx.Err() != nil {
			return
		}
		delay := backoffDelay(attempt)
		attempt++
		logging.Info("reconnecting to control in %s", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << attempt
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	jitter := 0.8 + rand.Float64()*0.4 // +/-20%
	return time.Duration(float64(d) * jitter)
}

func (l *Link) connectAndServe(ctx context.Context) error {
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	l.mu.Lock()
	l.conn = conn
	l.connected = true
	l.mu.Unlock()

	logging.Info("connected to control at %s", l.endpoint)
	if err := l.SendReportSemVer(ctx); err != nil {
		logging.Warn("failed to report version on connect: %v", err)
	}

	for {
		var env rpc.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		l.dispatch(ctx, env)
	}
}

func (l *Link) dispatch(ctx context.Context, env rpc.Envelope) {
	if env.Type != rpc.TypeRequestCommand || env.RequestCommand == nil {
		return
	}
	req := env.RequestCommand
	job := models.NewCommandEnvelope(req.RequestID, req.Command, json.RawMessage(req.Args))
	if err := l.queue.Enqueue(ctx, job); err != nil {
		logging.Error("failed to enqueue request %s: %v", req.RequestID, err)
	}
}

func (l *Link) setConnected(v bool) {
	l.mu.Lock()
	l.connected = v
	l.mu.Unlock()
}

func (l *Link) write(env rpc.Envelope) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return conn.WriteJSON(env)
}

// SendResponse implements workerpool.ResponseSender.
func (l *Link) SendResponse(ctx context.Context, resp rpc.ResponseCommand) error {
	return l.write(rpc.NewResponseCommandEnvelope(resp.RequestID, resp.Success, resp.Data, resp.Error))
}

// SendSync implements notifyhandler.SyncSender.
func (l *Link) SendSync(ctx context.Context, sc rpc.SyncCommand) error {
	return l.write(rpc.NewSyncCommandEnvelope(sc))
}

// SendReportSemVer reports the agent's version, sent on every successful
// (re)connect per SPEC_FULL.md §12.
func (l *Link) SendReportSemVer(ctx context.Context) error {
	return l.write(rpc.NewReportSemVerEnvelope(l.semVer))
}
