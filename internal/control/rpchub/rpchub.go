// Package rpchub is the control side of the RPC Link (spec C9): the
// websocket server endpoint the Agent dials into, tracking which
// connection id is the current agent and routing incoming
// ResponseCommand/SyncCommand/ReportSemVer frames. At most one agent
// connection is current per control instance; a second connection
// supersedes and drops the first.
package rpchub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"graymoon/internal/control/correlator"
	"graymoon/internal/graymoonerr"
	"graymoon/internal/logging"
	"graymoon/pkg/rpc"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SyncCommandHandler is invoked whenever the current agent sends a
// SyncCommand, so the Sync Queue/Store layer can persist it.
type SyncCommandHandler func(sc rpc.SyncCommand)

// Hub owns the single current agent connection and the Response Correlator.
type Hub struct {
	correlator *correlator.Correlator
	onSync     SyncCommandHandler

	mu          sync.Mutex
	connID      string
	conn        *websocket.Conn
	agentSemVer string
	writeMu     sync.Mutex
}

func New(onSync SyncCommandHandler) *Hub {
	return &Hub{correlator: correlator.New(), onSync: onSync}
}

// IsAgentConnected reflects whether a current agent connection is live.
func (h *Hub) IsAgentConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// AgentSemVer returns the last version reported by the current agent.
func (h *Hub) AgentSemVer() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.agentSemVer
}

// ServeWS upgrades an incoming HTTP request to the RPC websocket, making it
// the new current agent connection (dropping any prior one).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	connID := uuid.NewString()
	h.adopt(connID, conn)
	logging.Info("agent connection %s established", connID)

	defer h.drop(connID)

	for {
		var env rpc.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			logging.Warn("agent connection %s read error: %v", connID, err)
			return nil
		}
		h.handleEnvelope(env)
	}
}

func (h *Hub) adopt(connID string, conn *websocket.Conn) {
	h.mu.Lock()
	oldConn := h.conn
	h.connID = connID
	h.conn = conn
	h.mu.Unlock()

	if oldConn != nil {
		_ = oldConn.Close()
		h.correlator.FailAll()
	}
}

func (h *Hub) drop(connID string) {
	h.mu.Lock()
	isCurrent := h.connID == connID
	if isCurrent {
		h.conn = nil
		h.connID = ""
	}
	h.mu.Unlock()

	if isCurrent {
		h.correlator.FailAll()
		logging.Info("agent connection %s dropped; no current agent", connID)
	}
}

func (h *Hub) handleEnvelope(env rpc.Envelope) {
	switch env.Type {
	case rpc.TypeResponseCommand:
		if env.ResponseCommand == nil {
			return
		}
		rc := env.ResponseCommand
		h.correlator.Complete(rc.RequestID, rc.Success, rc.Data, rc.Error)
	case rpc.TypeSyncCommand:
		if env.SyncCommand == nil || h.onSync == nil {
			return
		}
		h.onSync(*env.SyncCommand)
	case rpc.TypeReportSemVer:
		if env.ReportSemVer == nil {
			return
		}
		h.mu.Lock()
		h.agentSemVer = env.ReportSemVer.SemVer
		h.mu.Unlock()
	}
}

// SendCommand issues a RequestCommand on the current connection and awaits
// its ResponseCommand, or fails fast with AgentDisconnected if no agent is
// connected. This is the mechanism the Agent Bridge (C11) builds on.
func (h *Hub) SendCommand(ctx context.Context, command string, args any) (json.RawMessage, error) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return nil, graymoonerr.ErrAgentDisconnected
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, graymoonerr.New(graymoonerr.KindInvalidArgs, "marshal args: %v", err)
	}

	requestID := ulid.Make().String()
	ch := h.correlator.Register(requestID)

	env := rpc.NewRequestCommandEnvelope(requestID, command, argsJSON)
	h.writeMu.Lock()
	writeErr := conn.WriteJSON(env)
	h.writeMu.Unlock()
	if writeErr != nil {
		h.correlator.Complete(requestID, false, nil, graymoonerr.ErrAgentDisconnected.Error())
	}

	result, err := h.correlator.Await(ctx, requestID, ch)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, graymoonerr.New(graymoonerr.KindVcsFailure, "%s", result.Error)
	}
	return result.Data, nil
}

// PendingRequestCount exposes the correlator's depth for observability.
func (h *Hub) PendingRequestCount() int { return h.correlator.PendingCount() }
