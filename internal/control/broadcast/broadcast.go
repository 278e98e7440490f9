// Package broadcast is the Broadcast Channel (spec C16): workspace-scoped
// pub/sub carrying only a WorkspaceSynced(workspaceId) signal, telling
// subscribers to re-read state from the Store. Backed by an embedded,
// in-process NATS server, grounded on the teacher's
// internal/lattice/embedded.go EmbeddedServer and internal/lattice/events
// Publisher, generalized from CloudShip event publishing to this single
// workspace-id-only signal.
package broadcast

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/server"

	"graymoon/internal/logging"
)

const subscriberBuffer = 16

// Channel owns an embedded NATS server plus the control process's own
// publishing connection.
type Channel struct {
	server *natsserver.Server
	conn   *nats.Conn
}

// New starts an embedded NATS server on an ephemeral local port and
// connects to it. JetStream is not enabled: the broadcast contract needs
// only best-effort fan-out, not durable delivery.
func New() (*Channel, error) {
	opts := &natsserver.Options{
		Host:          "127.0.0.1",
		Port:          -1, // ephemeral, avoids colliding with a real nats-server on the host
		NoLog:         true,
		NoSigs:        true,
		MaxPayload:    1 << 20,
		ServerName:    "graymoon-broadcast",
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("start embedded nats server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("embedded nats server did not become ready")
	}

	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connect to embedded nats server: %w", err)
	}

	logging.Info("broadcast channel listening at %s", srv.ClientURL())
	return &Channel{server: srv, conn: conn}, nil
}

func subject(workspaceID int64) string {
	return "workspace." + strconv.FormatInt(workspaceID, 10) + ".synced"
}

// Publish emits a WorkspaceSynced(workspaceId) event. The event carries no
// payload beyond the workspace id, per spec §4.13.
func (c *Channel) Publish(workspaceID int64) error {
	if err := c.conn.Publish(subject(workspaceID), nil); err != nil {
		return fmt.Errorf("publish workspace synced: %w", err)
	}
	return nil
}

// Subscribe returns a channel of WorkspaceSynced signals for workspaceID.
// Slow subscribers are dropped: the returned channel has a bounded buffer
// of 16 and new events are dropped (not queued) once it's full.
func (c *Channel) Subscribe(workspaceID int64) (<-chan struct{}, func(), error) {
	out := make(chan struct{}, subscriberBuffer)

	sub, err := c.conn.Subscribe(subject(workspaceID), func(*nats.Msg) {
		select {
		case out <- struct{}{}:
		default:
			// buffer full: drop-newest, the subscriber will catch up on its next read
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe workspace %d: %w", workspaceID, err)
	}

	unsubscribe := func() {
		_ = sub.Unsubscribe()
		close(out)
	}
	return out, unsubscribe, nil
}

// Close closes the publishing connection (without draining it) and shuts
// down the embedded server.
func (c *Channel) Close() {
	c.conn.Close()
	c.server.Shutdown()
}
