// internal/transport/hub.go
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/internal/table"
	"github.com/sirupsen/logrus"
)

// ErrUnknownTable is returned by Serve for a table that was never attached.
var ErrUnknownTable = errors.New("table not attached")

const (
	defaultPingInterval = 15 * time.Second
	writeTimeout        = 5 * time.Second
	sendBuffer          = 256
)

// Hub fans table events out to websocket peers and feeds their requests back
// into the table. One connection per peer per table; a reconnect replaces
// the old connection.
type Hub struct {
	origins      []string
	PingInterval time.Duration

	log *logrus.Entry

	mu    sync.RWMutex
	rooms map[uuid.UUID]*room
}

type room struct {
	table *table.Table

	mu    sync.RWMutex
	conns map[uuid.UUID]*conn
}

type conn struct {
	peer uuid.UUID
	ws   *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
	log       *logrus.Entry
}

// NewHub creates a hub accepting browser connections from the given origin
// patterns. Non-browser clients that send no Origin header are always accepted.
func NewHub(origins []string) *Hub {
	return &Hub{
		origins:      origins,
		PingInterval: defaultPingInterval,
		log:          logrus.WithField("component", "hub"),
		rooms:        make(map[uuid.UUID]*room),
	}
}

// Attach routes t's events through the hub.
func (h *Hub) Attach(t *table.Table) {
	rm := &room{table: t, conns: make(map[uuid.UUID]*conn)}
	t.BroadcastFn = rm.broadcast
	t.SendToPeerFn = rm.sendTo
	h.mu.Lock()
	h.rooms[t.ID] = rm
	h.mu.Unlock()
}

// Detach disconnects everyone at a table and forgets it.
func (h *Hub) Detach(tableID uuid.UUID) {
	h.mu.Lock()
	rm, ok := h.rooms[tableID]
	delete(h.rooms, tableID)
	h.mu.Unlock()
	if !ok {
		return
	}
	rm.mu.Lock()
	for id, c := range rm.conns {
		c.close(websocket.StatusGoingAway, "table closed")
		delete(rm.conns, id)
	}
	rm.mu.Unlock()
}

// Peers returns the ids of peers connected to a table.
func (h *Hub) Peers(tableID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	rm, ok := h.rooms[tableID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(rm.conns))
	for id := range rm.conns {
		out = append(out, id)
	}
	return out
}

// Serve upgrades the request and runs the peer's connection until it closes.
// The caller has already authenticated peerID for tableID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, tableID, peerID uuid.UUID) error {
	h.mu.RLock()
	rm, ok := h.rooms[tableID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownTable
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		return err
	}
	c := &conn{
		peer: peerID,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		log:  h.log.WithFields(logrus.Fields{"table": tableID, "peer": peerID}),
	}
	rm.add(c)
	c.log.Infof("Peer %s connected to table %s.", peerID, tableID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writeLoop(ctx, h.PingInterval)

	rm.table.Submit(table.Request{Type: table.RequestSync, Peer: peerID})

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			break
		}
		var req table.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.log.Warnf("Peer %s: Malformed request ignored: %v", peerID, err)
			continue
		}
		req.Peer = peerID
		rm.table.Submit(req)
	}

	c.close(websocket.StatusNormalClosure, "bye")
	if rm.remove(c) {
		rm.table.Submit(table.Request{Type: table.RequestLeave, Peer: peerID})
	}
	c.log.Infof("Peer %s disconnected from table %s.", peerID, tableID)
	return nil
}

func (rm *room) add(c *conn) {
	rm.mu.Lock()
	old := rm.conns[c.peer]
	rm.conns[c.peer] = c
	rm.mu.Unlock()
	if old != nil {
		old.close(websocket.StatusPolicyViolation, "replaced by a new connection")
	}
}

// remove drops c if it is still the peer's current connection.
func (rm *room) remove(c *conn) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.conns[c.peer] != c {
		return false
	}
	delete(rm.conns, c.peer)
	return true
}

func (rm *room) broadcast(ev table.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		logrus.Errorf("Table %s: Failed marshalling event %s: %v", ev.Table, ev.Type, err)
		return
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, c := range rm.conns {
		c.enqueue(b)
	}
}

func (rm *room) sendTo(id uuid.UUID, ev table.Event) {
	rm.mu.RLock()
	c := rm.conns[id]
	rm.mu.RUnlock()
	if c == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		logrus.Errorf("Table %s: Failed marshalling event %s: %v", ev.Table, ev.Type, err)
		return
	}
	c.enqueue(b)
}

// enqueue never blocks. A peer that cannot keep up is disconnected and
// resyncs when it reconnects.
func (c *conn) enqueue(b []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- b:
	default:
		c.log.Warnf("Peer %s: Send buffer full, disconnecting.", c.peer)
		c.close(websocket.StatusTryAgainLater, "slow consumer")
	}
}

func (c *conn) writeLoop(ctx context.Context, pingEvery time.Duration) {
	if pingEvery <= 0 {
		pingEvery = defaultPingInterval
	}
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				c.close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}

func (c *conn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		go c.ws.Close(code, reason)
	})
}
