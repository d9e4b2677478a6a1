// internal/transport/loopback.go
package transport

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/internal/peer"
	"github.com/jason-s-yu/cgs/internal/table"
)

// Loopback connects in-process mirrors straight to a table. It serves
// single-player sessions and tests; events are delivered synchronously on
// the table's tick.
type Loopback struct {
	table *table.Table

	mu      sync.RWMutex
	clients map[uuid.UUID]*peer.Client
}

// NewLoopback takes over t's broadcast callbacks.
func NewLoopback(t *table.Table) *Loopback {
	l := &Loopback{table: t, clients: make(map[uuid.UUID]*peer.Client)}
	t.BroadcastFn = l.broadcast
	t.SendToPeerFn = l.sendTo
	return l
}

// Connect creates a mirror for id and asks the table for a full sync.
func (l *Loopback) Connect(id uuid.UUID) *peer.Client {
	c := peer.NewClient(id, peer.SenderFunc(func(req table.Request) error {
		req.Peer = id
		l.table.Submit(req)
		return nil
	}))
	l.mu.Lock()
	l.clients[id] = c
	l.mu.Unlock()
	l.table.Submit(table.Request{Type: table.RequestSync, Peer: id})
	return c
}

// Disconnect drops the mirror and tells the table the peer left.
func (l *Loopback) Disconnect(id uuid.UUID) {
	l.mu.Lock()
	_, ok := l.clients[id]
	delete(l.clients, id)
	l.mu.Unlock()
	if ok {
		l.table.Submit(table.Request{Type: table.RequestLeave, Peer: id})
	}
}

// Len reports how many mirrors are connected.
func (l *Loopback) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clients)
}

func (l *Loopback) broadcast(ev table.Event) {
	l.mu.RLock()
	clients := make([]*peer.Client, 0, len(l.clients))
	for _, c := range l.clients {
		clients = append(clients, c)
	}
	l.mu.RUnlock()
	for _, c := range clients {
		c.Apply(ev)
	}
}

func (l *Loopback) sendTo(id uuid.UUID, ev table.Event) {
	l.mu.RLock()
	c := l.clients[id]
	l.mu.RUnlock()
	if c != nil {
		c.Apply(ev)
	}
}
