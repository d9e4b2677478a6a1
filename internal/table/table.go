// internal/table/table.go
package table

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/engine"
	"github.com/jason-s-yu/cgs/internal/cache"
	"github.com/jason-s-yu/cgs/internal/gamedef"
	"github.com/sirupsen/logrus"
)

// DefaultTickRate is the number of ticks per second Run uses when none is given.
const DefaultTickRate = 20

// Layout constants for loading decks onto the play mat.
const (
	PixelsPerInch      = 100.0
	DeckPositionBuffer = 50.0
)

// Historian records table actions for replay and auditing.
type Historian interface {
	PublishTableAction(ctx context.Context, rec cache.TableActionRecord) error
}

// SnapshotStore persists table snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// Table is the authoritative state of one shared play area. Peers send
// requests with Submit; the table applies them on Tick in arrival order and
// reports every canonical change through BroadcastFn and SendToPeerFn.
type Table struct {
	ID   uuid.UUID
	Host uuid.UUID
	Game *gamedef.Game // may be nil for tables without cards

	// Communication callbacks. Both are invoked with the table lock held and
	// must not call back into the table.
	BroadcastFn  func(ev Event)                 // Sends an event to all connected peers.
	SendToPeerFn func(peer uuid.UUID, ev Event) // Sends an event to a single peer.

	Historian Historian     // optional
	Snapshots SnapshotStore // optional

	Log *logrus.Entry

	mu         sync.Mutex
	objects    map[NetID]*Object
	order      []NetID // live ids in spawn order
	tombstones map[NetID]struct{}
	nextID     NetID
	seq        uint64
	rng        *engine.RNG
	behaviors  map[Kind]Behavior
	decks      map[uuid.UUID]NetID // each peer's most recently loaded deck
	actionIdx  int
	closed     bool
	writes     sync.WaitGroup // snapshot and action writes in flight

	queueMu sync.Mutex
	pending []Request
	posted  []func()
}

// New creates a table for game. A zero seed draws one from crypto/rand.
func New(game *gamedef.Game, host uuid.UUID, seed uint64) *Table {
	if seed == 0 {
		var b [8]byte
		_, _ = crand.Read(b[:])
		seed = binary.LittleEndian.Uint64(b[:])
	}
	t := &Table{
		ID:         uuid.New(),
		Host:       host,
		Game:       game,
		objects:    make(map[NetID]*Object),
		tombstones: make(map[NetID]struct{}),
		rng:        engine.NewRNG(seed),
		decks:      make(map[uuid.UUID]NetID),
	}
	fields := logrus.Fields{"table": t.ID}
	if game != nil {
		fields["game"] = game.ID
	}
	t.Log = logrus.WithFields(fields)
	t.behaviors = defaultBehaviors()
	return t
}

// Submit queues a request for the next tick. It never blocks on the table lock.
func (t *Table) Submit(req Request) {
	t.queueMu.Lock()
	t.pending = append(t.pending, req)
	t.queueMu.Unlock()
}

// Post schedules fn to run on the next tick with the table lock held.
func (t *Table) Post(fn func()) {
	if fn == nil {
		return
	}
	t.queueMu.Lock()
	t.posted = append(t.posted, fn)
	t.queueMu.Unlock()
}

// Tick drains posted work and queued requests in arrival order, then
// advances per-object behaviors by dt.
func (t *Table) Tick(dt time.Duration) {
	t.queueMu.Lock()
	posted, pending := t.posted, t.pending
	t.posted, t.pending = nil, nil
	t.queueMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for _, fn := range posted {
		fn()
	}
	for _, req := range pending {
		t.apply(req)
	}
	for _, id := range append([]NetID(nil), t.order...) {
		o, ok := t.objects[id]
		if !ok {
			continue
		}
		if b := t.behaviors[o.Kind]; b != nil {
			b.OnTick(t, o, dt)
		}
	}
}

// Run ticks the table at rate Hz until ctx is cancelled.
func (t *Table) Run(ctx context.Context, rate int) {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			t.Tick(dt)
		}
	}
}

// RegisterBehavior replaces the behavior run for objects of kind k.
func (t *Table) RegisterBehavior(k Kind, b Behavior) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.behaviors[k] = b
}

// Objects returns copies of every live object in spawn order.
func (t *Table) Objects() []Object {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotObjects()
}

// Object returns a copy of a live object.
func (t *Table) Object(id NetID) (Object, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.objects[id]
	if !ok {
		return Object{}, false
	}
	return o.Clone(), true
}

// Despawned reports whether id has been deleted.
func (t *Table) Despawned(id NetID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, dead := t.tombstones[id]
	return dead
}

// Close tears down every object, persists a final snapshot and stops
// accepting ticks. It returns once every pending snapshot and action write
// has finished.
func (t *Table) Close() {
	t.mu.Lock()
	if !t.closed {
		t.persistSnapshot("close")
		t.unspawnAll()
		t.closed = true
		t.logAction(uuid.Nil, "table_close", nil)
		t.Log.Infof("Table %s: Closed.", t.ID)
	}
	t.mu.Unlock()
	t.writes.Wait()
}

// Assumes lock is held by caller.
func (t *Table) snapshotObjects() []Object {
	out := make([]Object, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.objects[id].Clone())
	}
	return out
}

// lookup returns a live object. Tombstoned and unknown ids are dropped.
// Assumes lock is held by caller.
func (t *Table) lookup(id NetID, req RequestType) (*Object, bool) {
	if _, dead := t.tombstones[id]; dead {
		t.Log.Debugf("Table %s: %s for despawned playable %d ignored.", t.ID, req, id)
		return nil, false
	}
	o, ok := t.objects[id]
	if !ok {
		t.Log.Debugf("Table %s: %s for unknown playable %d ignored.", t.ID, req, id)
	}
	return o, ok
}

// spawn registers o under a fresh NetID, runs its init behavior and
// broadcasts it. Assumes lock is held by caller.
func (t *Table) spawn(o *Object) *Object {
	t.nextID++
	o.ID = t.nextID
	t.objects[o.ID] = o
	t.order = append(t.order, o.ID)
	if b := t.behaviors[o.Kind]; b != nil {
		b.OnInit(t, o)
	}
	snap := o.Clone()
	t.fireEvent(Event{Type: EventSpawned, ID: o.ID, Object: &snap})
	return o
}

// despawn removes o, tombstones its id and broadcasts the removal.
// Assumes lock is held by caller.
func (t *Table) despawn(o *Object) {
	if b := t.behaviors[o.Kind]; b != nil {
		b.OnTeardown(t, o)
	}
	delete(t.objects, o.ID)
	for i, id := range t.order {
		if id == o.ID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.tombstones[o.ID] = struct{}{}
	for peer, deck := range t.decks {
		if deck == o.ID {
			delete(t.decks, peer)
		}
	}
	t.fireEvent(Event{Type: EventDespawned, ID: o.ID})
}

// Assumes lock is held by caller.
func (t *Table) unspawnAll() {
	for _, id := range append([]NetID(nil), t.order...) {
		if o, ok := t.objects[id]; ok {
			t.despawn(o)
		}
	}
	clear(t.decks)
}

// fireEvent stamps ev with the next sequence number and broadcasts it.
// Assumes lock is held by caller.
func (t *Table) fireEvent(ev Event) {
	t.seq++
	ev.Seq = t.seq
	ev.Table = t.ID
	if t.BroadcastFn != nil {
		t.BroadcastFn(ev)
	} else {
		t.Log.Warnf("Table %s: BroadcastFn is nil, cannot broadcast event type %s.", t.ID, ev.Type)
	}
}

// fireEventToPeer sends a private event to one peer.
// Assumes lock is held by caller.
func (t *Table) fireEventToPeer(peer uuid.UUID, ev Event) {
	t.seq++
	ev.Seq = t.seq
	ev.Table = t.ID
	if t.SendToPeerFn != nil {
		t.SendToPeerFn(peer, ev)
	} else {
		t.Log.Warnf("Table %s: SendToPeerFn is nil, cannot send private event type %s to peer %s.", t.ID, ev.Type, peer)
	}
}

// fail answers a refused request privately.
// Assumes lock is held by caller.
func (t *Table) fail(req Request, msg string) {
	t.Log.WithField("peer", req.Peer).Warnf("Table %s: %s on playable %d refused: %s.", t.ID, req.Type, req.Target, msg)
	t.fireEventToPeer(req.Peer, Event{Type: EventPrivateRequestFail, ID: req.Target, Request: req.Type, Message: msg})
}

// logAction records an action to the historian asynchronously.
// Assumes lock is held by caller.
func (t *Table) logAction(actor uuid.UUID, actionType string, payload map[string]interface{}) {
	t.actionIdx++
	if t.Historian == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	rec := cache.TableActionRecord{
		TableID:       t.ID,
		ActionIndex:   t.actionIdx,
		ActorID:       actor,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	h := t.Historian
	t.writes.Add(1)
	go func(rec cache.TableActionRecord) {
		defer t.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.PublishTableAction(ctx, rec); err != nil {
			t.Log.Errorf("Table %s: Failed publishing action %d ('%s'): %v", t.ID, rec.ActionIndex, rec.ActionType, err)
		}
	}(rec)
}
