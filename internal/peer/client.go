// internal/peer/client.go
package peer

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/internal/table"
	"github.com/sirupsen/logrus"
)

// ErrDespawned is returned for actions on a playable this peer has seen deleted.
var ErrDespawned = errors.New("playable despawned")

// ErrUnknownPlayable is returned for actions on a playable not in the mirror.
var ErrUnknownPlayable = errors.New("unknown playable")

// Sender delivers requests to the authority.
type Sender interface {
	SendToAuthority(req table.Request) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(req table.Request) error

func (f SenderFunc) SendToAuthority(req table.Request) error { return f(req) }

// Confirmer asks the local user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Client mirrors the authority's table for one peer. Local input produces
// requests; only events passed to Apply change mirrored state. While dragging
// without ownership the client keeps a local preview that is never committed
// and is discarded when ownership goes elsewhere.
type Client struct {
	Self uuid.UUID

	// OnEvent, when set, is called after each applied event with the client
	// lock released.
	OnEvent func(ev table.Event)

	sender Sender
	log    *logrus.Entry

	mu         sync.Mutex
	objects    map[table.NetID]*table.Object
	order      []table.NetID
	tombstones map[table.NetID]struct{}
	previews   map[table.NetID]table.Vec2
	dragging   map[table.NetID]bool
	pendingOwn map[table.NetID]bool
	hand       []string
	lastSeq    uint64

	// Ownership requested by a drag that ended before the grant arrived.
	releaseOnGrant map[table.NetID]bool
}

// NewClient creates an empty mirror that sends through sender.
func NewClient(self uuid.UUID, sender Sender) *Client {
	return &Client{
		Self:       self,
		sender:     sender,
		log:        logrus.WithField("peer", self),
		objects:    make(map[table.NetID]*table.Object),
		tombstones: make(map[table.NetID]struct{}),
		previews:   make(map[table.NetID]table.Vec2),
		dragging:   make(map[table.NetID]bool),
		pendingOwn: make(map[table.NetID]bool),

		releaseOnGrant: make(map[table.NetID]bool),
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Object returns a copy of a mirrored playable.
func (c *Client) Object(id table.NetID) (table.Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[id]
	if !ok {
		return table.Object{}, false
	}
	return o.Clone(), true
}

// Objects returns copies of every mirrored playable in spawn order.
func (c *Client) Objects() []table.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]table.Object, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.objects[id].Clone())
	}
	return out
}

// Position returns where the playable should be drawn: the local preview
// while one exists, otherwise the canonical position.
func (c *Client) Position(id table.NetID) (table.Vec2, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.previews[id]; ok {
		return p, true
	}
	o, ok := c.objects[id]
	if !ok {
		return table.Vec2{}, false
	}
	return o.Position, true
}

// HasPreview reports whether a local drag preview is pending for id.
func (c *Client) HasPreview(id table.NetID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.previews[id]
	return ok
}

// Owns reports whether the authority has granted this peer ownership of id.
func (c *Client) Owns(id table.NetID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[id]
	return ok && o.Owner == c.Self
}

// Despawned reports whether a delete for id has been applied.
func (c *Client) Despawned(id table.NetID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, dead := c.tombstones[id]
	return dead
}

// Hand returns the cards dealt to this peer.
func (c *Client) Hand() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.hand)
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

func (c *Client) send(req table.Request) error {
	req.Peer = c.Self
	return c.sender.SendToAuthority(req)
}

// live returns the mirrored object for id. Assumes lock is held by caller.
func (c *Client) live(id table.NetID) (*table.Object, error) {
	if _, dead := c.tombstones[id]; dead {
		return nil, ErrDespawned
	}
	o, ok := c.objects[id]
	if !ok {
		return nil, ErrUnknownPlayable
	}
	return o, nil
}

// target validates id and sends a request of type ty for it.
func (c *Client) target(ty table.RequestType, id table.NetID) error {
	c.mu.Lock()
	_, err := c.live(id)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.send(table.Request{Type: ty, Target: id})
}

// Spawn asks the authority to create a playable.
func (c *Client) Spawn(p table.SpawnParams) error {
	return c.send(table.Request{Type: table.RequestSpawn, Spawn: &p})
}

// SpawnDie spawns a die with the given bounds; zero bounds mean 1..6.
func (c *Client) SpawnDie(pos table.Vec2, lo, hi int) error {
	return c.Spawn(table.SpawnParams{Kind: table.KindDie, Position: pos, Min: lo, Max: hi})
}

// SpawnToken spawns a token.
func (c *Client) SpawnToken(pos table.Vec2) error {
	return c.Spawn(table.SpawnParams{Kind: table.KindToken, Position: pos})
}

// TakeOwnership asks for ownership of id.
func (c *Client) TakeOwnership(id table.NetID) error {
	c.mu.Lock()
	o, err := c.live(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if o.Owner == c.Self || c.pendingOwn[id] {
		c.mu.Unlock()
		return nil
	}
	c.pendingOwn[id] = true
	c.mu.Unlock()
	if err := c.send(table.Request{Type: table.RequestTakeOwnership, Target: id}); err != nil {
		c.mu.Lock()
		delete(c.pendingOwn, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

// ReleaseOwnership gives up ownership of id.
func (c *Client) ReleaseOwnership(id table.NetID) error {
	return c.target(table.RequestReleaseOwnership, id)
}

// BeginDrag starts dragging id, requesting ownership if this peer lacks it.
func (c *Client) BeginDrag(id table.NetID) error {
	c.mu.Lock()
	_, err := c.live(id)
	if err == nil {
		c.dragging[id] = true
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.TakeOwnership(id)
}

// Drag previews id at pos. The move is sent only while this peer owns id;
// otherwise ownership is requested and the preview waits for the grant.
func (c *Client) Drag(id table.NetID, pos table.Vec2) error {
	c.mu.Lock()
	o, err := c.live(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.previews[id] = pos
	owned := o.Owner == c.Self
	c.mu.Unlock()
	if !owned {
		return c.TakeOwnership(id)
	}
	return c.send(table.Request{Type: table.RequestMove, Target: id, Position: &pos})
}

// EndDrag drops id at pos. An owner commits the move and releases ownership;
// a peer that never got ownership discards its preview.
func (c *Client) EndDrag(id table.NetID, pos table.Vec2) error {
	c.mu.Lock()
	o, err := c.live(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	delete(c.dragging, id)
	owned := o.Owner == c.Self
	if owned {
		c.previews[id] = pos
	} else {
		delete(c.previews, id)
		if c.pendingOwn[id] {
			c.releaseOnGrant[id] = true
		}
	}
	c.mu.Unlock()
	if !owned {
		return nil
	}
	if err := c.send(table.Request{Type: table.RequestMove, Target: id, Position: &pos}); err != nil {
		return err
	}
	return c.send(table.Request{Type: table.RequestReleaseOwnership, Target: id})
}

// Increment asks for the die's value plus one; the authority wraps past max.
func (c *Client) Increment(id table.NetID) error { return c.step(id, 1) }

// Decrement asks for the die's value minus one; the authority wraps below min.
func (c *Client) Decrement(id table.NetID) error { return c.step(id, -1) }

func (c *Client) step(id table.NetID, delta int) error {
	c.mu.Lock()
	o, err := c.live(id)
	if err == nil && o.Die == nil {
		err = errors.New("not a die")
	}
	var v int
	if err == nil {
		v = o.Die.Value + delta
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.send(table.Request{Type: table.RequestSetValue, Target: id, Value: &v})
}

// SetValue asks for a specific die value.
func (c *Client) SetValue(id table.NetID, v int) error {
	c.mu.Lock()
	_, err := c.live(id)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.send(table.Request{Type: table.RequestSetValue, Target: id, Value: &v})
}

// Roll asks the authority to roll a die.
func (c *Client) Roll(id table.NetID) error { return c.target(table.RequestRoll, id) }

// Shuffle asks the authority to shuffle a stack.
func (c *Client) Shuffle(id table.NetID) error { return c.target(table.RequestShuffle, id) }

// Flip asks the authority to turn a card over.
func (c *Client) Flip(id table.NetID) error { return c.target(table.RequestFlip, id) }

// LoadDeck asks the authority to lay out a deck at pos.
func (c *Client) LoadDeck(name string, cards []string, pos table.Vec2) error {
	return c.send(table.Request{Type: table.RequestLoadDeck, Deck: &table.DeckParams{Name: name, Cards: cards, Position: pos}})
}

// Deal draws count cards into this peer's hand. A zero id deals from the
// deck this peer loaded last.
func (c *Client) Deal(id table.NetID, count int) error {
	if id != 0 {
		c.mu.Lock()
		_, err := c.live(id)
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return c.send(table.Request{Type: table.RequestDeal, Target: id, Count: count})
}

// Sync asks the authority for the full table state.
func (c *Client) Sync() error {
	return c.send(table.Request{Type: table.RequestSync})
}

// Delete asks the user to confirm, then requests deletion of id. It reports
// whether the request was sent.
func (c *Client) Delete(id table.NetID, confirm Confirmer) (bool, error) {
	c.mu.Lock()
	o, err := c.live(id)
	var prompt string
	if err == nil {
		prompt = o.Kind.DeletePrompt()
	}
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	if confirm != nil && !confirm.Confirm(prompt) {
		return false, nil
	}
	return true, c.send(table.Request{Type: table.RequestDelete, Target: id})
}

// Restart asks the user to confirm, then requests a table restart.
func (c *Client) Restart(confirm Confirmer) (bool, error) {
	if confirm != nil && !confirm.Confirm(table.RestartPrompt) {
		return false, nil
	}
	return true, c.send(table.Request{Type: table.RequestRestart})
}

// Leave asks the user to confirm leaving the table. On yes the authority is
// told so it can release everything this peer owns.
func (c *Client) Leave(confirm Confirmer) (bool, error) {
	if confirm != nil && !confirm.Confirm(table.MainMenuPrompt) {
		return false, nil
	}
	return true, c.send(table.Request{Type: table.RequestLeave})
}
