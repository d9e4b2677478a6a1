// internal/peer/apply.go
package peer

import (
	"slices"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/internal/table"
)

// Apply folds one authority event into the mirror. It is the only way
// mirrored state changes. Events for despawned playables and replayed
// sequence numbers are dropped.
func (c *Client) Apply(ev table.Event) {
	c.mu.Lock()
	if ev.Seq != 0 && ev.Seq <= c.lastSeq {
		c.mu.Unlock()
		return
	}
	if ev.Seq != 0 {
		c.lastSeq = ev.Seq
	}
	if ev.ID != 0 {
		if _, dead := c.tombstones[ev.ID]; dead {
			c.mu.Unlock()
			c.log.Debugf("Peer %s: %s for despawned playable %d dropped.", c.Self, ev.Type, ev.ID)
			return
		}
	}
	followUps := c.applyLocked(ev)
	c.mu.Unlock()

	for _, req := range followUps {
		if err := c.send(req); err != nil {
			c.log.Warnf("Peer %s: Failed sending %s for playable %d: %v", c.Self, req.Type, req.Target, err)
		}
	}
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}

// applyLocked mutates the mirror and returns requests to send once the lock
// is released. Assumes lock is held by caller.
func (c *Client) applyLocked(ev table.Event) []table.Request {
	switch ev.Type {
	case table.EventSpawned:
		if ev.Object == nil {
			return nil
		}
		o := ev.Object.Clone()
		if _, exists := c.objects[o.ID]; !exists {
			c.order = append(c.order, o.ID)
		}
		c.objects[o.ID] = &o

	case table.EventOwnerChanged:
		o, ok := c.objects[ev.ID]
		if !ok {
			return nil
		}
		owner := uuid.Nil
		if ev.Owner != nil {
			owner = *ev.Owner
		}
		o.Owner = owner
		if owner != c.Self {
			if c.pendingOwn[ev.ID] {
				// Our request is queued behind this one and will win.
				return nil
			}
			c.dropPreview(ev.ID)
			return nil
		}
		delete(c.pendingOwn, ev.ID)
		if c.releaseOnGrant[ev.ID] {
			// Granted after the drag ended: nothing to commit.
			delete(c.releaseOnGrant, ev.ID)
			return []table.Request{{Type: table.RequestReleaseOwnership, Target: ev.ID}}
		}
		if !c.dragging[ev.ID] {
			return nil
		}
		if pos, ok := c.previews[ev.ID]; ok {
			return []table.Request{{Type: table.RequestMove, Target: ev.ID, Position: &pos}}
		}

	case table.EventMoved:
		o, ok := c.objects[ev.ID]
		if !ok {
			return nil
		}
		if ev.Position != nil {
			o.Position = *ev.Position
		}
		if ev.Rotation != nil {
			o.Rotation = *ev.Rotation
		}
		if pos, ok := c.previews[ev.ID]; ok {
			if (o.Owner != c.Self && !c.pendingOwn[ev.ID]) || (o.Owner == c.Self && !c.dragging[ev.ID] && pos == o.Position) {
				delete(c.previews, ev.ID)
			}
		}

	case table.EventDieValue:
		if o, ok := c.objects[ev.ID]; ok && o.Die != nil && ev.Value != nil {
			o.Die.Value = *ev.Value
			o.Die.Rolling = false
		}

	case table.EventDieRolling:
		if o, ok := c.objects[ev.ID]; ok && o.Die != nil {
			o.Die.Rolling = true
		}

	case table.EventStackCards:
		if o, ok := c.objects[ev.ID]; ok && o.Stack != nil {
			o.Stack.Cards = slices.Clone(ev.Cards)
		}

	case table.EventCardFlipped:
		if o, ok := c.objects[ev.ID]; ok && o.Card != nil && ev.FaceUp != nil {
			o.Card.FaceUp = *ev.FaceUp
		}

	case table.EventDespawned:
		c.remove(ev.ID)
		c.tombstones[ev.ID] = struct{}{}

	case table.EventTableReset:
		for _, id := range slices.Clone(c.order) {
			c.remove(id)
		}
		c.hand = nil

	case table.EventPrivateDealt:
		c.hand = append(c.hand, ev.Cards...)

	case table.EventPrivateSyncState:
		live := make(map[table.NetID]bool, len(ev.Objects))
		c.order = c.order[:0]
		clear(c.objects)
		for _, src := range ev.Objects {
			if _, dead := c.tombstones[src.ID]; dead {
				continue
			}
			o := src.Clone()
			c.objects[o.ID] = &o
			c.order = append(c.order, o.ID)
			live[o.ID] = true
		}
		for id := range c.previews {
			if !live[id] {
				c.dropPreview(id)
			}
		}

	case table.EventPrivateRequestFail:
		c.log.Warnf("Peer %s: Request %s on playable %d refused: %s", c.Self, ev.Request, ev.ID, ev.Message)
		switch ev.Request {
		case table.RequestMove, table.RequestTakeOwnership:
			c.dropPreview(ev.ID)
		}

	default:
		c.log.Debugf("Peer %s: Unknown event type '%s' ignored.", c.Self, ev.Type)
	}
	return nil
}

// dropPreview rolls back any local drag state for id.
// Assumes lock is held by caller.
func (c *Client) dropPreview(id table.NetID) {
	delete(c.previews, id)
	delete(c.dragging, id)
	delete(c.pendingOwn, id)
	delete(c.releaseOnGrant, id)
}

// Assumes lock is held by caller.
func (c *Client) remove(id table.NetID) {
	delete(c.objects, id)
	c.order = slices.DeleteFunc(c.order, func(x table.NetID) bool { return x == id })
	c.dropPreview(id)
}
