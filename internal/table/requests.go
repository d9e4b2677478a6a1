// internal/table/requests.go
package table

import (
	"slices"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/engine"
)

// apply routes one request. Assumes lock is held by caller.
func (t *Table) apply(req Request) {
	if req.Peer == uuid.Nil {
		t.Log.Warnf("Table %s: Anonymous %s request ignored.", t.ID, req.Type)
		return
	}
	switch req.Type {
	case RequestSpawn:
		t.handleSpawn(req)
	case RequestTakeOwnership:
		t.handleTakeOwnership(req)
	case RequestReleaseOwnership:
		t.handleReleaseOwnership(req)
	case RequestMove:
		t.handleMove(req)
	case RequestSetValue:
		t.handleSetValue(req)
	case RequestRoll:
		t.handleRoll(req)
	case RequestDelete:
		t.handleDelete(req)
	case RequestLoadDeck:
		t.handleLoadDeck(req)
	case RequestDeal:
		t.handleDeal(req)
	case RequestShuffle:
		t.handleShuffle(req)
	case RequestFlip:
		t.handleFlip(req)
	case RequestRestart:
		t.handleRestart(req)
	case RequestSync:
		t.handleSync(req)
	case RequestLeave:
		t.handleLeave(req)
	default:
		t.Log.WithField("peer", req.Peer).Warnf("Table %s: Unknown request type '%s' ignored.", t.ID, req.Type)
	}
}

func (t *Table) handleSpawn(req Request) {
	p := req.Spawn
	if p == nil || !p.Kind.Valid() {
		t.fail(req, "invalid spawn parameters")
		return
	}
	o := &Object{Kind: p.Kind, Position: p.Position, Rotation: p.Rotation}
	switch p.Kind {
	case KindDie:
		o.Die = &DieState{Min: p.Min, Max: p.Max}
	case KindStack:
		o.Stack = &StackState{Name: p.Name, Cards: t.knownCards(p.Cards)}
	case KindCard:
		if p.CardID == "" || (t.Game != nil && !t.Game.HasCard(p.CardID)) {
			t.fail(req, "unknown card "+p.CardID)
			return
		}
		o.Card = &CardState{CardID: p.CardID, FaceUp: p.FaceUp}
	}
	t.spawn(o)
	t.logAction(req.Peer, "playable_spawn", map[string]interface{}{"id": o.ID, "kind": string(o.Kind)})
}

// knownCards drops ids the game does not define.
func (t *Table) knownCards(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if t.Game != nil && !t.Game.HasCard(id) {
			t.Log.Warnf("Table %s: Unknown card %s dropped.", t.ID, id)
			continue
		}
		out = append(out, id)
	}
	return out
}

func (t *Table) handleTakeOwnership(req Request) {
	o, ok := t.lookup(req.Target, req.Type)
	if !ok || o.Owner == req.Peer {
		return
	}
	t.setOwner(o, req.Peer)
}

func (t *Table) handleReleaseOwnership(req Request) {
	o, ok := t.lookup(req.Target, req.Type)
	if !ok || o.Owner != req.Peer {
		return
	}
	t.setOwner(o, uuid.Nil)
}

// Assumes lock is held by caller.
func (t *Table) setOwner(o *Object, owner uuid.UUID) {
	o.Owner = owner
	t.fireEvent(Event{Type: EventOwnerChanged, ID: o.ID, Owner: &owner})
}

func (t *Table) handleMove(req Request) {
	o, ok := t.lookup(req.Target, req.Type)
	if !ok {
		return
	}
	if o.Owner != req.Peer {
		t.fail(req, "not the owner")
		return
	}
	if req.Position != nil {
		o.Position = *req.Position
	}
	if req.Rotation != nil {
		o.Rotation = *req.Rotation
	}
	pos, rot := o.Position, o.Rotation
	t.fireEvent(Event{Type: EventMoved, ID: o.ID, Position: &pos, Rotation: &rot})
}

func (t *Table) handleSetValue(req Request) {
	o, ok := t.lookup(req.Target, req.Type)
	if !ok {
		return
	}
	if o.Kind != KindDie || req.Value == nil {
		t.fail(req, "not a die value")
		return
	}
	t.setDieValue(o, *req.Value)
}

func (t *Table) handleRoll(req Request) {
	o, ok := t.lookup(req.Target, req.Type)
	if !ok {
		return
	}
	if o.Kind != KindDie {
		t.fail(req, "not a die")
		return
	}
	startRoll(o)
	t.fireEvent(Event{Type: EventDieRolling, ID: o.ID})
	t.logAction(req.Peer, "die_roll", map[string]interface{}{"id": o.ID})
}

func (t *Table) handleDelete(req Request) {
	o, ok := t.lookup(req.Target, req.Type)
	if !ok {
		return
	}
	t.despawn(o)
	t.logAction(req.Peer, "playable_delete", map[string]interface{}{"id": o.ID, "kind": string(o.Kind)})
}

// handleLoadDeck spawns a shuffled main deck at the requested position and
// one stack per extra group to its right.
func (t *Table) handleLoadDeck(req Request) {
	p := req.Deck
	if p == nil || len(p.Cards) == 0 {
		t.fail(req, "empty deck")
		return
	}
	var groupOf func(string) string
	cardWidth := 2.5
	name := p.Name
	if t.Game != nil {
		groupOf = t.Game.ExtraGroup
		cardWidth = t.Game.CardSize.X
		if name == "" {
			name = t.Game.GamePlayDeckName
		}
	}
	main, groups, extras := engine.SplitExtras(t.knownCards(p.Cards), groupOf)
	engine.Shuffle(t.rng, main)

	deck := t.spawn(&Object{Kind: KindStack, Position: p.Position, Stack: &StackState{Name: name, Cards: main}})
	t.decks[req.Peer] = deck.ID
	step := cardWidth*PixelsPerInch + DeckPositionBuffer
	for i, g := range groups {
		pos := Vec2{X: p.Position.X + float64(i+1)*step, Y: p.Position.Y}
		t.spawn(&Object{Kind: KindStack, Position: pos, Stack: &StackState{Name: g, Cards: extras[g]}})
	}
	t.Log.WithField("peer", req.Peer).Infof("Table %s: Loaded deck '%s' with %d cards and %d extra groups.", t.ID, name, len(main), len(groups))
	t.logAction(req.Peer, "deck_load", map[string]interface{}{"id": deck.ID, "cards": len(main), "extras": groups})
}

// handleDeal pops cards off a stack into the requester's hand. Target 0
// deals from the requester's most recently loaded deck.
func (t *Table) handleDeal(req Request) {
	target := req.Target
	if target == 0 {
		target = t.decks[req.Peer]
		if target == 0 {
			t.fail(req, "no deck loaded")
			return
		}
	}
	o, ok := t.lookup(target, req.Type)
	if !ok {
		return
	}
	if o.Kind != KindStack {
		t.fail(req, "not a stack")
		return
	}
	n := req.Count
	if n <= 0 {
		n = 1
	}
	rest, popped := engine.PopCards(o.Stack.Cards, n)
	if len(popped) == 0 {
		t.fail(req, "stack is empty")
		return
	}
	o.Stack.Cards = rest
	t.fireEvent(Event{Type: EventStackCards, ID: o.ID, Cards: slices.Clone(rest)})
	t.fireEventToPeer(req.Peer, Event{Type: EventPrivateDealt, ID: o.ID, Cards: popped})
	t.logAction(req.Peer, "deal", map[string]interface{}{"id": o.ID, "count": len(popped)})
}

func (t *Table) handleShuffle(req Request) {
	o, ok := t.lookup(req.Target, req.Type)
	if !ok {
		return
	}
	if o.Kind != KindStack {
		t.fail(req, "not a stack")
		return
	}
	engine.Shuffle(t.rng, o.Stack.Cards)
	t.fireEvent(Event{Type: EventStackCards, ID: o.ID, Cards: slices.Clone(o.Stack.Cards)})
	t.logAction(req.Peer, "shuffle", map[string]interface{}{"id": o.ID})
}

func (t *Table) handleFlip(req Request) {
	o, ok := t.lookup(req.Target, req.Type)
	if !ok {
		return
	}
	if o.Kind != KindCard {
		t.fail(req, "not a card")
		return
	}
	o.Card.FaceUp = !o.Card.FaceUp
	up := o.Card.FaceUp
	t.fireEvent(Event{Type: EventCardFlipped, ID: o.ID, FaceUp: &up})
}

// handleRestart persists the current table, then unspawns everything.
func (t *Table) handleRestart(req Request) {
	t.persistSnapshot("restart")
	t.unspawnAll()
	t.fireEvent(Event{Type: EventTableReset})
	t.Log.WithField("peer", req.Peer).Infof("Table %s: Restarted.", t.ID)
	t.logAction(req.Peer, "table_restart", nil)
}

func (t *Table) handleSync(req Request) {
	t.fireEventToPeer(req.Peer, Event{Type: EventPrivateSyncState, Objects: t.snapshotObjects()})
}

// handleLeave releases everything the departing peer owned.
func (t *Table) handleLeave(req Request) {
	for _, id := range t.order {
		if o := t.objects[id]; o.Owner == req.Peer {
			t.setOwner(o, uuid.Nil)
		}
	}
	delete(t.decks, req.Peer)
	t.Log.WithField("peer", req.Peer).Infof("Table %s: Peer %s left.", t.ID, req.Peer)
	t.logAction(req.Peer, "peer_leave", nil)
}
