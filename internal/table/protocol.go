// internal/table/protocol.go
package table

import "github.com/google/uuid"

// RequestType names a request a peer sends to the authority.
type RequestType string

// Requests accepted by the authority. Any peer may send any of them; the
// authority decides which are honored.
const (
	RequestSpawn            RequestType = "spawn"
	RequestTakeOwnership    RequestType = "take_ownership"
	RequestReleaseOwnership RequestType = "release_ownership"
	RequestMove             RequestType = "move"      // owner only
	RequestSetValue         RequestType = "set_value" // die
	RequestRoll             RequestType = "roll"      // die
	RequestDelete           RequestType = "delete"
	RequestLoadDeck         RequestType = "load_deck"
	RequestDeal             RequestType = "deal"
	RequestShuffle          RequestType = "shuffle" // stack
	RequestFlip             RequestType = "flip"    // card
	RequestRestart          RequestType = "restart"
	RequestSync             RequestType = "sync"
	RequestLeave            RequestType = "leave" // submitted by the transport when a peer disconnects
)

// SpawnParams describes a playable to create.
type SpawnParams struct {
	Kind     Kind     `json:"kind"`
	Position Vec2     `json:"position"`
	Rotation float64  `json:"rotation,omitempty"`
	Min      int      `json:"min,omitempty"`    // die
	Max      int      `json:"max,omitempty"`    // die
	Name     string   `json:"name,omitempty"`   // stack
	Cards    []string `json:"cards,omitempty"`  // stack
	CardID   string   `json:"cardId,omitempty"` // card
	FaceUp   bool     `json:"faceUp,omitempty"` // card
}

// DeckParams describes a deck to load onto the table.
type DeckParams struct {
	Name     string   `json:"name"`
	Cards    []string `json:"cards"`
	Position Vec2     `json:"position"`
}

// Request is a message from a peer to the authority. Peer is filled in by
// the transport from the authenticated connection, never trusted from the wire.
type Request struct {
	Type     RequestType  `json:"type"`
	Peer     uuid.UUID    `json:"peer"`
	Target   NetID        `json:"target,omitempty"`
	Spawn    *SpawnParams `json:"spawn,omitempty"`
	Deck     *DeckParams  `json:"deck,omitempty"`
	Position *Vec2        `json:"position,omitempty"`
	Rotation *float64     `json:"rotation,omitempty"`
	Value    *int         `json:"value,omitempty"`
	Count    int          `json:"count,omitempty"`
}

// EventType names a broadcast or private event from the authority.
type EventType string

const (
	EventSpawned      EventType = "playable_spawned"
	EventOwnerChanged EventType = "playable_owner"
	EventMoved        EventType = "playable_moved"
	EventDieValue     EventType = "die_value"
	EventDieRolling   EventType = "die_rolling"
	EventStackCards   EventType = "stack_cards"
	EventCardFlipped  EventType = "card_flipped"
	EventDespawned    EventType = "playable_despawned"
	EventTableReset   EventType = "table_reset"

	EventPrivateDealt       EventType = "private_dealt"        // Private: cards dealt into the requester's hand.
	EventPrivateSyncState   EventType = "private_sync_state"   // Private: every live object.
	EventPrivateRequestFail EventType = "private_request_fail" // Private: a request was refused.
)

// Event is the canonical state change broadcast by the authority.
type Event struct {
	Type  EventType `json:"type"`
	Seq   uint64    `json:"seq"`
	Table uuid.UUID `json:"table"`
	ID    NetID     `json:"id,omitempty"`

	Object   *Object    `json:"object,omitempty"`
	Objects  []Object   `json:"objects,omitempty"`
	Owner    *uuid.UUID `json:"owner,omitempty"`
	Position *Vec2      `json:"position,omitempty"`
	Rotation *float64   `json:"rotation,omitempty"`
	Value    *int       `json:"value,omitempty"`
	FaceUp   *bool      `json:"faceUp,omitempty"`
	Cards    []string   `json:"cards,omitempty"`

	Request RequestType `json:"request,omitempty"` // failed request type
	Message string      `json:"message,omitempty"`
}
