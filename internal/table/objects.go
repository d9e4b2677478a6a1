// internal/table/objects.go
package table

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// NetID identifies a replicated playable within one table. Assigned by the
// authority at spawn and never reused.
type NetID uint64

// Kind is the subtype of a playable.
type Kind string

const (
	KindDie   Kind = "die"
	KindToken Kind = "token"
	KindStack Kind = "stack"
	KindCard  Kind = "card"
)

// Valid reports whether k is a known playable kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDie, KindToken, KindStack, KindCard:
		return true
	}
	return false
}

// DeletePrompt is the confirmation question shown before deleting a playable of this kind.
func (k Kind) DeletePrompt() string {
	switch k {
	case KindDie:
		return "Delete die?"
	case KindToken:
		return "Delete token?"
	case KindStack:
		return "Delete cards?"
	case KindCard:
		return "Delete card?"
	}
	return "Delete?"
}

// Prompts for table-wide destructive actions.
const (
	RestartPrompt  = "Restart?"
	MainMenuPrompt = "Go back to the main menu?"
)

// Vec2 is a position on the play mat.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DieState is the replicated state of a die.
type DieState struct {
	Value   int  `json:"value"`
	Min     int  `json:"min"`
	Max     int  `json:"max"`
	Rolling bool `json:"rolling,omitempty"`
}

// StackState is the replicated state of a card stack. Cards are card ids,
// bottom first; the last element is the top card.
type StackState struct {
	Name  string   `json:"name"`
	Cards []string `json:"cards"`
}

// CardState is the replicated state of a single card on the table.
type CardState struct {
	CardID string `json:"cardId"`
	FaceUp bool   `json:"faceUp"`
}

// Object is a replicated playable. Exactly one of Die, Stack or Card is set
// for the matching kinds; tokens carry no extra state.
type Object struct {
	ID       NetID     `json:"id"`
	Kind     Kind      `json:"kind"`
	Position Vec2      `json:"position"`
	Rotation float64   `json:"rotation"`
	Owner    uuid.UUID `json:"owner"` // uuid.Nil when unowned

	Die   *DieState   `json:"die,omitempty"`
	Stack *StackState `json:"stack,omitempty"`
	Card  *CardState  `json:"card,omitempty"`

	// Authority-only roll pacing; never replicated.
	rollRemaining time.Duration
	rollDelay     time.Duration
}

// Owned reports whether any peer owns the object.
func (o *Object) Owned() bool { return o.Owner != uuid.Nil }

// Clone returns a deep copy without authority-only fields.
func (o *Object) Clone() Object {
	c := Object{
		ID:       o.ID,
		Kind:     o.Kind,
		Position: o.Position,
		Rotation: o.Rotation,
		Owner:    o.Owner,
	}
	if o.Die != nil {
		d := *o.Die
		c.Die = &d
	}
	if o.Stack != nil {
		c.Stack = &StackState{Name: o.Stack.Name, Cards: slices.Clone(o.Stack.Cards)}
	}
	if o.Card != nil {
		cs := *o.Card
		c.Card = &cs
	}
	return c
}
