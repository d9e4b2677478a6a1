// internal/table/scheduler.go
package table

import (
	"time"

	"github.com/jason-s-yu/cgs/engine"
)

// Behavior is per-kind logic the authority runs for each live object.
// All hooks run on the tick with the table lock held.
type Behavior interface {
	OnInit(t *Table, o *Object)
	OnTick(t *Table, o *Object, dt time.Duration)
	OnTeardown(t *Table, o *Object)
}

// BehaviorFuncs adapts plain functions to Behavior. Nil hooks are skipped.
type BehaviorFuncs struct {
	Init     func(t *Table, o *Object)
	Tick     func(t *Table, o *Object, dt time.Duration)
	Teardown func(t *Table, o *Object)
}

func (b BehaviorFuncs) OnInit(t *Table, o *Object) {
	if b.Init != nil {
		b.Init(t, o)
	}
}

func (b BehaviorFuncs) OnTick(t *Table, o *Object, dt time.Duration) {
	if b.Tick != nil {
		b.Tick(t, o, dt)
	}
}

func (b BehaviorFuncs) OnTeardown(t *Table, o *Object) {
	if b.Teardown != nil {
		b.Teardown(t, o)
	}
}

func defaultBehaviors() map[Kind]Behavior {
	return map[Kind]Behavior{
		KindDie: dieBehavior{},
	}
}

// dieBehavior rolls a die once when it spawns and paces every roll.
type dieBehavior struct{}

func (dieBehavior) OnInit(t *Table, o *Object) {
	if o.Die == nil {
		o.Die = &DieState{}
	}
	o.Die.Min, o.Die.Max = engine.NormalizeDieBounds(o.Die.Min, o.Die.Max)
	if o.Die.Value < o.Die.Min {
		o.Die.Value = o.Die.Min
	}
	o.Die.Value = engine.WrapDieValue(o.Die.Value, o.Die.Min, o.Die.Max)
	startRoll(o)
}

func (dieBehavior) OnTick(t *Table, o *Object, dt time.Duration) {
	if o.Die == nil || o.rollRemaining <= 0 {
		return
	}
	o.rollRemaining -= dt
	o.rollDelay += dt
	if o.rollDelay >= engine.DieRollDelay {
		// Cosmetic face; only the settled value is broadcast.
		o.Die.Value = t.rng.Between(o.Die.Min, o.Die.Max)
		o.rollDelay = 0
	}
	if o.rollRemaining <= 0 {
		t.setDieValue(o, o.Die.Value)
	}
}

func (dieBehavior) OnTeardown(t *Table, o *Object) {
	stopRoll(o)
}

func startRoll(o *Object) {
	o.rollRemaining = engine.DieRollTime
	o.rollDelay = 0
	o.Die.Rolling = true
}

func stopRoll(o *Object) {
	o.rollRemaining = 0
	o.rollDelay = 0
	if o.Die != nil {
		o.Die.Rolling = false
	}
}

// setDieValue wraps v into the die's range, ends any roll and broadcasts the
// committed value. Assumes lock is held by caller.
func (t *Table) setDieValue(o *Object, v int) {
	stopRoll(o)
	o.Die.Value = engine.WrapDieValue(v, o.Die.Min, o.Die.Max)
	val := o.Die.Value
	t.fireEvent(Event{Type: EventDieValue, ID: o.ID, Value: &val})
}
