// internal/table/snapshot.go
package table

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a point-in-time copy of a table's live objects.
type Snapshot struct {
	TableID uuid.UUID `json:"tableId"`
	GameID  string    `json:"gameId"`
	Reason  string    `json:"reason"`
	TakenAt time.Time `json:"takenAt"`
	Objects []Object  `json:"objects"`
}

// Snapshot copies the current table state.
func (t *Table) Snapshot(reason string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.takeSnapshot(reason)
}

// Assumes lock is held by caller.
func (t *Table) takeSnapshot(reason string) Snapshot {
	snap := Snapshot{
		TableID: t.ID,
		Reason:  reason,
		TakenAt: time.Now().UTC(),
		Objects: t.snapshotObjects(),
	}
	if t.Game != nil {
		snap.GameID = t.Game.ID
	}
	return snap
}

// persistSnapshot saves the current state asynchronously.
// Assumes lock is held by caller.
func (t *Table) persistSnapshot(reason string) {
	if t.Snapshots == nil {
		return
	}
	snap := t.takeSnapshot(reason)
	store := t.Snapshots
	t.writes.Add(1)
	go func() {
		defer t.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Log.Errorf("Table %s: Failed saving %s snapshot: %v", t.ID, reason, err)
		}
	}()
	t.logAction(uuid.Nil, "table_snapshot_saved", map[string]interface{}{"reason": reason, "objects": len(snap.Objects)})
}

// Restore respawns the objects of snap as unowned playables with fresh
// NetIDs. Dice keep their value and do not roll.
func (t *Table) Restore(snap Snapshot) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, src := range snap.Objects {
		if !restorable(src) {
			t.Log.Warnf("Table %s: Skipping malformed %s playable %d in snapshot.", t.ID, src.Kind, src.ID)
			continue
		}
		o := src.Clone()
		o.Owner = uuid.Nil
		t.spawn(&o)
		if o.Kind == KindDie && src.Die != nil {
			t.setDieValue(&o, src.Die.Value)
		}
		n++
	}
	t.Log.Infof("Table %s: Restored %d playables from snapshot of table %s.", t.ID, n, snap.TableID)
	return n
}

// restorable reports whether a stored object carries the state its kind needs.
func restorable(o Object) bool {
	switch o.Kind {
	case KindStack:
		return o.Stack != nil
	case KindCard:
		return o.Card != nil
	default:
		return o.Kind.Valid()
	}
}
