package engine

import (
	"fmt"
	"testing"
)

var (
	defName   = PropertyDef{Name: "name", Type: PropertyString}
	defCost   = PropertyDef{Name: "cost", Type: PropertyInteger}
	defColor  = PropertyDef{Name: "color", Type: PropertyEnum}
	defColors = PropertyDef{Name: "colors", Type: PropertyEnumList}
)

func testEnums() *EnumTable {
	return NewEnumTable(
		colorEnum(),
		NewEnumDef("colors", false, []EnumValue{
			{Key: "r", Display: "Red"},
			{Key: "g", Display: "Green"},
		}),
	)
}

func newTestCard(id, name, cost, color string) *Card {
	return NewCard(id, name, "", []PropertyValue{
		{Def: defName, Value: name},
		{Def: defCost, Value: cost},
		{Def: defColor, Value: color},
	}, testEnums())
}

// TestNewCardDefaults verifies set code defaulting and blank cards.
func TestNewCardDefaults(t *testing.T) {
	c := newTestCard("a", "Alpha", "1", "r")
	if c.SetCode() != DefaultSetCode {
		t.Errorf("SetCode = %q, want %q", c.SetCode(), DefaultSetCode)
	}
	b := BlankCard()
	if b.ID() != "" || b.Name() != "" || b.SetCode() != DefaultSetCode || len(b.Properties()) != 0 {
		t.Errorf("BlankCard = %+v", b)
	}
}

// TestAbsentProperties verifies that missing lookups degrade to zero values.
func TestAbsentProperties(t *testing.T) {
	c := newTestCard("a", "Alpha", "1", "r")
	for _, name := range []string{"", "missing", "Name"} {
		if got := c.ValueAsString(name); got != "" {
			t.Errorf("ValueAsString(%q) = %q, want empty", name, got)
		}
		if got := c.ValueAsInt(name); got != 0 {
			t.Errorf("ValueAsInt(%q) = %d, want 0", name, got)
		}
		if got := c.ValueAsEnumKey(name); got != 0 {
			t.Errorf("ValueAsEnumKey(%q) = %d, want 0", name, got)
		}
	}
}

// TestValueAsInt verifies hex, decimal and non-numeric values.
func TestValueAsInt(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"0x1F", 31},
		{"31", 31},
		{"notanumber", 0},
		{"-4", -4},
	}
	for _, tt := range tests {
		c := newTestCard("a", "Alpha", tt.raw, "r")
		if got := c.ValueAsInt("cost"); got != tt.want {
			t.Errorf("cost %q: ValueAsInt = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

// TestValueAsStringEnum verifies enum display resolution and fallbacks.
func TestValueAsStringEnum(t *testing.T) {
	tests := []struct {
		color string
		want  string
	}{
		{"r", "Red"},
		{"Blue", "Blue"},     // alias resolves to its own display
		{"purple", "purple"}, // unknown falls back to raw
	}
	for _, tt := range tests {
		c := newTestCard("a", "Alpha", "1", tt.color)
		if got := c.ValueAsString("color"); got != tt.want {
			t.Errorf("color %q: ValueAsString = %q, want %q", tt.color, got, tt.want)
		}
	}
	// Properties without an enum definition return the raw value.
	c := newTestCard("a", "Alpha", "0x10", "r")
	if got := c.ValueAsString("cost"); got != "0x10" {
		t.Errorf("ValueAsString(cost) = %q, want raw 0x10", got)
	}
}

// TestEnumListParsesDirectly verifies that enum lists store lookup keys.
func TestEnumListParsesDirectly(t *testing.T) {
	c := NewCard("a", "Alpha", "", []PropertyValue{{Def: defColors, Value: "3"}}, testEnums())
	if got := c.ValueAsEnumKey("colors"); got != 3 {
		t.Errorf("ValueAsEnumKey = %d, want 3", got)
	}
	if got := c.ValueAsString("colors"); got != "Red | Green" {
		t.Errorf("ValueAsString = %q, want %q", got, "Red | Green")
	}
	// A non-numeric list value still reverse-looks up.
	c = NewCard("b", "Beta", "", []PropertyValue{{Def: defColors, Value: "g"}}, testEnums())
	if got := c.ValueAsEnumKey("colors"); got != 2 {
		t.Errorf("ValueAsEnumKey(g) = %d, want 2", got)
	}
}

// TestValueAsEnumKey verifies reverse lookup and the no-enum case.
func TestValueAsEnumKey(t *testing.T) {
	c := newTestCard("a", "Alpha", "5", "b")
	if got := c.ValueAsEnumKey("color"); got != 4 {
		t.Errorf("ValueAsEnumKey(color) = %d, want 4", got)
	}
	if got := c.ValueAsEnumKey("cost"); got != 0 {
		t.Errorf("ValueAsEnumKey(cost) = %d, want 0 (no enum)", got)
	}
	c = newTestCard("a", "Alpha", "5", "purple")
	if got := c.ValueAsEnumKey("color"); got != 0 {
		t.Errorf("ValueAsEnumKey(purple) = %d, want 0", got)
	}
}

// TestCloneIndependence verifies clones share identity but not storage.
func TestCloneIndependence(t *testing.T) {
	props := []PropertyValue{{Def: defName, Value: "Alpha"}}
	c := NewCard("a", "Alpha", "", props, nil)
	props[0].Value = "mutated input"
	if got := c.ValueAsString("name"); got != "Alpha" {
		t.Fatalf("constructor did not copy input: %q", got)
	}

	clone := c.Clone()
	if !clone.Equal(c) || clone == c {
		t.Fatal("clone should equal by id but be a distinct value")
	}
	m := clone.CloneProperties()
	m["name"] = PropertyValue{Def: defName, Value: "changed"}
	delete(m, "name")
	ps := clone.Properties()
	ps[0].Value = "changed"
	if c.ValueAsString("name") != "Alpha" || clone.ValueAsString("name") != "Alpha" {
		t.Error("mutating copies leaked into a card")
	}
}

// TestEqualByID verifies equality ignores everything but the id.
func TestEqualByID(t *testing.T) {
	a := newTestCard("x", "Alpha", "1", "r")
	b := newTestCard("x", "Beta", "9", "g")
	c := newTestCard("y", "Alpha", "1", "r")
	if !a.Equal(b) {
		t.Error("cards with the same id should be equal")
	}
	if a.Equal(c) || a.Equal(nil) {
		t.Error("cards with different ids should differ")
	}
}

// TestCompareTo verifies ordering across declared properties.
func TestCompareTo(t *testing.T) {
	a := newTestCard("1", "Alpha", "2", "r")
	b := newTestCard("2", "Alpha", "10", "r") // numeric, so 2 < 10
	c := newTestCard("3", "Beta", "0", "r")
	if a.CompareTo(b) >= 0 {
		t.Error("Alpha/2 should sort before Alpha/10")
	}
	if b.CompareTo(c) >= 0 {
		t.Error("Alpha sorts before Beta regardless of cost")
	}
	if a.CompareTo(a.Clone()) != 0 {
		t.Error("identical values should compare equal")
	}
	if a.CompareTo(nil) != -1 {
		t.Error("CompareTo(nil) should be -1")
	}
	// Enum properties compare by ValueAsInt of the raw value.
	e1 := newTestCard("4", "Alpha", "2", "0x01")
	e2 := newTestCard("5", "Alpha", "2", "0x02")
	if e1.CompareTo(e2) >= 0 {
		t.Error("enum 0x01 should sort before 0x02")
	}
}

// TestCompareToTotalOrder checks antisymmetry and transitivity over a grid.
func TestCompareToTotalOrder(t *testing.T) {
	var cards []*Card
	for i, name := range []string{"Alpha", "Beta", "Gamma"} {
		for j, cost := range []string{"0x0A", "3", "-1", "junk"} {
			cards = append(cards, newTestCard(fmt.Sprintf("%d-%d", i, j), name, cost, "r"))
		}
	}
	for _, a := range cards {
		for _, b := range cards {
			if sign(a.CompareTo(b)) != -sign(b.CompareTo(a)) {
				t.Fatalf("antisymmetry broken for %s/%s", a.ID(), b.ID())
			}
			for _, c := range cards {
				if a.CompareTo(b) <= 0 && b.CompareTo(c) <= 0 && a.CompareTo(c) > 0 {
					t.Fatalf("transitivity broken for %s/%s/%s", a.ID(), b.ID(), c.ID())
				}
			}
		}
	}
}

// TestSortCards verifies a stable sort by CompareTo.
func TestSortCards(t *testing.T) {
	cards := []*Card{
		newTestCard("c", "Gamma", "1", "r"),
		newTestCard("a1", "Alpha", "5", "r"),
		newTestCard("a0", "Alpha", "0x1", "r"),
		newTestCard("a2", "Alpha", "5", "r"),
	}
	SortCards(cards)
	want := []string{"a0", "a1", "a2", "c"}
	for i, id := range want {
		if cards[i].ID() != id {
			t.Fatalf("position %d = %s, want %s", i, cards[i].ID(), id)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
