package engine

import "strings"

// EnumDelimiter joins the display strings of a multi-flag lookup key.
const EnumDelimiter = " | "

// EnumValue is one declared entry of an enum definition.
type EnumValue struct {
	Key     string // raw value as stored on cards
	Display string // human-readable string
}

// EnumDef maps a property's raw stored values to display strings and integer
// lookup keys. Build it with NewEnumDef; the zero value resolves nothing.
type EnumDef struct {
	Property          string
	LookupEqualsValue bool

	values  []EnumValue
	display map[string]string // raw key -> display
	reverse map[string]int    // raw key or display alias -> lookup key
	keys    []int             // lookup key per declared value, same order as values
}

// NewEnumDef builds the lookup tables for an enum. Each value receives the
// lookup key 1<<index, unless lookupEqualsValue is set and the raw key parses
// as an integer, in which case that integer is the lookup key.
func NewEnumDef(property string, lookupEqualsValue bool, values []EnumValue) *EnumDef {
	d := &EnumDef{
		Property:          property,
		LookupEqualsValue: lookupEqualsValue,
		values:            append([]EnumValue(nil), values...),
		display:           make(map[string]string, len(values)),
		reverse:           make(map[string]int, len(values)*2),
		keys:              make([]int, len(values)),
	}
	flag := 1
	for i, v := range d.values {
		key := flag
		if lookupEqualsValue {
			if n, ok := ParseInt(v.Key); ok {
				key = n
			}
		}
		flag <<= 1
		d.keys[i] = key
		if _, dup := d.display[v.Key]; !dup {
			d.display[v.Key] = v.Display
		}
		if _, dup := d.reverse[v.Key]; !dup {
			d.reverse[v.Key] = key
		}
		if _, dup := d.reverse[v.Display]; !dup && v.Display != "" {
			d.reverse[v.Display] = key
		}
	}
	return d
}

// Values returns the declared values in order.
func (d *EnumDef) Values() []EnumValue {
	return append([]EnumValue(nil), d.values...)
}

// ReverseLookup resolves a raw key or display alias to its lookup key.
func (d *EnumDef) ReverseLookup(s string) (int, bool) {
	if d == nil {
		return 0, false
	}
	k, ok := d.reverse[s]
	return k, ok
}

// Display returns the display string declared for a raw key.
func (d *EnumDef) Display(raw string) (string, bool) {
	if d == nil {
		return "", false
	}
	s, ok := d.display[raw]
	return s, ok
}

// StringFromLookupKeys renders a lookup key. An exact key match returns its
// display string; otherwise every declared value whose key shares a bit with
// lookupKeys contributes, joined by EnumDelimiter in declared order.
func (d *EnumDef) StringFromLookupKeys(lookupKeys int) string {
	if d == nil {
		return ""
	}
	for i, k := range d.keys {
		if k == lookupKeys {
			return d.values[i].Display
		}
	}
	var parts []string
	for i, k := range d.keys {
		if lookupKeys&k != 0 {
			parts = append(parts, d.values[i].Display)
		}
	}
	return strings.Join(parts, EnumDelimiter)
}

// EnumTable holds the enum definitions of one game, keyed by property name.
type EnumTable struct {
	defs  map[string]*EnumDef
	order []string
}

// NewEnumTable indexes defs by property. Later duplicates are ignored.
func NewEnumTable(defs ...*EnumDef) *EnumTable {
	t := &EnumTable{defs: make(map[string]*EnumDef, len(defs))}
	for _, d := range defs {
		if d == nil {
			continue
		}
		if _, dup := t.defs[d.Property]; dup {
			continue
		}
		t.defs[d.Property] = d
		t.order = append(t.order, d.Property)
	}
	return t
}

// For returns the enum definition for a property, or nil.
func (t *EnumTable) For(property string) *EnumDef {
	if t == nil {
		return nil
	}
	return t.defs[property]
}

// Len reports how many enum definitions the table holds.
func (t *EnumTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Defs returns the definitions in declaration order.
func (t *EnumTable) Defs() []*EnumDef {
	if t == nil {
		return nil
	}
	out := make([]*EnumDef, 0, len(t.order))
	for _, p := range t.order {
		out = append(out, t.defs[p])
	}
	return out
}
