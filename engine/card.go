package engine

import (
	"cmp"
	"slices"
	"strings"
)

// Card is an immutable card record. Properties keep the order in which they
// were declared; that order drives CompareTo.
type Card struct {
	id      string
	name    string
	setCode string

	props []PropertyValue
	index map[string]int // property name -> position in props
	enums *EnumTable
}

// NewCard builds a card, copying props. enums may be nil when the game
// declares no enumerations.
func NewCard(id, name, setCode string, props []PropertyValue, enums *EnumTable) *Card {
	if setCode == "" {
		setCode = DefaultSetCode
	}
	c := &Card{
		id:      id,
		name:    name,
		setCode: setCode,
		props:   make([]PropertyValue, 0, len(props)),
		index:   make(map[string]int, len(props)),
		enums:   enums,
	}
	for _, p := range props {
		if _, dup := c.index[p.Def.Name]; dup {
			continue
		}
		c.index[p.Def.Name] = len(c.props)
		c.props = append(c.props, p)
	}
	return c
}

// BlankCard returns a card with no identity and no properties.
func BlankCard() *Card {
	return NewCard("", "", "", nil, nil)
}

func (c *Card) ID() string      { return c.id }
func (c *Card) Name() string    { return c.name }
func (c *Card) SetCode() string { return c.setCode }

// Enums returns the enum table the card resolves against.
func (c *Card) Enums() *EnumTable { return c.enums }

// Properties returns a copy of the card's properties in declared order.
func (c *Card) Properties() []PropertyValue {
	return append([]PropertyValue(nil), c.props...)
}

// CloneProperties returns a fresh map of the card's properties. Mutating the
// result never affects the card.
func (c *Card) CloneProperties() map[string]PropertyValue {
	out := make(map[string]PropertyValue, len(c.props))
	for _, p := range c.props {
		out[p.Def.Name] = p
	}
	return out
}

// Clone returns an independent card with the same identity and values.
func (c *Card) Clone() *Card {
	return NewCard(c.id, c.name, c.setCode, c.props, c.enums)
}

// Property returns the raw property pair for name.
func (c *Card) Property(name string) (PropertyValue, bool) {
	if c == nil || name == "" {
		return PropertyValue{}, false
	}
	i, ok := c.index[name]
	if !ok {
		return PropertyValue{}, false
	}
	return c.props[i], true
}

// ValueAsString resolves a property for display. Absent properties yield "".
func (c *Card) ValueAsString(name string) string {
	p, ok := c.Property(name)
	if !ok {
		return ""
	}
	if def := c.enums.For(name); def != nil {
		if key, ok := resolveEnumKey(p, def); ok {
			return def.StringFromLookupKeys(key)
		}
		if s, ok := def.Display(p.Value); ok {
			return s
		}
	}
	return p.Value
}

// ValueAsInt parses a property as hex (0x prefix) or base-10. Absent or
// non-numeric values yield 0.
func (c *Card) ValueAsInt(name string) int {
	p, ok := c.Property(name)
	if !ok {
		return 0
	}
	n, _ := ParseInt(p.Value)
	return n
}

// ValueAsEnumKey resolves a property to its enum lookup key, or 0.
func (c *Card) ValueAsEnumKey(name string) int {
	p, ok := c.Property(name)
	if !ok {
		return 0
	}
	def := c.enums.For(name)
	if def == nil {
		return 0
	}
	key, _ := resolveEnumKey(p, def)
	return key
}

// resolveEnumKey parses the raw value directly for enum lists and
// lookup-equals-value enums, falling back to reverse lookup.
func resolveEnumKey(p PropertyValue, def *EnumDef) (int, bool) {
	if p.Def.Type == PropertyEnumList || def.LookupEqualsValue {
		if n, ok := ParseInt(p.Value); ok {
			return n, true
		}
	}
	return def.ReverseLookup(p.Value)
}

// CompareTo orders cards by their properties in declared order. Enum and
// integer properties compare numerically, everything else by raw string.
// A property missing from other compares as "" or 0.
func (c *Card) CompareTo(other *Card) int {
	if other == nil {
		return -1
	}
	for _, p := range c.props {
		var r int
		switch p.Def.Type {
		case PropertyEnum, PropertyInteger:
			r = cmp.Compare(c.ValueAsInt(p.Def.Name), other.ValueAsInt(p.Def.Name))
		default:
			o, _ := other.Property(p.Def.Name)
			r = strings.Compare(p.Value, o.Value)
		}
		if r != 0 {
			return r
		}
	}
	return 0
}

// Equal reports whether both cards share an id.
func (c *Card) Equal(other *Card) bool {
	if c == nil || other == nil {
		return false
	}
	return c.id == other.id
}

// SortCards sorts cards in place by CompareTo, keeping ties in input order.
func SortCards(cards []*Card) {
	slices.SortStableFunc(cards, func(a, b *Card) int { return a.CompareTo(b) })
}
