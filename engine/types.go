package engine

import (
	"strconv"
	"strings"
)

// DefaultSetCode is the set code assigned to cards that declare none.
const DefaultSetCode = "_CGSDEFAULT_"

// HexPrefix marks a property value as hexadecimal.
const HexPrefix = "0x"

// PropertyType is the declared type of a card property.
type PropertyType uint8

const (
	PropertyString   PropertyType = iota // 0
	PropertyInteger                      // 1
	PropertyEnum                         // 2
	PropertyEnumList                     // 3
)

// String returns the lower-case name used in game definition files.
func (t PropertyType) String() string {
	switch t {
	case PropertyInteger:
		return "integer"
	case PropertyEnum:
		return "enum"
	case PropertyEnumList:
		return "enumList"
	default:
		return "string"
	}
}

// ParsePropertyType maps a definition-file type name to a PropertyType.
// Unknown names are treated as strings.
func ParsePropertyType(s string) PropertyType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int":
		return PropertyInteger
	case "enum":
		return PropertyEnum
	case "enumlist":
		return PropertyEnumList
	default:
		return PropertyString
	}
}

// PropertyDef declares a card property shared by every card of a game.
type PropertyDef struct {
	Name    string
	Type    PropertyType
	Display string
}

// PropertyValue pairs a property definition with one card's raw stored value.
type PropertyValue struct {
	Def   PropertyDef
	Value string
}

// ParseInt parses s as a 32-bit integer: hexadecimal when prefixed with 0x,
// otherwise signed base-10. Hex values above 0x7FFFFFFF wrap negative.
func ParseInt(s string) (int, bool) {
	if strings.HasPrefix(s, HexPrefix) {
		u, err := strconv.ParseUint(s[len(HexPrefix):], 16, 32)
		if err != nil {
			return 0, false
		}
		return int(int32(uint32(u))), true
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
