// internal/gamedef/gamedef_test.go
package gamedef

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jason-s-yu/cgs/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDefinition = `
name: "Test: Game"
cardImageUrlFormat: "{0}/{4}/{1}.{2}?n={3}&r={5}"
cardImageUrlBase: https://img.example.com
cardImageUrlProperty: rarity
gameStartHandCount: 5
deckUrls:
  - name: Starter
    url: https://decks.example.com/starter.txt
extras:
  - group: Tokens
    property: type
    value: Token
cardProperties:
  - {name: name, type: string}
  - {name: cost, type: integer}
  - {name: rarity, type: enum}
  - {name: type, type: string}
enums:
  - property: rarity
    values:
      c: Common
      u: Uncommon
      r: Rare
cards:
  - {id: c3, name: Zebra, setCode: S1, properties: {name: Zebra, cost: 1, rarity: c}}
  - {id: c1, name: Apple, properties: {name: Apple, cost: "0x0A", rarity: r, extra: ignored}}
  - {id: c2, name: Apple Tree, properties: {name: Apple, cost: 3, rarity: u}}
  - {id: t1, name: Goblin Token, properties: {name: Goblin Token, type: Token}}
`

const jsonDefinition = `{
  "name": "Json Game",
  "cardProperties": [{"name": "power", "type": "enum"}],
  "enums": [{"property": "power", "lookupEqualsValue": true,
             "values": {"0x04": "High", "0x01": "Low"}}],
  "cards": [{"id": "j1", "name": "One", "properties": {"power": "0x04"}}]
}`

func loadYAML(t *testing.T) *Game {
	t.Helper()
	g, err := Load(strings.NewReader(yamlDefinition))
	require.NoError(t, err)
	return g
}

// TestLoadYAML verifies settings, defaults, and the card schema.
func TestLoadYAML(t *testing.T) {
	g := loadYAML(t)

	assert.Equal(t, "Test_ Game", g.ID)
	assert.Equal(t, "png", g.CardImageFileType, "file type should default")
	assert.Equal(t, Vec{X: 2.5, Y: 3.5}, g.CardSize)
	assert.Equal(t, 5, g.GameStartHandCount)
	require.Len(t, g.DeckURLs, 1)
	assert.Equal(t, "Starter", g.DeckURLs[0].Name)
	require.Len(t, g.Properties, 4)
	assert.Equal(t, engine.PropertyInteger, g.Properties[1].Type)
	assert.Equal(t, 4, g.Len())

	c, ok := g.Card("c1")
	require.True(t, ok)
	assert.Equal(t, engine.DefaultSetCode, c.SetCode())
	assert.Equal(t, 10, c.ValueAsInt("cost"))
	assert.Equal(t, "Rare", c.ValueAsString("rarity"))
	assert.Equal(t, 4, c.ValueAsEnumKey("rarity"))
	_, hasExtra := c.Property("extra")
	assert.False(t, hasExtra, "undeclared properties should be dropped")

	// Declared but absent properties exist with an empty value so every card
	// shares the schema.
	p, ok := c.Property("type")
	require.True(t, ok)
	assert.Equal(t, "", p.Value)
}

// TestLoadJSON verifies JSON documents and enum value order.
func TestLoadJSON(t *testing.T) {
	g, err := Load(strings.NewReader(jsonDefinition))
	require.NoError(t, err)

	def := g.Enums.For("power")
	require.NotNil(t, def)
	values := def.Values()
	require.Len(t, values, 2)
	assert.Equal(t, "0x04", values[0].Key, "file order should be preserved")

	c, ok := g.Card("j1")
	require.True(t, ok)
	assert.Equal(t, "High", c.ValueAsString("power"))
	assert.Equal(t, 4, c.ValueAsEnumKey("power"))
}

// TestLoadRejectsBadInput verifies parse errors surface.
func TestLoadRejectsBadInput(t *testing.T) {
	_, err := Load(strings.NewReader("cards: [}"))
	assert.Error(t, err)

	_, err = Load(strings.NewReader("cardImageFileType: jpg"))
	assert.ErrorContains(t, err, "missing name")

	_, err = Load(strings.NewReader("name: x\nenums: [{property: p, values: 3}]"))
	assert.Error(t, err)
}

// TestSearchSorted verifies filtering and card ordering.
func TestSearchSorted(t *testing.T) {
	g := loadYAML(t)

	got := g.Search("apple")
	require.Len(t, got, 2)
	// Both are named "Apple" in the name property; cost 3 sorts before 10.
	assert.Equal(t, "c2", got[0].ID())
	assert.Equal(t, "c1", got[1].ID())

	all := g.Search("")
	require.Len(t, all, 4)
	assert.Equal(t, "c2", all[0].ID())
}

// TestAddReplaces verifies imported cards replace by id without reordering.
func TestAddReplaces(t *testing.T) {
	g := loadYAML(t)
	g.Add(g.NewCard("c1", "Apple v2", "S2", map[string]string{"name": "Apple v2"}))
	g.Add(g.NewCard("n1", "New", "", nil))

	c, _ := g.Card("c1")
	assert.Equal(t, "S2", c.SetCode())
	assert.Equal(t, 5, g.Len())
	cards := g.Cards()
	assert.Equal(t, "c1", cards[1].ID())
	assert.Equal(t, "n1", cards[4].ID())
}

// TestExtraGroup verifies extra-group matching.
func TestExtraGroup(t *testing.T) {
	g := loadYAML(t)
	assert.Equal(t, "Tokens", g.ExtraGroup("t1"))
	assert.Equal(t, "", g.ExtraGroup("c1"))
	assert.Equal(t, "", g.ExtraGroup("missing"))
}

// TestImagePaths verifies file names, paths, and URL expansion.
func TestImagePaths(t *testing.T) {
	g := loadYAML(t)
	g.FilePathBase = filepath.Join("data", g.ID)
	c, _ := g.Card("c3")

	assert.Equal(t, "c3.png", g.ImageFileName(c))
	assert.Equal(t, filepath.Join("data", "Test_ Game", "sets", "S1", "c3.png"), g.ImageFilePath(c))
	assert.Equal(t, "https://img.example.com/S1/c3.png?n=Zebra&r=Common", g.ImageWebURL(c))

	odd := g.NewCard("a/b:c", "x", "", nil)
	assert.Equal(t, "a_b_c.png", g.ImageFileName(odd))
}

// TestImagePathStaysInBase verifies set codes cannot climb out of the game directory.
func TestImagePathStaysInBase(t *testing.T) {
	g := loadYAML(t)
	g.FilePathBase = filepath.Join("data", g.ID)

	for _, set := range []string{"..", ".", "../../x", "a/b"} {
		c := g.NewCard("id1", "x", set, nil)
		path := g.ImageFilePath(c)
		assert.True(t, g.InFilePathBase(path), "%q -> %s", set, path)
		assert.Equal(t, filepath.Join("data", g.ID, "sets"), filepath.Dir(filepath.Dir(path)), set)
	}

	assert.Equal(t, "__", SafeFileName(".."))
	assert.Equal(t, "_", SafeFileName("."))
	assert.Equal(t, "..a", SafeFileName("..a"))
	assert.False(t, g.InFilePathBase(filepath.Join("data", "other", "x.png")))
	assert.False(t, g.InFilePathBase(filepath.Join("data", g.ID, "..", "x.png")))
}

// TestLibraryLoadDir verifies directory loading and lookups.
func TestLibraryLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(yamlDefinition), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(jsonDefinition), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	lib := NewLibrary("/srv/cgs")
	n, err := lib.LoadDir(dir)
	assert.Error(t, err, "broken file should be reported")
	assert.Equal(t, 2, n)

	g, err := lib.Get("Json Game")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/cgs", "Json Game"), g.FilePathBase)

	_, err = lib.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownGame)

	list := lib.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Json Game", list[0].ID)
}
