// internal/gamedef/gamedef.go
package gamedef

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jason-s-yu/cgs/engine"
	"gopkg.in/yaml.v3"
)

// ErrUnknownGame is returned when a game id is not present in the library.
var ErrUnknownGame = errors.New("unknown game")

// Default settings applied when a definition omits them.
const (
	DefaultCardImageFileType  = "png"
	DefaultCardImageURLFormat = "{0}/{1}.{2}"
)

// Vec is a two-dimensional size or offset in inches.
type Vec struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// DeckURL names a remote deck list.
type DeckURL struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// ExtraDef marks cards whose property matches Value as belonging to Group
// instead of the main deck when a deck is loaded.
type ExtraDef struct {
	Group    string `yaml:"group" json:"group"`
	Property string `yaml:"property" json:"property"`
	Value    string `yaml:"value" json:"value"`
}

// Game is a loaded game definition together with its card registry.
type Game struct {
	ID   string `json:"id"`   // file-safe identifier derived from Name
	Name string `json:"name"` // display name

	CardImageFileType    string     `json:"cardImageFileType"`
	CardImageURLFormat   string     `json:"cardImageUrlFormat"`
	CardImageURLBase     string     `json:"cardImageUrlBase"`
	CardImageURLProperty string     `json:"cardImageUrlProperty"`
	CardSize             Vec        `json:"cardSize"`
	PlayMatSize          Vec        `json:"playMatSize"`
	GameStartHandCount   int        `json:"gameStartHandCount"`
	GamePlayDeckName     string     `json:"gamePlayDeckName"`
	DeckURLs             []DeckURL  `json:"deckUrls"`
	Extras               []ExtraDef `json:"extras"`

	// FilePathBase is the directory holding this game's sets and cached images.
	FilePathBase string `json:"-"`

	Properties []engine.PropertyDef `json:"-"`
	Enums      *engine.EnumTable    `json:"-"`

	mu    sync.RWMutex
	cards map[string]*engine.Card
	order []string // card ids in load order
}

// ---------------------------------------------------------------------------
// Definition file format
// ---------------------------------------------------------------------------

type propertyDefFile struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Display string `yaml:"display"`
}

type enumFile struct {
	Property          string        `yaml:"property"`
	LookupEqualsValue bool          `yaml:"lookupEqualsValue"`
	Values            orderedValues `yaml:"values"`
}

type cardFile struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	SetCode    string            `yaml:"setCode"`
	Properties map[string]string `yaml:"properties"`
}

type definitionFile struct {
	Name                 string            `yaml:"name"`
	CardImageFileType    string            `yaml:"cardImageFileType"`
	CardImageURLFormat   string            `yaml:"cardImageUrlFormat"`
	CardImageURLBase     string            `yaml:"cardImageUrlBase"`
	CardImageURLProperty string            `yaml:"cardImageUrlProperty"`
	CardSize             Vec               `yaml:"cardSize"`
	PlayMatSize          Vec               `yaml:"playMatSize"`
	GameStartHandCount   int               `yaml:"gameStartHandCount"`
	GamePlayDeckName     string            `yaml:"gamePlayDeckName"`
	DeckURLs             []DeckURL         `yaml:"deckUrls"`
	Extras               []ExtraDef        `yaml:"extras"`
	CardProperties       []propertyDefFile `yaml:"cardProperties"`
	Enums                []enumFile        `yaml:"enums"`
	Cards                []cardFile        `yaml:"cards"`
}

// orderedValues keeps enum values in the order they appear in the file, which
// decides their lookup keys. Both {key: display} mappings and
// [{key, display}] lists are accepted.
type orderedValues []engine.EnumValue

func (o *orderedValues) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			*o = append(*o, engine.EnumValue{Key: node.Content[i].Value, Display: node.Content[i+1].Value})
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			var v struct {
				Key     string `yaml:"key"`
				Display string `yaml:"display"`
			}
			if err := item.Decode(&v); err != nil {
				return err
			}
			*o = append(*o, engine.EnumValue{Key: v.Key, Display: v.Display})
		}
	default:
		return fmt.Errorf("enum values at line %d: expected mapping or list", node.Line)
	}
	return nil
}

// Load parses a game definition. JSON documents are read as YAML.
func Load(r io.Reader) (*Game, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	var f definitionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if strings.TrimSpace(f.Name) == "" {
		return nil, errors.New("parse definition: missing name")
	}

	g := &Game{
		ID:                   SafeFileName(f.Name),
		Name:                 f.Name,
		CardImageFileType:    f.CardImageFileType,
		CardImageURLFormat:   f.CardImageURLFormat,
		CardImageURLBase:     f.CardImageURLBase,
		CardImageURLProperty: f.CardImageURLProperty,
		CardSize:             f.CardSize,
		PlayMatSize:          f.PlayMatSize,
		GameStartHandCount:   f.GameStartHandCount,
		GamePlayDeckName:     f.GamePlayDeckName,
		DeckURLs:             f.DeckURLs,
		Extras:               f.Extras,
		cards:                make(map[string]*engine.Card, len(f.Cards)),
	}
	if g.CardImageFileType == "" {
		g.CardImageFileType = DefaultCardImageFileType
	}
	if g.CardImageURLFormat == "" {
		g.CardImageURLFormat = DefaultCardImageURLFormat
	}
	if g.CardSize == (Vec{}) {
		g.CardSize = Vec{X: 2.5, Y: 3.5}
	}
	if g.PlayMatSize == (Vec{}) {
		g.PlayMatSize = Vec{X: 36, Y: 36}
	}

	for _, p := range f.CardProperties {
		if p.Name == "" {
			continue
		}
		g.Properties = append(g.Properties, engine.PropertyDef{
			Name:    p.Name,
			Type:    engine.ParsePropertyType(p.Type),
			Display: p.Display,
		})
	}

	enums := make([]*engine.EnumDef, 0, len(f.Enums))
	for _, e := range f.Enums {
		enums = append(enums, engine.NewEnumDef(e.Property, e.LookupEqualsValue, e.Values))
	}
	g.Enums = engine.NewEnumTable(enums...)

	for _, c := range f.Cards {
		if c.ID == "" {
			continue
		}
		g.Add(g.NewCard(c.ID, c.Name, c.SetCode, c.Properties))
	}
	return g, nil
}

// LoadFile loads a definition from disk.
func LoadFile(path string) (*Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return g, nil
}

// ---------------------------------------------------------------------------
// Card registry
// ---------------------------------------------------------------------------

// NewCard builds a card following the game's property schema: every declared
// property is present, in declared order, and undeclared values are dropped.
func (g *Game) NewCard(id, name, setCode string, values map[string]string) *engine.Card {
	props := make([]engine.PropertyValue, 0, len(g.Properties))
	for _, def := range g.Properties {
		props = append(props, engine.PropertyValue{Def: def, Value: values[def.Name]})
	}
	return engine.NewCard(id, name, setCode, props, g.Enums)
}

// Add registers a card, replacing any card with the same id.
func (g *Game) Add(c *engine.Card) {
	if c == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cards == nil {
		g.cards = make(map[string]*engine.Card)
	}
	if _, exists := g.cards[c.ID()]; !exists {
		g.order = append(g.order, c.ID())
	}
	g.cards[c.ID()] = c
}

// Card looks up a card by id.
func (g *Game) Card(id string) (*engine.Card, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.cards[id]
	return c, ok
}

// HasCard reports whether id is registered.
func (g *Game) HasCard(id string) bool {
	_, ok := g.Card(id)
	return ok
}

// Len returns the number of registered cards.
func (g *Game) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Cards returns all cards in load order.
func (g *Game) Cards() []*engine.Card {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*engine.Card, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.cards[id])
	}
	return out
}

// Search returns cards whose name contains query (case-insensitive), sorted
// by the card comparison order. An empty query matches everything.
func (g *Game) Search(query string) []*engine.Card {
	q := strings.ToLower(strings.TrimSpace(query))
	all := g.Cards()
	out := all[:0]
	for _, c := range all {
		if q == "" || strings.Contains(strings.ToLower(c.Name()), q) {
			out = append(out, c)
		}
	}
	engine.SortCards(out)
	return out
}

// ExtraGroup returns the extra group a card belongs to, or "" for the main deck.
func (g *Game) ExtraGroup(cardID string) string {
	c, ok := g.Card(cardID)
	if !ok {
		return ""
	}
	for _, e := range g.Extras {
		if e.Group != "" && c.ValueAsString(e.Property) == e.Value {
			return e.Group
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Library
// ---------------------------------------------------------------------------

// Library holds every loaded game keyed by id.
type Library struct {
	dataDir string

	mu    sync.RWMutex
	games map[string]*Game
}

// NewLibrary creates an empty library. Game files (sets, images) live under
// dataDir/<game id>.
func NewLibrary(dataDir string) *Library {
	return &Library{dataDir: dataDir, games: make(map[string]*Game)}
}

// Register adds g, assigning its file path base.
func (l *Library) Register(g *Game) {
	g.FilePathBase = filepath.Join(l.dataDir, g.ID)
	l.mu.Lock()
	l.games[g.ID] = g
	l.mu.Unlock()
}

// LoadDir loads every .json, .yaml and .yml file in dir. It returns the
// number of games loaded and the first error encountered, continuing past
// bad files.
func (l *Library) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read games dir: %w", err)
	}
	var firstErr error
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		g, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		l.Register(g)
		n++
	}
	return n, firstErr
}

// Get returns a game by id.
func (l *Library) Get(id string) (*Game, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, id)
	}
	return g, nil
}

// List returns the loaded games sorted by id.
func (l *Library) List() []*Game {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Game, 0, len(l.games))
	for _, g := range l.games {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b *Game) int { return strings.Compare(a.ID, b.ID) })
	return out
}
