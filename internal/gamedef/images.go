// internal/gamedef/images.go
package gamedef

import (
	"path/filepath"
	"strings"

	"github.com/jason-s-yu/cgs/engine"
)

// unsafeFileChars are replaced when building file names from card data.
const unsafeFileChars = `<>:"/\|?*`

// SafeFileName replaces characters that are invalid in file names with '_'.
// Names made only of dots become underscores so they never name a parent
// or current directory.
func SafeFileName(name string) string {
	safe := strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(unsafeFileChars, r) {
			return '_'
		}
		return r
	}, name)
	if strings.Trim(safe, ".") == "" {
		safe = strings.Repeat("_", len(safe))
	}
	return safe
}

// ImageFileName is the file name of a card's cached image.
func (g *Game) ImageFileName(c *engine.Card) string {
	return SafeFileName(c.ID() + "." + g.CardImageFileType)
}

// ImageFilePath is where a card's image is cached: <base>/sets/<set>/<file>.
// The set code and file name are each a single sanitized path element.
func (g *Game) ImageFilePath(c *engine.Card) string {
	return filepath.Join(g.FilePathBase, "sets", SafeFileName(c.SetCode()), g.ImageFileName(c))
}

// InFilePathBase reports whether path lies inside the game's file path base.
func (g *Game) InFilePathBase(path string) bool {
	rel, err := filepath.Rel(filepath.Clean(g.FilePathBase), filepath.Clean(path))
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ImageWebURL expands the game's image URL format. Placeholders:
// {0} base, {1} id, {2} file type, {3} name, {4} set code, {5} the value of
// the configured URL property.
func (g *Game) ImageWebURL(c *engine.Card) string {
	r := strings.NewReplacer(
		"{0}", g.CardImageURLBase,
		"{1}", c.ID(),
		"{2}", g.CardImageFileType,
		"{3}", c.Name(),
		"{4}", c.SetCode(),
		"{5}", c.ValueAsString(g.CardImageURLProperty),
	)
	return r.Replace(g.CardImageURLFormat)
}
