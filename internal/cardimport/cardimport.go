// internal/cardimport/cardimport.go
package cardimport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/engine"
	"github.com/jason-s-yu/cgs/internal/gamedef"
	"github.com/jason-s-yu/cgs/internal/imagecache"
	"github.com/sirupsen/logrus"
)

// ErrImageImport is returned when the card image cannot be fetched or saved.
// Nothing is added to the game in that case.
var ErrImageImport = errors.New("failed to get the image, unable to import the card")

// ErrMissingName is returned when a card has no name.
var ErrMissingName = errors.New("card name is required")

// ErrDuplicateCard is returned when the game already has a card with the
// requested id.
var ErrDuplicateCard = errors.New("a card with this id already exists")

// Params describes a card to import.
type Params struct {
	ID       string `json:"id"` // generated when blank
	Name     string `json:"name"`
	SetCode  string `json:"setCode"`  // defaults to engine.DefaultSetCode
	ImageURL string `json:"imageUrl"` // http(s) URL, file:// URL or local path

	Properties map[string]string `json:"properties,omitempty"`
}

// Importer adds user-supplied cards to a game, saving their image under the
// game's file path base.
type Importer struct {
	Fetcher imagecache.Fetcher
	Log     *logrus.Entry
}

// New creates an importer that fetches with f.
func New(f imagecache.Fetcher) *Importer {
	return &Importer{Fetcher: f, Log: logrus.WithField("component", "cardimport")}
}

// Import fetches the image, writes it to the card's image path and registers
// the card with game.
func (im *Importer) Import(ctx context.Context, game *gamedef.Game, p Params) (*engine.Card, error) {
	log := im.Log.WithField("game", game.ID)
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, ErrMissingName
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = strings.ToUpper(uuid.NewString())
	}
	if game.HasCard(id) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCard, id)
	}
	if !strings.HasSuffix(strings.ToLower(p.ImageURL), "."+strings.ToLower(game.CardImageFileType)) {
		log.Warnf("Image %s may not be a %s file; importing anyway.", p.ImageURL, game.CardImageFileType)
	}

	values := make(map[string]string, len(p.Properties)+1)
	for k, v := range p.Properties {
		values[k] = v
	}
	if _, ok := values["name"]; !ok {
		values["name"] = name
	}
	card := game.NewCard(id, name, strings.TrimSpace(p.SetCode), values)

	img, err := im.Fetcher.Fetch(ctx, p.ImageURL)
	if err != nil {
		log.Warnf("Import of card %s aborted: %v", id, err)
		return nil, fmt.Errorf("%w: %v", ErrImageImport, err)
	}
	path := game.ImageFilePath(card)
	if !game.InFilePathBase(path) {
		log.Warnf("Import of card %s aborted: image path %s escapes %s", id, path, game.FilePathBase)
		return nil, fmt.Errorf("%w: unsafe image path", ErrImageImport)
	}
	if err := saveImage(path, game.CardImageFileType, img); err != nil {
		log.Warnf("Import of card %s aborted: %v", id, err)
		return nil, fmt.Errorf("%w: %v", ErrImageImport, err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageImport, err)
	}

	game.Add(card)
	log.Infof("Imported card %s (%s) into set %s.", id, name, card.SetCode())
	return card, nil
}

func saveImage(path, fileType string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(fileType) {
	case "jpg", "jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(f, img)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}
