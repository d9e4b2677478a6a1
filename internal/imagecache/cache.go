// internal/imagecache/cache.go
package imagecache

import (
	"context"
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Callback receives a finished load. Exactly one of img and err is set.
type Callback func(img image.Image, err error)

// Cache shares decoded card images between holders. Each card id is loaded
// at most once at a time; the image is dropped when its last holder releases
// it. Callbacks are handed to post so they run on the owner's loop.
type Cache struct {
	fetcher Fetcher
	post    func(func())
	log     *logrus.Entry

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	loading bool
	img     image.Image
	holders map[uuid.UUID]struct{}
	waiters []Callback
	cancel  context.CancelFunc
}

// New creates a cache. post schedules a callback onto the owner's loop; nil
// runs callbacks on the loading goroutine.
func New(f Fetcher, post func(func())) *Cache {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Cache{
		fetcher: f,
		post:    post,
		log:     logrus.WithField("component", "imagecache"),
		entries: make(map[string]*entry),
	}
}

// Request registers holder for cardID's image and returns immediately. done
// is posted once the image is available; a cached image is posted at once.
func (c *Cache) Request(ctx context.Context, cardID, location string, holder uuid.UUID, done Callback) {
	c.mu.Lock()
	e, ok := c.entries[cardID]
	if !ok {
		e = &entry{holders: make(map[uuid.UUID]struct{})}
		c.entries[cardID] = e
	}
	e.holders[holder] = struct{}{}
	if e.img != nil {
		img := e.img
		c.mu.Unlock()
		if done != nil {
			c.post(func() { done(img, nil) })
		}
		return
	}
	if done != nil {
		e.waiters = append(e.waiters, done)
	}
	if e.loading {
		c.mu.Unlock()
		return
	}
	e.loading = true
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	c.mu.Unlock()

	go c.load(lctx, cardID, location, e)
}

func (c *Cache) load(ctx context.Context, cardID, location string, e *entry) {
	img, err := c.fetcher.Fetch(ctx, location)

	c.mu.Lock()
	if c.entries[cardID] != e {
		// Released or cleared while loading.
		c.mu.Unlock()
		return
	}
	e.loading = false
	e.cancel = nil
	waiters := e.waiters
	e.waiters = nil
	if err != nil {
		delete(c.entries, cardID)
	} else {
		e.img = img
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warnf("Failed loading image for card %s from %s: %v", cardID, location, err)
	}
	for _, cb := range waiters {
		c.post(func() { cb(img, err) })
	}
}

// IsLoading reports whether a load for cardID is in flight.
func (c *Cache) IsLoading(cardID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cardID]
	return ok && e.loading
}

// Image returns the cached image for cardID.
func (c *Cache) Image(cardID string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cardID]
	if !ok || e.img == nil {
		return nil, false
	}
	return e.img, true
}

// Holders reports how many holders reference cardID.
func (c *Cache) Holders(cardID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[cardID]; ok {
		return len(e.holders)
	}
	return 0
}

// Release drops holder's reference. The last release cancels any load in
// flight and frees the image; pending callbacks are never called.
func (c *Cache) Release(cardID string, holder uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cardID]
	if !ok {
		return
	}
	delete(e.holders, holder)
	if len(e.holders) > 0 {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(c.entries, cardID)
}

// Clear cancels every load and drops every image.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		if e.cancel != nil {
			e.cancel()
		}
		delete(c.entries, id)
	}
}

// Len reports how many card ids have an entry.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
