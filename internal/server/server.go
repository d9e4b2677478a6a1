// internal/server/server.go
package server

import (
	"context"
	"errors"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/internal/auth"
	"github.com/jason-s-yu/cgs/internal/cache"
	"github.com/jason-s-yu/cgs/internal/cardimport"
	"github.com/jason-s-yu/cgs/internal/database"
	"github.com/jason-s-yu/cgs/internal/gamedef"
	"github.com/jason-s-yu/cgs/internal/imagecache"
	"github.com/jason-s-yu/cgs/internal/table"
	"github.com/jason-s-yu/cgs/internal/transport"
	"github.com/sirupsen/logrus"
)

// ErrTableNotFound is returned for table ids with no running session.
var ErrTableNotFound = errors.New("table not found")

// Store is the persistence the server needs. *database.Store satisfies it.
type Store interface {
	table.SnapshotStore
	LatestSnapshot(ctx context.Context, tableID uuid.UUID) (table.Snapshot, error)
	UpsertCustomCard(ctx context.Context, c database.CustomCard) error
	CustomCards(ctx context.Context, gameID string) ([]database.CustomCard, error)
}

// ActionLog publishes and reads back table actions. *cache.Historian
// satisfies it.
type ActionLog interface {
	table.Historian
	TableActions(ctx context.Context, tableID uuid.UUID, count int64) ([]cache.TableActionRecord, error)
}

// Options wires the server's collaborators. Store and Actions are optional.
type Options struct {
	Library  *gamedef.Library
	Hub      *transport.Hub
	Issuer   *auth.Issuer
	Importer *cardimport.Importer
	Images   *imagecache.Cache
	Store    Store
	Actions  ActionLog
	TickRate int
}

// Server hosts tables over HTTP and websockets.
type Server struct {
	opts   Options
	holder uuid.UUID // imagecache holder for served card images
	log    *logrus.Entry

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

// session is one running table.
type session struct {
	table    *table.Table
	password []byte // bcrypt hash, nil when open
	cancel   context.CancelFunc
	created  time.Time

	mu    sync.Mutex
	names map[uuid.UUID]string
}

// New creates a server.
func New(opts Options) *Server {
	if opts.Images == nil {
		opts.Images = imagecache.New(imagecache.DefaultFetcher{}, nil)
	}
	if opts.TickRate <= 0 {
		opts.TickRate = table.DefaultTickRate
	}
	return &Server{
		opts:     opts,
		holder:   uuid.New(),
		log:      logrus.WithField("component", "server"),
		sessions: make(map[uuid.UUID]*session),
	}
}

// Router returns the HTTP handler for every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/games", s.handleListGames)
		r.Get("/games/{game}/cards", s.handleListCards)
		r.Post("/games/{game}/cards", s.handleImportCard)
		r.Get("/games/{game}/cards/{card}/image", s.handleCardImage)

		r.Post("/tables", s.handleCreateTable)
		r.Get("/tables/{table}", s.handleTableInfo)
		r.Delete("/tables/{table}", s.handleCloseTable)
		r.Post("/tables/{table}/join", s.handleJoinTable)
		r.Get("/tables/{table}/history", s.handleTableHistory)
		r.Get("/tables/{table}/ws", s.handleTableSocket)
	})
	return r
}

// LoadCustomCards re-registers previously imported cards with every game in
// the library. It is a no-op without a store.
func (s *Server) LoadCustomCards(ctx context.Context) (int, error) {
	if s.opts.Store == nil {
		return 0, nil
	}
	n := 0
	for _, g := range s.opts.Library.List() {
		cards, err := s.opts.Store.CustomCards(ctx, g.ID)
		if err != nil {
			return n, err
		}
		for _, c := range cards {
			values := make(map[string]string, len(c.Properties)+1)
			for k, v := range c.Properties {
				values[k] = v
			}
			if _, ok := values["name"]; !ok {
				values["name"] = c.Name
			}
			g.Add(g.NewCard(c.CardID, c.Name, c.SetCode, values))
			n++
		}
	}
	return n, nil
}

// Shutdown closes every running table.
func (s *Server) Shutdown() {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		_ = s.closeTable(id)
	}
	s.opts.Images.Clear()
}

// openTable creates and starts a table session.
func (s *Server) openTable(game *gamedef.Game, host uuid.UUID, password string) (*session, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	t := table.New(game, host, 0)
	if s.opts.Actions != nil {
		t.Historian = s.opts.Actions
	}
	if s.opts.Store != nil {
		t.Snapshots = s.opts.Store
	}
	s.opts.Hub.Attach(t)

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		table:    t,
		password: hash,
		cancel:   cancel,
		created:  time.Now().UTC(),
		names:    make(map[uuid.UUID]string),
	}
	s.mu.Lock()
	s.sessions[t.ID] = sess
	s.mu.Unlock()

	go t.Run(ctx, s.opts.TickRate)
	s.log.Infof("Table %s: Opened by host %s.", t.ID, host)
	return sess, nil
}

func (s *Server) lookup(id uuid.UUID) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrTableNotFound
	}
	return sess, nil
}

func (s *Server) closeTable(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrTableNotFound
	}
	sess.cancel()
	sess.table.Close()
	s.opts.Hub.Detach(id)
	s.log.Infof("Table %s: Session ended.", id)
	return nil
}

// cardImage returns a decoded card image through the image cache.
func (s *Server) cardImage(ctx context.Context, cardID, location string) (image.Image, error) {
	type result struct {
		img image.Image
		err error
	}
	ch := make(chan result, 1)
	s.opts.Images.Request(ctx, cardID, location, s.holder, func(img image.Image, err error) {
		ch <- result{img, err}
	})
	select {
	case res := <-ch:
		return res.img, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (sess *session) addPeer(id uuid.UUID, name string) {
	sess.mu.Lock()
	sess.names[id] = name
	sess.mu.Unlock()
}

func (sess *session) peerName(id uuid.UUID) string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.names[id]
}
