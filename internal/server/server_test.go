// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/internal/auth"
	"github.com/jason-s-yu/cgs/internal/cache"
	"github.com/jason-s-yu/cgs/internal/cardimport"
	"github.com/jason-s-yu/cgs/internal/database"
	"github.com/jason-s-yu/cgs/internal/gamedef"
	"github.com/jason-s-yu/cgs/internal/imagecache"
	"github.com/jason-s-yu/cgs/internal/peer"
	"github.com/jason-s-yu/cgs/internal/table"
	"github.com/jason-s-yu/cgs/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definition = `
name: ServerGame
cardImageUrlBase: https://cards.example
cardProperties:
  - {name: cost, type: integer}
cards:
  - {id: b, name: Bravo, properties: {cost: "2"}}
  - {id: a, name: Alpha, properties: {cost: "1"}}
  - {id: c, name: Charlie, properties: {cost: "3"}}
`

// memStore keeps snapshots and custom cards in memory.
type memStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID][]table.Snapshot
	cards     []database.CustomCard
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[uuid.UUID][]table.Snapshot)}
}

func (m *memStore) SaveSnapshot(_ context.Context, snap table.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.TableID] = append(m.snapshots[snap.TableID], snap)
	return nil
}

func (m *memStore) LatestSnapshot(_ context.Context, id uuid.UUID) (table.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := m.snapshots[id]
	if len(snaps) == 0 {
		return table.Snapshot{}, database.ErrNoSnapshot
	}
	return snaps[len(snaps)-1], nil
}

func (m *memStore) UpsertCustomCard(_ context.Context, c database.CustomCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards = append(m.cards, c)
	return nil
}

func (m *memStore) CustomCards(_ context.Context, gameID string) ([]database.CustomCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.CustomCard
	for _, c := range m.cards {
		if c.GameID == gameID {
			out = append(out, c)
		}
	}
	return out, nil
}

// memActions is an in-memory action log.
type memActions struct {
	mu   sync.Mutex
	recs []cache.TableActionRecord
}

func (m *memActions) PublishTableAction(_ context.Context, rec cache.TableActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memActions) TableActions(_ context.Context, id uuid.UUID, count int64) ([]cache.TableActionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cache.TableActionRecord
	for _, r := range m.recs {
		if r.TableID == id && int64(len(out)) < count {
			out = append(out, r)
		}
	}
	return out, nil
}

func solidImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	game    *gamedef.Game
	store   *memStore
	actions *memActions
	issuer  *auth.Issuer
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	lib := gamedef.NewLibrary(t.TempDir())
	g, err := gamedef.Load(strings.NewReader(definition))
	require.NoError(t, err)
	lib.Register(g)

	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	fetch := imagecache.FetcherFunc(func(context.Context, string) (image.Image, error) {
		return solidImage(), nil
	})
	env := &testEnv{game: g, store: newMemStore(), actions: &memActions{}, issuer: issuer}
	env.srv = New(Options{
		Library:  lib,
		Hub:      transport.NewHub(nil),
		Issuer:   issuer,
		Importer: cardimport.New(fetch),
		Images:   imagecache.New(fetch, nil),
		Store:    env.store,
		Actions:  env.actions,
		TickRate: 100,
	})
	env.http = httptest.NewServer(env.srv.Router())
	t.Cleanup(func() {
		env.srv.Shutdown()
		env.http.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) host(t *testing.T, password string) seatResponse {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/tables", createTableRequest{Game: e.game.ID, Password: password, Name: "host"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[seatResponse](t, resp)
}

func TestHealth(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListGamesAndCards(t *testing.T) {
	env := setupServer(t)

	games := decode[[]gameSummary](t, env.do(t, http.MethodGet, "/api/games", nil, ""))
	require.Len(t, games, 1)
	assert.Equal(t, "ServerGame", games[0].ID)
	assert.Equal(t, 3, games[0].Cards)

	cards := decode[[]cardView](t, env.do(t, http.MethodGet, "/api/games/ServerGame/cards", nil, ""))
	require.Len(t, cards, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{cards[0].ID, cards[1].ID, cards[2].ID}, "sorted by cost")
	assert.Equal(t, "https://cards.example/a.png", cards[0].ImageURL)

	filtered := decode[[]cardView](t, env.do(t, http.MethodGet, "/api/games/ServerGame/cards?q=rav", nil, ""))
	require.Len(t, filtered, 1)
	assert.Equal(t, "Bravo", filtered[0].Name)

	resp := env.do(t, http.MethodGet, "/api/games/Nope/cards", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImportCardPersists(t *testing.T) {
	env := setupServer(t)

	resp := env.do(t, http.MethodPost, "/api/games/ServerGame/cards", cardimport.Params{
		ID:         "z9",
		Name:       "Zulu",
		ImageURL:   "https://img.example/z9.png",
		Properties: map[string]string{"cost": "9"},
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	card := decode[cardView](t, resp)
	assert.Equal(t, "z9", card.ID)
	assert.True(t, env.game.HasCard("z9"))
	require.Len(t, env.store.cards, 1)
	assert.Equal(t, "9", env.store.cards[0].Properties["cost"])

	resp = env.do(t, http.MethodPost, "/api/games/ServerGame/cards", cardimport.Params{ImageURL: "x.png"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportExistingIDConflicts(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodPost, "/api/games/ServerGame/cards", cardimport.Params{
		ID:         "a",
		Name:       "Hijack",
		ImageURL:   "https://img.example/a.png",
		Properties: map[string]string{"cost": "0"},
	}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	c, ok := env.game.Card("a")
	require.True(t, ok)
	assert.Equal(t, "Alpha", c.Name())
	assert.Empty(t, env.store.cards)
}

func TestImportFailureIsUnprocessable(t *testing.T) {
	env := setupServer(t)
	env.srv.opts.Importer = cardimport.New(imagecache.FetcherFunc(func(context.Context, string) (image.Image, error) {
		return nil, assert.AnError
	}))
	resp := env.do(t, http.MethodPost, "/api/games/ServerGame/cards", cardimport.Params{Name: "Bad", ImageURL: "https://x/y.png"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, cardimport.ErrImageImport.Error(), body["error"])
	assert.Empty(t, env.store.cards)
}

func TestLoadCustomCards(t *testing.T) {
	env := setupServer(t)
	env.store.cards = append(env.store.cards, database.CustomCard{
		GameID: "ServerGame", CardID: "k1", Name: "Kilo", SetCode: "MINE",
		Properties: map[string]string{"cost": "5"},
	})
	n, err := env.srv.LoadCustomCards(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	c, ok := env.game.Card("k1")
	require.True(t, ok)
	assert.Equal(t, 5, c.ValueAsInt("cost"))
	assert.Equal(t, "MINE", c.SetCode())
}

func TestCardImage(t *testing.T) {
	env := setupServer(t)
	resp := env.do(t, http.MethodGet, "/api/games/ServerGame/cards/a/image", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, _, err := image.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())

	resp = env.do(t, http.MethodGet, "/api/games/ServerGame/cards/missing/image", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAndJoinTable(t *testing.T) {
	env := setupServer(t)
	seat := env.host(t, "hunter2")

	claims, err := env.issuer.Verify(seat.Token)
	require.NoError(t, err)
	assert.Equal(t, seat.TableID, claims.TableID)
	assert.Equal(t, seat.PeerID, claims.PeerID)

	path := "/api/tables/" + seat.TableID.String() + "/join"
	resp := env.do(t, http.MethodPost, path, joinTableRequest{Password: "wrong", Name: "guest"}, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path, joinTableRequest{Password: "hunter2", Name: "guest"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	guest := decode[seatResponse](t, resp)
	assert.NotEqual(t, seat.PeerID, guest.PeerID)
	assert.Equal(t, "ServerGame", guest.Game)

	resp = env.do(t, http.MethodPost, "/api/tables/"+uuid.NewString()+"/join", joinTableRequest{}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/tables", createTableRequest{Game: "Nope"}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCloseTableHostOnly(t *testing.T) {
	env := setupServer(t)
	seat := env.host(t, "")
	guest := decode[seatResponse](t, env.do(t, http.MethodPost, "/api/tables/"+seat.TableID.String()+"/join", joinTableRequest{Name: "g"}, ""))

	path := "/api/tables/" + seat.TableID.String()
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodDelete, path, nil, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, path, nil, guest.Token).StatusCode)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil, seat.Token).StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil, "").StatusCode)

	require.Eventually(t, func() bool {
		_, err := env.store.LatestSnapshot(context.Background(), seat.TableID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "close snapshot saved")
}

func TestWebsocketPlayAndRestore(t *testing.T) {
	env := setupServer(t)
	seat := env.host(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoint := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/tables/" + seat.TableID.String() + "/ws"
	conn, err := transport.Dial(ctx, endpoint, seat.Token)
	require.NoError(t, err)
	defer conn.Close()
	mirror := peer.NewClient(seat.PeerID, conn)
	go func() { _ = conn.Listen(ctx, mirror.Apply) }()

	require.NoError(t, mirror.SpawnToken(table.Vec2{X: 10, Y: 20}))
	require.NoError(t, mirror.SpawnDie(table.Vec2{X: 30, Y: 40}, 1, 6))
	require.Eventually(t, func() bool { return len(mirror.Objects()) == 2 }, 2*time.Second, 10*time.Millisecond)

	info := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/tables/"+seat.TableID.String(), nil, ""))
	assert.EqualValues(t, 2, info["playables"])
	assert.Equal(t, true, info["open"])

	require.Eventually(t, func() bool {
		recs, _ := env.actions.TableActions(ctx, seat.TableID, 100)
		return len(recs) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	history := decode[[]cache.TableActionRecord](t, env.do(t, http.MethodGet, "/api/tables/"+seat.TableID.String()+"/history?count=1", nil, ""))
	assert.Len(t, history, 1)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/tables/"+seat.TableID.String(), nil, seat.Token).StatusCode)
	require.Eventually(t, func() bool {
		snap, err := env.store.LatestSnapshot(ctx, seat.TableID)
		return err == nil && len(snap.Objects) == 2
	}, 2*time.Second, 10*time.Millisecond)

	resp := env.do(t, http.MethodPost, "/api/tables", createTableRequest{Game: "ServerGame", RestoreFrom: seat.TableID.String()}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	restored := decode[seatResponse](t, resp)
	assert.Equal(t, 2, restored.Restored)
	assert.NotEqual(t, seat.TableID, restored.TableID)

	resp = env.do(t, http.MethodPost, "/api/tables", createTableRequest{RestoreFrom: uuid.NewString()}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	env := setupServer(t)
	seat := env.host(t, "")
	other := env.host(t, "")

	resp := env.do(t, http.MethodGet, "/api/tables/"+seat.TableID.String()+"/ws?token=garbage", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/tables/"+seat.TableID.String()+"/ws?token="+other.Token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "token for another table")
}
