// internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"image/jpeg"
	"image/png"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/cgs/engine"
	"github.com/jason-s-yu/cgs/internal/auth"
	"github.com/jason-s-yu/cgs/internal/cardimport"
	"github.com/jason-s-yu/cgs/internal/database"
	"github.com/jason-s-yu/cgs/internal/gamedef"
	"github.com/jason-s-yu/cgs/internal/transport"
)

const maxBodyBytes = 1 << 20

type gameSummary struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Cards              int         `json:"cards"`
	CardSize           gamedef.Vec `json:"cardSize"`
	PlayMatSize        gamedef.Vec `json:"playMatSize"`
	GameStartHandCount int         `json:"gameStartHandCount"`
	GamePlayDeckName   string      `json:"gamePlayDeckName"`
}

type cardView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	SetCode    string            `json:"setCode"`
	ImageURL   string            `json:"imageUrl,omitempty"`
	Properties map[string]string `json:"properties"`
}

type createTableRequest struct {
	Game        string `json:"game"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	RestoreFrom string `json:"restoreFrom,omitempty"`
}

type joinTableRequest struct {
	Password string `json:"password"`
	Name     string `json:"name"`
}

type seatResponse struct {
	TableID  uuid.UUID `json:"tableId"`
	PeerID   uuid.UUID `json:"peerId"`
	Token    string    `json:"token"`
	Game     string    `json:"game,omitempty"`
	Restored int       `json:"restored,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games := s.opts.Library.List()
	out := make([]gameSummary, 0, len(games))
	for _, g := range games {
		out = append(out, gameSummary{
			ID:                 g.ID,
			Name:               g.Name,
			Cards:              g.Len(),
			CardSize:           g.CardSize,
			PlayMatSize:        g.PlayMatSize,
			GameStartHandCount: g.GameStartHandCount,
			GamePlayDeckName:   g.GamePlayDeckName,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	g, ok := s.game(w, r)
	if !ok {
		return
	}
	cards := g.Search(r.URL.Query().Get("q"))
	out := make([]cardView, 0, len(cards))
	for _, c := range cards {
		out = append(out, viewCard(g, c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleImportCard(w http.ResponseWriter, r *http.Request) {
	g, ok := s.game(w, r)
	if !ok {
		return
	}
	if s.opts.Importer == nil {
		writeError(w, http.StatusNotImplemented, "card import is disabled")
		return
	}
	var p cardimport.Params
	if !decodeBody(w, r, &p) {
		return
	}
	card, err := s.opts.Importer.Import(r.Context(), g, p)
	switch {
	case errors.Is(err, cardimport.ErrMissingName):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, cardimport.ErrDuplicateCard):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, cardimport.ErrImageImport):
		writeError(w, http.StatusUnprocessableEntity, cardimport.ErrImageImport.Error())
		return
	case err != nil:
		s.log.Errorf("Import into game %s failed: %v", g.ID, err)
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	if s.opts.Store != nil {
		rec := database.CustomCard{
			GameID:     g.ID,
			CardID:     card.ID(),
			Name:       card.Name(),
			SetCode:    card.SetCode(),
			Properties: propertyMap(card),
		}
		if err := s.opts.Store.UpsertCustomCard(r.Context(), rec); err != nil {
			s.log.Errorf("Failed persisting imported card %s: %v", card.ID(), err)
		}
	}
	writeJSON(w, http.StatusCreated, viewCard(g, card))
}

func (s *Server) handleCardImage(w http.ResponseWriter, r *http.Request) {
	g, ok := s.game(w, r)
	if !ok {
		return
	}
	card, found := g.Card(chi.URLParam(r, "card"))
	if !found {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	location := g.ImageFilePath(card)
	if _, err := os.Stat(location); err != nil {
		location = g.ImageWebURL(card)
	}
	img, err := s.cardImage(r.Context(), card.ID(), location)
	if err != nil {
		s.log.Warnf("Image for card %s unavailable: %v", card.ID(), err)
		writeError(w, http.StatusBadGateway, "image unavailable")
		return
	}
	if strings.EqualFold(g.CardImageFileType, "jpg") || strings.EqualFold(g.CardImageFileType, "jpeg") {
		w.Header().Set("Content-Type", "image/jpeg")
		_ = jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_ = png.Encode(w, img)
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var game *gamedef.Game
	if req.Game != "" {
		g, err := s.opts.Library.Get(req.Game)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		game = g
	}

	host := uuid.New()
	sess, err := s.openTable(game, host, req.Password)
	if err != nil {
		s.log.Errorf("Failed opening table: %v", err)
		writeError(w, http.StatusInternalServerError, "could not open table")
		return
	}
	t := sess.table

	restored := 0
	if req.RestoreFrom != "" {
		from, err := uuid.Parse(req.RestoreFrom)
		if err != nil || s.opts.Store == nil {
			_ = s.closeTable(t.ID)
			writeError(w, http.StatusBadRequest, "cannot restore from "+req.RestoreFrom)
			return
		}
		snap, err := s.opts.Store.LatestSnapshot(r.Context(), from)
		if err != nil {
			_ = s.closeTable(t.ID)
			if errors.Is(err, database.ErrNoSnapshot) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			s.log.Errorf("Failed loading snapshot of table %s: %v", from, err)
			writeError(w, http.StatusInternalServerError, "could not load snapshot")
			return
		}
		restored = t.Restore(snap)
	}

	sess.addPeer(host, req.Name)
	token, err := s.opts.Issuer.Issue(t.ID, host, req.Name)
	if err != nil {
		_ = s.closeTable(t.ID)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusCreated, seatResponse{
		TableID:  t.ID,
		PeerID:   host,
		Token:    token,
		Game:     req.Game,
		Restored: restored,
	})
}

func (s *Server) handleJoinTable(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req joinTableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := auth.CheckPassword(sess.password, req.Password); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	id := uuid.New()
	sess.addPeer(id, req.Name)
	token, err := s.opts.Issuer.Issue(sess.table.ID, id, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	resp := seatResponse{TableID: sess.table.ID, PeerID: id, Token: token}
	if sess.table.Game != nil {
		resp.Game = sess.table.Game.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTableInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	t := sess.table
	peers := s.opts.Hub.Peers(t.ID)
	type peerView struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name,omitempty"`
	}
	views := make([]peerView, 0, len(peers))
	for _, id := range peers {
		views = append(views, peerView{ID: id, Name: sess.peerName(id)})
	}
	info := map[string]any{
		"tableId":   t.ID,
		"host":      t.Host,
		"open":      sess.password == nil,
		"createdAt": sess.created,
		"playables": len(t.Objects()),
		"peers":     views,
	}
	if t.Game != nil {
		info["game"] = t.Game.ID
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCloseTable(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	claims, err := s.opts.Issuer.Verify(bearerToken(r))
	if err != nil || claims.TableID != sess.table.ID {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
		return
	}
	if claims.PeerID != sess.table.Host {
		writeError(w, http.StatusForbidden, "only the host can close the table")
		return
	}
	if err := s.closeTable(sess.table.ID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTableHistory(w http.ResponseWriter, r *http.Request) {
	tableID, err := uuid.Parse(chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad table id")
		return
	}
	if s.opts.Actions == nil {
		writeError(w, http.StatusNotImplemented, "action history is disabled")
		return
	}
	count := int64(100)
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad count")
			return
		}
		count = n
	}
	recs, err := s.opts.Actions.TableActions(r.Context(), tableID, count)
	if err != nil {
		s.log.Errorf("Table %s: Failed reading history: %v", tableID, err)
		writeError(w, http.StatusInternalServerError, "could not read history")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleTableSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	claims, err := s.opts.Issuer.Verify(token)
	if err != nil || claims.TableID != sess.table.ID {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
		return
	}
	if err := s.opts.Hub.Serve(w, r, claims.TableID, claims.PeerID); err != nil {
		if errors.Is(err, transport.ErrUnknownTable) {
			writeError(w, http.StatusNotFound, ErrTableNotFound.Error())
			return
		}
		s.log.Warnf("Table %s: Websocket for peer %s failed: %v", claims.TableID, claims.PeerID, err)
	}
}

// game resolves the {game} URL parameter, writing a 404 when unknown.
func (s *Server) game(w http.ResponseWriter, r *http.Request) (*gamedef.Game, bool) {
	g, err := s.opts.Library.Get(chi.URLParam(r, "game"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return g, true
}

// session resolves the {table} URL parameter.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad table id")
		return nil, false
	}
	sess, err := s.lookup(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func viewCard(g *gamedef.Game, c *engine.Card) cardView {
	v := cardView{
		ID:         c.ID(),
		Name:       c.Name(),
		SetCode:    c.SetCode(),
		Properties: propertyMap(c),
	}
	if g.CardImageURLFormat != "" {
		v.ImageURL = g.ImageWebURL(c)
	}
	return v
}

func propertyMap(c *engine.Card) map[string]string {
	props := c.Properties()
	out := make(map[string]string, len(props))
	for _, p := range props {
		out[p.Def.Name] = p.Value
	}
	return out
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
