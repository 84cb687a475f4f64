// Package api is the HTTP surface: REST endpoints over the behavior
// engine, spatial index, and location ledger, plus a websocket stream
// of per-map NPC snapshots.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fernvale/server/internal/engine"
	"github.com/fernvale/server/internal/ledger"
	"github.com/fernvale/server/internal/spatial"
	"github.com/fernvale/server/internal/world"
)

const requestTimeout = 10 * time.Second

// ChunkStore is the chunk-row storage behind the map surface.
// Implemented by persist.ChunkRepo and memstore.Store.
type ChunkStore interface {
	GetChunk(ctx context.Context, worldKey string, cx, cy int) (*world.ChunkRow, error)
	PutChunk(ctx context.Context, row world.ChunkRow) error
}

// Server holds the handler dependencies. StreamPeriod paces the
// websocket snapshot stream; it normally matches the engine tick.
type Server struct {
	Engine       *engine.Engine
	Index        *spatial.Index
	Ledger       *ledger.Ledger
	Locations    spatial.LocationSource
	Resolver     spatial.PositionResolver
	Audit        spatial.AuditSink
	Chunks       ChunkStore
	WorldKey     string
	StreamPeriod time.Duration
	Log          *zap.Logger
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /maps/{map}/npcs", s.handleListNpcs)
	mux.HandleFunc("POST /maps/{map}/sync", s.handleSyncMap)
	mux.HandleFunc("POST /engine/ensure", s.handleEnsure)
	mux.HandleFunc("POST /npcs/{id}/hit", s.handleHit)
	mux.HandleFunc("GET /spatial/query", s.handleSpatialQuery)
	mux.HandleFunc("GET /spatial/entity", s.handleSpatialEntity)
	mux.HandleFunc("POST /spatial/reconcile", s.handleReconcile)
	mux.HandleFunc("GET /chunks/{cx}/{cy}", s.handleGetChunk)
	mux.HandleFunc("PUT /chunks/{cx}/{cy}", s.handlePutChunk)
	mux.HandleFunc("GET /location", s.handleGetLocation)
	mux.HandleFunc("PUT /location", s.handleSetLocation)
	mux.HandleFunc("GET /ws/maps/{map}", s.handleStream)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) handleListNpcs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	npcs, err := s.Engine.ListNpcsOnMap(ctx, r.PathValue("map"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	q := r.URL.Query()
	switch {
	case q.Get("respawn_pending") == "true":
		// Only NPCs waiting out a defeat, for respawn tooling.
		pending := npcs[:0]
		for _, n := range npcs {
			if n.RespawnAt != nil {
				pending = append(pending, n)
			}
		}
		npcs = pending
	case q.Get("exclude_defeated") == "true":
		// Only live NPCs, for renderers that hide defeated ones.
		live := npcs[:0]
		for _, n := range npcs {
			if n.RespawnAt == nil {
				live = append(live, n)
			}
		}
		npcs = live
	}
	if npcs == nil {
		npcs = []world.NpcState{}
	}
	writeJSON(w, http.StatusOK, npcs)
}

func (s *Server) handleSyncMap(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rep, err := s.Engine.SyncMap(ctx, r.PathValue("map"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleEnsure(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	started, err := s.Engine.EnsureRunning(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

type hitRequest struct {
	AttackerID string `json:"attackerId"`
	Damage     int    `json:"damage"`
}

func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req hitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := s.Engine.ApplyHit(ctx, r.PathValue("id"), req.AttackerID, req.Damage)
	if err != nil {
		if errors.Is(err, world.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleSpatialQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q := r.URL.Query()
	worldKey := q.Get("world")
	if worldKey == "" {
		worldKey = s.WorldKey
	}
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	radius, errR := strconv.ParseFloat(q.Get("radius"), 64)
	if errX != nil || errY != nil || errR != nil {
		writeError(w, http.StatusBadRequest, errors.New("x, y and radius must be numbers"))
		return
	}

	rows, err := s.Index.QueryRadius(ctx, worldKey, world.Vec2{X: x, Y: y}, radius, world.EntityType(q.Get("type")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if rows == nil {
		rows = []world.SpatialRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSpatialEntity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q := r.URL.Query()
	row, err := s.Index.Get(ctx, world.EntityType(q.Get("type")), q.Get("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, world.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rep, err := s.Index.Reconcile(ctx, s.Locations, s.Resolver, s.Audit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) chunkCoords(w http.ResponseWriter, r *http.Request) (cx, cy int, ok bool) {
	cx, errX := strconv.Atoi(r.PathValue("cx"))
	cy, errY := strconv.Atoi(r.PathValue("cy"))
	if errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, errors.New("chunk coordinates must be integers"))
		return 0, 0, false
	}
	return cx, cy, true
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cx, cy, ok := s.chunkCoords(w, r)
	if !ok {
		return
	}
	worldKey := r.URL.Query().Get("world")
	if worldKey == "" {
		worldKey = s.WorldKey
	}

	row, err := s.Chunks.GetChunk(ctx, worldKey, cx, cy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, world.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type putChunkRequest struct {
	Objects []world.ChunkObject `json:"objects"`
}

// handlePutChunk replaces a chunk's static objects and bumps its
// revision counter, creating the row at revision 1 when absent.
func (s *Server) handlePutChunk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	cx, cy, ok := s.chunkCoords(w, r)
	if !ok {
		return
	}
	worldKey := r.URL.Query().Get("world")
	if worldKey == "" {
		worldKey = s.WorldKey
	}

	var req putChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cur, err := s.Chunks.GetChunk(ctx, worldKey, cx, cy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	row := world.ChunkRow{
		WorldKey: worldKey,
		ChunkX:   cx,
		ChunkY:   cy,
		Revision: 1,
		Objects:  req.Objects,
	}
	if cur != nil {
		row.Revision = cur.Revision + 1
	}
	if err := s.Chunks.PutChunk(ctx, row); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	stored, err := s.Chunks.GetChunk(ctx, worldKey, cx, cy)
	if err != nil || stored == nil {
		writeJSON(w, http.StatusOK, row)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q := r.URL.Query()
	row, err := s.Ledger.GetLocation(ctx, world.EntityType(q.Get("type")), q.Get("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, world.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type setLocationRequest struct {
	EntityType world.EntityType `json:"entityType"`
	EntityID   string           `json:"entityId"`
	Dimension  world.Dimension  `json:"dimension"`
	WorldKey   string           `json:"worldKey"`
	MapName    string           `json:"mapName"`
	PortalID   string           `json:"portalId"`
	LastGlobal *world.Vec2      `json:"lastGlobal"`
}

func (s *Server) handleSetLocation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req setLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.WorldKey == "" {
		req.WorldKey = s.WorldKey
	}
	row, err := s.Ledger.SetLocation(ctx, ledger.SetParams{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Dimension:  req.Dimension,
		WorldKey:   req.WorldKey,
		MapName:    req.MapName,
		PortalID:   req.PortalID,
		LastGlobal: req.LastGlobal,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ledger.ErrDimensionMapName) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
