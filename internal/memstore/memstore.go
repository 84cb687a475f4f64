// Package memstore is an in-memory implementation of every store
// interface in the server: engine.NpcStore, engine.PlayerLocator,
// engine.ObjectSource, spatial.Store, ledger.Store, the reconciler's
// resolver, and the audit sink. It backs tests and -memory dev mode.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fernvale/server/internal/world"
)

type entityKey struct {
	et world.EntityType
	id string
}

type Store struct {
	mu        sync.RWMutex
	npcs      map[string]*world.NpcState
	profiles  map[string]*world.PlayerProfile
	presence  map[string]*world.PlayerPresence
	objects   map[string]map[string]world.PlacedObject     // map name -> object id
	overrides map[string]map[string]world.BehaviorOverride // map name -> instance name
	spatial   map[entityKey]world.SpatialRow
	locations map[entityKey]world.LocationRow
	chunks    map[string]world.ChunkRow // "worldKey/cx/cy"
	audits    []world.AuditEntry
}

func New() *Store {
	return &Store{
		npcs:      make(map[string]*world.NpcState),
		profiles:  make(map[string]*world.PlayerProfile),
		presence:  make(map[string]*world.PlayerPresence),
		objects:   make(map[string]map[string]world.PlacedObject),
		overrides: make(map[string]map[string]world.BehaviorOverride),
		spatial:   make(map[entityKey]world.SpatialRow),
		locations: make(map[entityKey]world.LocationRow),
		chunks:    make(map[string]world.ChunkRow),
	}
}

// --- engine.NpcStore ---

func (s *Store) ListNpcs(ctx context.Context) ([]world.NpcState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]world.NpcState, 0, len(s.npcs))
	for _, n := range s.npcs {
		out = append(out, cloneNpc(n))
	}
	return out, nil
}

func (s *Store) ListNpcsOnMap(ctx context.Context, mapName string) ([]world.NpcState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []world.NpcState
	for _, n := range s.npcs {
		if n.MapName == mapName {
			out = append(out, cloneNpc(n))
		}
	}
	return out, nil
}

func (s *Store) GetNpc(ctx context.Context, id string) (*world.NpcState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.npcs[id]
	if !ok {
		return nil, nil
	}
	c := cloneNpc(n)
	return &c, nil
}

func (s *Store) CreateNpc(ctx context.Context, n *world.NpcState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.npcs[n.ID]; exists {
		return fmt.Errorf("npc %s already exists", n.ID)
	}
	c := cloneNpc(n)
	s.npcs[n.ID] = &c
	return nil
}

func (s *Store) DeleteNpc(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.npcs[id]
	delete(s.npcs, id)
	return ok, nil
}

func (s *Store) ApplyPatches(ctx context.Context, patches []world.NpcPatch) (int, []error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := 0
	var skipped []error
	for _, p := range patches {
		n, ok := s.npcs[p.ID]
		if !ok {
			skipped = append(skipped, fmt.Errorf("npc %s: %w", p.ID, world.ErrNotFound))
			continue
		}
		p.Apply(n)
		applied++
	}
	return applied, skipped, nil
}

func (s *Store) LatestTick(ctx context.Context) (time.Time, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, n := range s.npcs {
		if n.TickedAt.After(latest) {
			latest = n.TickedAt
		}
	}
	return latest, len(s.npcs), nil
}

// --- engine.PlayerLocator ---

func (s *Store) PlayerPosition(ctx context.Context, mapName, profileID string) (world.Vec2, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.presence[profileID]; ok {
		if p.MapName != mapName {
			return world.Vec2{}, false, nil
		}
		return p.Pos, true, nil
	}
	if p, ok := s.profiles[profileID]; ok && p.MapName == mapName {
		return p.Pos, true, nil
	}
	return world.Vec2{}, false, nil
}

// --- engine.ObjectSource ---

func (s *Store) ListObjects(ctx context.Context, mapName string) ([]world.PlacedObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []world.PlacedObject
	for _, o := range s.objects[mapName] {
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) ListOverrides(ctx context.Context, mapName string) ([]world.BehaviorOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []world.BehaviorOverride
	for _, o := range s.overrides[mapName] {
		out = append(out, o)
	}
	return out, nil
}

// --- spatial.Store ---

func (s *Store) Get(ctx context.Context, et world.EntityType, id string) (*world.SpatialRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.spatial[entityKey{et, id}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *Store) Put(ctx context.Context, row world.SpatialRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spatial[entityKey{row.EntityType, row.EntityID}] = row
	return nil
}

func (s *Store) Delete(ctx context.Context, et world.EntityType, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entityKey{et, id}
	_, ok := s.spatial[k]
	delete(s.spatial, k)
	return ok, nil
}

func (s *Store) ListChunk(ctx context.Context, worldKey string, cx, cy int) ([]world.SpatialRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []world.SpatialRow
	for _, row := range s.spatial {
		if row.WorldKey == worldKey && row.ChunkX == cx && row.ChunkY == cy {
			out = append(out, row)
		}
	}
	return out, nil
}

// --- ledger.Store ---

func (s *Store) PutLocation(ctx context.Context, row world.LocationRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[entityKey{row.EntityType, row.EntityID}] = row
	return nil
}

func (s *Store) GetLocation(ctx context.Context, et world.EntityType, id string) (*world.LocationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.locations[entityKey{et, id}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *Store) ListByDimension(ctx context.Context, dim world.Dimension) ([]world.LocationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []world.LocationRow
	for _, row := range s.locations {
		if row.Dimension == dim {
			out = append(out, row)
		}
	}
	return out, nil
}

// --- spatial.PositionResolver ---

// ResolvePosition maps an entity back to its authoritative position:
// presence (then profile) for players, the behavior row for NPCs.
func (s *Store) ResolvePosition(ctx context.Context, et world.EntityType, id string) (world.Vec2, world.Vec2, string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch et {
	case world.EntityPlayer:
		if p, ok := s.presence[id]; ok {
			return p.Pos, world.Vec2{}, "", true, nil
		}
		if p, ok := s.profiles[id]; ok {
			return p.Pos, world.Vec2{}, "", true, nil
		}
	case world.EntityNpc:
		if n, ok := s.npcs[id]; ok {
			return n.Pos, n.Vel, string(n.Phase), true, nil
		}
	}
	return world.Vec2{}, world.Vec2{}, "", false, nil
}

// --- spatial.AuditSink ---

func (s *Store) Record(ctx context.Context, entry world.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, entry)
	return nil
}

// Audits returns a copy of the recorded audit entries.
func (s *Store) Audits() []world.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]world.AuditEntry, len(s.audits))
	copy(out, s.audits)
	return out
}

// --- chunk rows ---

func chunkID(worldKey string, cx, cy int) string {
	return fmt.Sprintf("%s/%d/%d", worldKey, cx, cy)
}

func (s *Store) GetChunk(ctx context.Context, worldKey string, cx, cy int) (*world.ChunkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.chunks[chunkID(worldKey, cx, cy)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *Store) PutChunk(ctx context.Context, row world.ChunkRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row.UpdatedAt = time.Now()
	s.chunks[chunkID(row.WorldKey, row.ChunkX, row.ChunkY)] = row
	return nil
}

// --- seeding helpers for tests and -memory mode ---

func (s *Store) PutProfile(p world.PlayerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = &p
}

func (s *Store) PutPresence(p world.PlayerPresence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[p.ProfileID] = &p
}

func (s *Store) RemovePresence(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence, profileID)
}

func (s *Store) PutObject(o world.PlacedObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.objects[o.MapName]
	if !ok {
		m = make(map[string]world.PlacedObject)
		s.objects[o.MapName] = m
	}
	m[o.ID] = o
}

func (s *Store) RemoveObject(mapName, objectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects[mapName], objectID)
}

func (s *Store) PutOverride(o world.BehaviorOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.overrides[o.MapName]
	if !ok {
		m = make(map[string]world.BehaviorOverride)
		s.overrides[o.MapName] = m
	}
	m[o.InstanceName] = o
}

func cloneNpc(n *world.NpcState) world.NpcState {
	c := *n
	c.Target = cloneVec(n.Target)
	c.IdleUntil = cloneTime(n.IdleUntil)
	c.DefeatedAt = cloneTime(n.DefeatedAt)
	c.RespawnAt = cloneTime(n.RespawnAt)
	c.LastHitAt = cloneTime(n.LastHitAt)
	c.AggroUntil = cloneTime(n.AggroUntil)
	return c
}

func cloneVec(v *world.Vec2) *world.Vec2 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
