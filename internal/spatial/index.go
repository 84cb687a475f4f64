// Package spatial maintains the denormalized position index over the
// global chunked plane: one row per entity, bucketed by chunk coordinate,
// so radius queries touch a handful of chunks instead of every entity.
package spatial

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fernvale/server/internal/chunk"
	"github.com/fernvale/server/internal/world"
)

// Store is the row storage behind the index. Implemented by
// persist.SpatialRepo and memstore.Store.
type Store interface {
	Get(ctx context.Context, et world.EntityType, id string) (*world.SpatialRow, error)
	Put(ctx context.Context, row world.SpatialRow) error
	Delete(ctx context.Context, et world.EntityType, id string) (bool, error)
	ListChunk(ctx context.Context, worldKey string, cx, cy int) ([]world.SpatialRow, error)
}

type Index struct {
	store  Store
	chunkW float64
	chunkH float64
	log    *zap.Logger
}

// New builds an index over the store with the default chunk dimensions.
func New(store Store, chunkW, chunkH float64, log *zap.Logger) (*Index, error) {
	if chunkW <= 0 || chunkH <= 0 {
		return nil, chunk.ErrChunkSize
	}
	return &Index{store: store, chunkW: chunkW, chunkH: chunkH, log: log}, nil
}

// UpsertParams describes one position write.
type UpsertParams struct {
	WorldKey   string
	EntityType world.EntityType
	EntityID   string
	Pos        world.Vec2
	Vel        world.Vec2
	Animation  string
}

// Upsert writes the entity's index row, recomputing its chunk coordinates
// from the position on the index's grid. The grid is fixed at
// construction so reads and writes always bucket the same way.
// Idempotent: repeating the same params yields the same row.
func (ix *Index) Upsert(ctx context.Context, p UpsertParams) (*world.SpatialRow, error) {
	if p.WorldKey == "" || p.EntityID == "" || p.EntityType == "" {
		return nil, fmt.Errorf("spatial upsert: world key, entity type and id are required")
	}

	row := world.SpatialRow{
		WorldKey:   p.WorldKey,
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Pos:        p.Pos,
		Vel:        p.Vel,
		ChunkX:     chunk.CoordOf(p.Pos.X, ix.chunkW),
		ChunkY:     chunk.CoordOf(p.Pos.Y, ix.chunkH),
		Animation:  p.Animation,
		UpdatedAt:  time.Now(),
	}
	if err := ix.store.Put(ctx, row); err != nil {
		return nil, fmt.Errorf("spatial upsert %s/%s: %w", p.EntityType, p.EntityID, err)
	}
	return &row, nil
}

// Remove deletes the entity's row, reporting whether one existed.
func (ix *Index) Remove(ctx context.Context, et world.EntityType, id string) (bool, error) {
	removed, err := ix.store.Delete(ctx, et, id)
	if err != nil {
		return false, fmt.Errorf("spatial remove %s/%s: %w", et, id, err)
	}
	return removed, nil
}

// Get returns the entity's row, or nil when it has none.
func (ix *Index) Get(ctx context.Context, et world.EntityType, id string) (*world.SpatialRow, error) {
	row, err := ix.store.Get(ctx, et, id)
	if err != nil {
		return nil, fmt.Errorf("spatial get %s/%s: %w", et, id, err)
	}
	return row, nil
}

// ListByChunk returns every row in one exact chunk, optionally filtered
// by entity type ("" keeps all).
func (ix *Index) ListByChunk(ctx context.Context, worldKey string, cx, cy int, typeFilter world.EntityType) ([]world.SpatialRow, error) {
	rows, err := ix.store.ListChunk(ctx, worldKey, cx, cy)
	if err != nil {
		return nil, fmt.Errorf("spatial list chunk (%d,%d): %w", cx, cy, err)
	}
	if typeFilter == "" {
		return rows, nil
	}
	out := rows[:0]
	for _, r := range rows {
		if r.EntityType == typeFilter {
			out = append(out, r)
		}
	}
	return out, nil
}

// QueryRadius returns every entity within radius of the center, in no
// particular order: candidate chunks from the circle/rectangle test, then
// an exact squared-distance filter per row.
func (ix *Index) QueryRadius(ctx context.Context, worldKey string, center world.Vec2, radius float64, typeFilter world.EntityType) ([]world.SpatialRow, error) {
	coords, err := chunk.ForRadius(center.X, center.Y, radius, ix.chunkW, ix.chunkH)
	if err != nil {
		return nil, fmt.Errorf("spatial query: %w", err)
	}

	rr := radius * radius
	var out []world.SpatialRow
	for _, c := range coords {
		rows, err := ix.store.ListChunk(ctx, worldKey, c.X, c.Y)
		if err != nil {
			return nil, fmt.Errorf("spatial query chunk (%d,%d): %w", c.X, c.Y, err)
		}
		for _, r := range rows {
			if typeFilter != "" && r.EntityType != typeFilter {
				continue
			}
			dx := r.Pos.X - center.X
			dy := r.Pos.Y - center.Y
			if dx*dx+dy*dy <= rr {
				out = append(out, r)
			}
		}
	}
	return out, nil
}
