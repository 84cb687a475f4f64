package spatial

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fernvale/server/internal/chunk"
	"github.com/fernvale/server/internal/world"
)

// LocationSource lists ledger rows by dimension; the reconciler only asks
// for global ones.
type LocationSource interface {
	ListByDimension(ctx context.Context, dim world.Dimension) ([]world.LocationRow, error)
}

// PositionResolver maps an entity back to its authoritative position row
// (player profile/presence or NPC state). ok=false means the entity has
// no authoritative position right now.
type PositionResolver interface {
	ResolvePosition(ctx context.Context, et world.EntityType, id string) (pos, vel world.Vec2, animation string, ok bool, err error)
}

// AuditSink records reconciliation outcomes. Nil disables auditing.
type AuditSink interface {
	Record(ctx context.Context, entry world.AuditEntry) error
}

// ReconcileReport counts what one pass did.
type ReconcileReport struct {
	Inserted  int `json:"inserted"`
	Patched   int `json:"patched"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Reconcile walks every global-dimension ledger row, recomputes the
// expected index row from the authoritative source, and writes only the
// rows that drifted. Idempotent and safe to abort mid-way; a repeat run
// converges on all-unchanged. Per-entity failures are counted and
// skipped, never fatal.
func (ix *Index) Reconcile(ctx context.Context, locs LocationSource, resolver PositionResolver, audit AuditSink) (ReconcileReport, error) {
	var rep ReconcileReport

	rows, err := locs.ListByDimension(ctx, world.DimensionGlobal)
	if err != nil {
		return rep, fmt.Errorf("reconcile: list global locations: %w", err)
	}

	// The audit entry carries the world key when the pass touched a
	// single world; a mixed pass leaves it empty.
	var worldKey string
	mixed := false

	for _, loc := range rows {
		switch {
		case worldKey == "":
			worldKey = loc.WorldKey
		case worldKey != loc.WorldKey:
			mixed = true
		}

		pos, vel, anim, ok, err := resolver.ResolvePosition(ctx, loc.EntityType, loc.EntityID)
		if err != nil {
			ix.log.Warn("reconcile: resolve failed",
				zap.String("entity", string(loc.EntityType)+"/"+loc.EntityID),
				zap.Error(err))
			rep.Skipped++
			continue
		}
		if !ok {
			rep.Skipped++
			continue
		}

		expected := world.SpatialRow{
			WorldKey:   loc.WorldKey,
			EntityType: loc.EntityType,
			EntityID:   loc.EntityID,
			Pos:        pos,
			Vel:        vel,
			ChunkX:     chunk.CoordOf(pos.X, ix.chunkW),
			ChunkY:     chunk.CoordOf(pos.Y, ix.chunkH),
			Animation:  anim,
			UpdatedAt:  time.Now(),
		}

		cur, err := ix.store.Get(ctx, loc.EntityType, loc.EntityID)
		if err != nil {
			ix.log.Warn("reconcile: read index row failed",
				zap.String("entity", loc.EntityID), zap.Error(err))
			rep.Skipped++
			continue
		}
		switch {
		case cur == nil:
			if err := ix.store.Put(ctx, expected); err != nil {
				ix.log.Warn("reconcile: insert failed", zap.String("entity", loc.EntityID), zap.Error(err))
				rep.Skipped++
				continue
			}
			rep.Inserted++
		case cur.SameEntry(expected):
			rep.Unchanged++
		default:
			if err := ix.store.Put(ctx, expected); err != nil {
				ix.log.Warn("reconcile: patch failed", zap.String("entity", loc.EntityID), zap.Error(err))
				rep.Skipped++
				continue
			}
			rep.Patched++
		}
	}

	if audit != nil {
		if mixed {
			worldKey = ""
		}
		entry := world.AuditEntry{
			Pass:      "spatial_reconcile",
			WorldKey:  worldKey,
			Inserted:  rep.Inserted,
			Patched:   rep.Patched,
			Unchanged: rep.Unchanged,
			Skipped:   rep.Skipped,
			At:        time.Now(),
		}
		if err := audit.Record(ctx, entry); err != nil {
			ix.log.Warn("reconcile: audit record failed", zap.Error(err))
		}
	}

	ix.log.Info("spatial index reconciled",
		zap.Int("inserted", rep.Inserted),
		zap.Int("patched", rep.Patched),
		zap.Int("unchanged", rep.Unchanged),
		zap.Int("skipped", rep.Skipped))
	return rep, nil
}
