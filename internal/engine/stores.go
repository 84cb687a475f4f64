package engine

import (
	"context"
	"time"

	"github.com/fernvale/server/internal/world"
)

// NpcStore is the persistence the behavior engine needs. Implemented by
// persist.NpcRepo (Postgres) and memstore.Store (tests, -memory mode).
type NpcStore interface {
	ListNpcs(ctx context.Context) ([]world.NpcState, error)
	ListNpcsOnMap(ctx context.Context, mapName string) ([]world.NpcState, error)
	GetNpc(ctx context.Context, id string) (*world.NpcState, error)
	CreateNpc(ctx context.Context, n *world.NpcState) error
	DeleteNpc(ctx context.Context, id string) (bool, error)

	// ApplyPatches commits a batch of field-level patches together. A
	// patch whose row is missing is skipped with a reason; the rest still
	// commit. A batch-level failure returns err.
	ApplyPatches(ctx context.Context, patches []world.NpcPatch) (applied int, skipped []error, err error)

	// LatestTick returns the newest TickedAt across all rows plus the
	// row count, for staleness detection.
	LatestTick(ctx context.Context) (time.Time, int, error)
}

// PlayerLocator resolves a player's current position on a map: live
// presence preferred, persisted profile position as fallback, miss when
// the player is on another map or unknown.
type PlayerLocator interface {
	PlayerPosition(ctx context.Context, mapName, profileID string) (world.Vec2, bool, error)
}

// ObjectSource exposes the map editor's placed objects and per-instance
// behavior overrides, which sync derives NPC rows from.
type ObjectSource interface {
	ListObjects(ctx context.Context, mapName string) ([]world.PlacedObject, error)
	ListOverrides(ctx context.Context, mapName string) ([]world.BehaviorOverride, error)
}
