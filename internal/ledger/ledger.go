// Package ledger tracks which dimension every entity is in: a bounded
// instance map or the global chunked plane. It is the glue record the
// spatial reconciler and portal travel both key off.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fernvale/server/internal/world"
)

// ErrDimensionMapName is returned when the map name does not match the
// dimension: instance requires one, global forbids one.
var ErrDimensionMapName = errors.New("ledger: map name is required for instance and forbidden for global")

// Store is the row storage behind the ledger. Implemented by
// persist.LocationRepo and memstore.Store.
type Store interface {
	PutLocation(ctx context.Context, row world.LocationRow) error
	GetLocation(ctx context.Context, et world.EntityType, id string) (*world.LocationRow, error)
	ListByDimension(ctx context.Context, dim world.Dimension) ([]world.LocationRow, error)
}

type Ledger struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// SetParams describes one location update. PortalID is set when the move
// went through a portal; LastGlobal records the global position to
// restore on re-entry and carries forward when nil.
type SetParams struct {
	EntityType world.EntityType
	EntityID   string
	Dimension  world.Dimension
	WorldKey   string
	MapName    string
	PortalID   string
	LastGlobal *world.Vec2
}

// SetLocation validates and writes the entity's location row. The
// dimension/map-name invariant is enforced, never repaired silently.
func (l *Ledger) SetLocation(ctx context.Context, p SetParams) (*world.LocationRow, error) {
	if p.EntityType == "" || p.EntityID == "" || p.WorldKey == "" {
		return nil, fmt.Errorf("ledger set: entity type, id and world key are required")
	}
	switch p.Dimension {
	case world.DimensionInstance:
		if p.MapName == "" {
			return nil, fmt.Errorf("ledger set %s/%s: %w", p.EntityType, p.EntityID, ErrDimensionMapName)
		}
	case world.DimensionGlobal:
		if p.MapName != "" {
			return nil, fmt.Errorf("ledger set %s/%s: %w", p.EntityType, p.EntityID, ErrDimensionMapName)
		}
	default:
		return nil, fmt.Errorf("ledger set %s/%s: unknown dimension %q", p.EntityType, p.EntityID, p.Dimension)
	}

	prev, err := l.store.GetLocation(ctx, p.EntityType, p.EntityID)
	if err != nil {
		return nil, fmt.Errorf("ledger set %s/%s: %w", p.EntityType, p.EntityID, err)
	}

	now := time.Now()
	row := world.LocationRow{
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Dimension:  p.Dimension,
		WorldKey:   p.WorldKey,
		MapName:    p.MapName,
		LastGlobal: p.LastGlobal,
		UpdatedAt:  now,
	}
	if p.PortalID != "" {
		row.LastPortalID = p.PortalID
		t := now
		row.PortalUsedAt = &t
	} else if prev != nil {
		row.LastPortalID = prev.LastPortalID
		row.PortalUsedAt = prev.PortalUsedAt
	}
	if row.LastGlobal == nil && prev != nil {
		row.LastGlobal = prev.LastGlobal
	}

	if err := l.store.PutLocation(ctx, row); err != nil {
		return nil, fmt.Errorf("ledger set %s/%s: %w", p.EntityType, p.EntityID, err)
	}
	return &row, nil
}

// GetLocation returns the entity's row, or nil when it has never been
// placed.
func (l *Ledger) GetLocation(ctx context.Context, et world.EntityType, id string) (*world.LocationRow, error) {
	row, err := l.store.GetLocation(ctx, et, id)
	if err != nil {
		return nil, fmt.Errorf("ledger get %s/%s: %w", et, id, err)
	}
	return row, nil
}

// ListByDimension passes through to the store; the reconciler uses it to
// enumerate global entities.
func (l *Ledger) ListByDimension(ctx context.Context, dim world.Dimension) ([]world.LocationRow, error) {
	return l.store.ListByDimension(ctx, dim)
}
