package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fernvale/server/internal/world"
)

// LocationRepo stores the location ledger rows. The dimension/map-name
// invariant is also enforced by a table CHECK, so a buggy caller fails
// loudly instead of writing a contradictory row.
type LocationRepo struct {
	db *DB
}

func NewLocationRepo(db *DB) *LocationRepo {
	return &LocationRepo{db: db}
}

func scanLocation(row pgx.Row) (*world.LocationRow, error) {
	l := &world.LocationRow{}
	var gx, gy *float64
	err := row.Scan(
		&l.EntityType, &l.EntityID, &l.Dimension, &l.WorldKey, &l.MapName,
		&l.LastPortalID, &l.PortalUsedAt, &gx, &gy, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if gx != nil && gy != nil {
		l.LastGlobal = &world.Vec2{X: *gx, Y: *gy}
	}
	return l, nil
}

func (r *LocationRepo) PutLocation(ctx context.Context, row world.LocationRow) error {
	var gx, gy *float64
	if row.LastGlobal != nil {
		gx, gy = &row.LastGlobal.X, &row.LastGlobal.Y
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO entity_locations (
			entity_type, entity_id, dimension, world_key, map_name,
			last_portal_id, portal_used_at, last_global_x, last_global_y, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			dimension = EXCLUDED.dimension,
			world_key = EXCLUDED.world_key,
			map_name = EXCLUDED.map_name,
			last_portal_id = EXCLUDED.last_portal_id,
			portal_used_at = EXCLUDED.portal_used_at,
			last_global_x = EXCLUDED.last_global_x,
			last_global_y = EXCLUDED.last_global_y,
			updated_at = NOW()`,
		row.EntityType, row.EntityID, row.Dimension, row.WorldKey, row.MapName,
		row.LastPortalID, row.PortalUsedAt, gx, gy,
	)
	return err
}

func (r *LocationRepo) GetLocation(ctx context.Context, et world.EntityType, id string) (*world.LocationRow, error) {
	l, err := scanLocation(r.db.Pool.QueryRow(ctx,
		`SELECT entity_type, entity_id, dimension, world_key, map_name,
		        last_portal_id, portal_used_at, last_global_x, last_global_y, updated_at
		 FROM entity_locations WHERE entity_type = $1 AND entity_id = $2`, et, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *LocationRepo) ListByDimension(ctx context.Context, dim world.Dimension) ([]world.LocationRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT entity_type, entity_id, dimension, world_key, map_name,
		        last_portal_id, portal_used_at, last_global_x, last_global_y, updated_at
		 FROM entity_locations WHERE dimension = $1 ORDER BY entity_id`, dim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []world.LocationRow
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *l)
	}
	return result, rows.Err()
}
