package persist

import (
	"context"

	"github.com/fernvale/server/internal/world"
)

// ObjectRepo stores the map editor's placed objects and the per-instance
// behavior overrides.
type ObjectRepo struct {
	db *DB
}

func NewObjectRepo(db *DB) *ObjectRepo {
	return &ObjectRepo{db: db}
}

func (r *ObjectRepo) ListObjects(ctx context.Context, mapName string) ([]world.PlacedObject, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, map_name, sprite, instance_name, pos_x, pos_y
		 FROM map_objects WHERE map_name = $1 ORDER BY id`, mapName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []world.PlacedObject
	for rows.Next() {
		var o world.PlacedObject
		if err := rows.Scan(&o.ID, &o.MapName, &o.Sprite, &o.InstanceName, &o.Pos.X, &o.Pos.Y); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *ObjectRepo) PutObject(ctx context.Context, o world.PlacedObject) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO map_objects (id, map_name, sprite, instance_name, pos_x, pos_y)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (map_name, id) DO UPDATE SET
			sprite = EXCLUDED.sprite,
			instance_name = EXCLUDED.instance_name,
			pos_x = EXCLUDED.pos_x, pos_y = EXCLUDED.pos_y`,
		o.ID, o.MapName, o.Sprite, o.InstanceName, o.Pos.X, o.Pos.Y,
	)
	return err
}

func (r *ObjectRepo) RemoveObject(ctx context.Context, mapName, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM map_objects WHERE map_name = $1 AND id = $2`, mapName, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ObjectRepo) ListOverrides(ctx context.Context, mapName string) ([]world.BehaviorOverride, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT map_name, instance_name, speed, wander_radius
		 FROM behavior_overrides WHERE map_name = $1`, mapName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []world.BehaviorOverride
	for rows.Next() {
		var o world.BehaviorOverride
		if err := rows.Scan(&o.MapName, &o.InstanceName, &o.Speed, &o.WanderRadius); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *ObjectRepo) PutOverride(ctx context.Context, o world.BehaviorOverride) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO behavior_overrides (map_name, instance_name, speed, wander_radius)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (map_name, instance_name) DO UPDATE SET
			speed = EXCLUDED.speed,
			wander_radius = EXCLUDED.wander_radius`,
		o.MapName, o.InstanceName, o.Speed, o.WanderRadius,
	)
	return err
}
