package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fernvale/server/internal/world"
)

// SpatialRepo stores the denormalized position index rows.
type SpatialRepo struct {
	db *DB
}

func NewSpatialRepo(db *DB) *SpatialRepo {
	return &SpatialRepo{db: db}
}

func (r *SpatialRepo) Get(ctx context.Context, et world.EntityType, id string) (*world.SpatialRow, error) {
	row := &world.SpatialRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT world_key, entity_type, entity_id, pos_x, pos_y, vel_x, vel_y,
		        chunk_x, chunk_y, animation, updated_at
		 FROM spatial_index WHERE entity_type = $1 AND entity_id = $2`, et, id,
	).Scan(
		&row.WorldKey, &row.EntityType, &row.EntityID,
		&row.Pos.X, &row.Pos.Y, &row.Vel.X, &row.Vel.Y,
		&row.ChunkX, &row.ChunkY, &row.Animation, &row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *SpatialRepo) Put(ctx context.Context, row world.SpatialRow) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO spatial_index (
			world_key, entity_type, entity_id, pos_x, pos_y, vel_x, vel_y,
			chunk_x, chunk_y, animation, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			world_key = EXCLUDED.world_key,
			pos_x = EXCLUDED.pos_x, pos_y = EXCLUDED.pos_y,
			vel_x = EXCLUDED.vel_x, vel_y = EXCLUDED.vel_y,
			chunk_x = EXCLUDED.chunk_x, chunk_y = EXCLUDED.chunk_y,
			animation = EXCLUDED.animation,
			updated_at = NOW()`,
		row.WorldKey, row.EntityType, row.EntityID,
		row.Pos.X, row.Pos.Y, row.Vel.X, row.Vel.Y,
		row.ChunkX, row.ChunkY, row.Animation,
	)
	return err
}

func (r *SpatialRepo) Delete(ctx context.Context, et world.EntityType, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM spatial_index WHERE entity_type = $1 AND entity_id = $2`, et, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SpatialRepo) ListChunk(ctx context.Context, worldKey string, cx, cy int) ([]world.SpatialRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT world_key, entity_type, entity_id, pos_x, pos_y, vel_x, vel_y,
		        chunk_x, chunk_y, animation, updated_at
		 FROM spatial_index
		 WHERE world_key = $1 AND chunk_x = $2 AND chunk_y = $3`,
		worldKey, cx, cy,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []world.SpatialRow
	for rows.Next() {
		var row world.SpatialRow
		if err := rows.Scan(
			&row.WorldKey, &row.EntityType, &row.EntityID,
			&row.Pos.X, &row.Pos.Y, &row.Vel.X, &row.Vel.Y,
			&row.ChunkX, &row.ChunkY, &row.Animation, &row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
