package persist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fernvale/server/internal/world"
)

// ChunkRepo stores the persisted chunk records: revision counter plus
// the static objects placed in the chunk, as a JSONB blob.
type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) GetChunk(ctx context.Context, worldKey string, cx, cy int) (*world.ChunkRow, error) {
	row := &world.ChunkRow{}
	var raw []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT world_key, chunk_x, chunk_y, revision, objects, updated_at
		 FROM chunks WHERE world_key = $1 AND chunk_x = $2 AND chunk_y = $3`,
		worldKey, cx, cy,
	).Scan(&row.WorldKey, &row.ChunkX, &row.ChunkY, &row.Revision, &raw, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &row.Objects); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *ChunkRepo) PutChunk(ctx context.Context, row world.ChunkRow) error {
	objects := row.Objects
	if objects == nil {
		objects = []world.ChunkObject{}
	}
	raw, err := json.Marshal(objects)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO chunks (world_key, chunk_x, chunk_y, revision, objects, updated_at)
		 VALUES ($1,$2,$3,$4,$5,NOW())
		 ON CONFLICT (world_key, chunk_x, chunk_y) DO UPDATE SET
			revision = EXCLUDED.revision,
			objects = EXCLUDED.objects,
			updated_at = NOW()`,
		row.WorldKey, row.ChunkX, row.ChunkY, row.Revision, raw,
	)
	return err
}
