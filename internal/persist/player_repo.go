package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fernvale/server/internal/world"
)

// PlayerRepo stores player profiles and the live presence rows layered
// on top of them.
type PlayerRepo struct {
	db *DB
}

func NewPlayerRepo(db *DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

func (r *PlayerRepo) GetProfile(ctx context.Context, id string) (*world.PlayerProfile, error) {
	p := &world.PlayerProfile{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, map_name, pos_x, pos_y, updated_at
		 FROM player_profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.MapName, &p.Pos.X, &p.Pos.Y, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PlayerRepo) PutProfile(ctx context.Context, p world.PlayerProfile) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO player_profiles (id, name, map_name, pos_x, pos_y, updated_at)
		 VALUES ($1,$2,$3,$4,$5,NOW())
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			map_name = EXCLUDED.map_name,
			pos_x = EXCLUDED.pos_x, pos_y = EXCLUDED.pos_y,
			updated_at = NOW()`,
		p.ID, p.Name, p.MapName, p.Pos.X, p.Pos.Y,
	)
	return err
}

func (r *PlayerRepo) PutPresence(ctx context.Context, p world.PlayerPresence) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO player_presence (profile_id, map_name, pos_x, pos_y, updated_at)
		 VALUES ($1,$2,$3,$4,NOW())
		 ON CONFLICT (profile_id) DO UPDATE SET
			map_name = EXCLUDED.map_name,
			pos_x = EXCLUDED.pos_x, pos_y = EXCLUDED.pos_y,
			updated_at = NOW()`,
		p.ProfileID, p.MapName, p.Pos.X, p.Pos.Y,
	)
	return err
}

func (r *PlayerRepo) RemovePresence(ctx context.Context, profileID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM player_presence WHERE profile_id = $1`, profileID)
	return err
}

// PlayerPosition resolves where the player is on the given map: the
// live presence row wins, the saved profile position is the fallback.
// A presence on another map means the player left, even if the profile
// still says otherwise.
func (r *PlayerRepo) PlayerPosition(ctx context.Context, mapName, profileID string) (world.Vec2, bool, error) {
	var pos world.Vec2
	var onMap string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT map_name, pos_x, pos_y FROM player_presence WHERE profile_id = $1`,
		profileID,
	).Scan(&onMap, &pos.X, &pos.Y)
	if err == nil {
		if onMap != mapName {
			return world.Vec2{}, false, nil
		}
		return pos, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return world.Vec2{}, false, err
	}

	err = r.db.Pool.QueryRow(ctx,
		`SELECT map_name, pos_x, pos_y FROM player_profiles WHERE id = $1`,
		profileID,
	).Scan(&onMap, &pos.X, &pos.Y)
	if errors.Is(err, pgx.ErrNoRows) {
		return world.Vec2{}, false, nil
	}
	if err != nil {
		return world.Vec2{}, false, err
	}
	if onMap != mapName {
		return world.Vec2{}, false, nil
	}
	return pos, true, nil
}
