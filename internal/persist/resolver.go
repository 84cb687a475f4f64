package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/fernvale/server/internal/world"
)

// Resolver maps an entity back to its authoritative position for the
// spatial reconciler: presence-then-profile for players, the behavior
// row for NPCs.
type Resolver struct {
	npcs    *NpcRepo
	players *PlayerRepo
}

func NewResolver(npcs *NpcRepo, players *PlayerRepo) *Resolver {
	return &Resolver{npcs: npcs, players: players}
}

func (r *Resolver) ResolvePosition(ctx context.Context, et world.EntityType, id string) (world.Vec2, world.Vec2, string, bool, error) {
	switch et {
	case world.EntityNpc:
		n, err := r.npcs.GetNpc(ctx, id)
		if err != nil || n == nil {
			return world.Vec2{}, world.Vec2{}, "", false, err
		}
		return n.Pos, n.Vel, string(n.Phase), true, nil
	case world.EntityPlayer:
		var pos world.Vec2
		var mapName string
		err := r.players.db.Pool.QueryRow(ctx,
			`SELECT map_name, pos_x, pos_y FROM player_presence WHERE profile_id = $1`,
			id,
		).Scan(&mapName, &pos.X, &pos.Y)
		if err == nil {
			return pos, world.Vec2{}, "", true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return world.Vec2{}, world.Vec2{}, "", false, err
		}
		p, perr := r.players.GetProfile(ctx, id)
		if perr != nil || p == nil {
			return world.Vec2{}, world.Vec2{}, "", false, perr
		}
		return p.Pos, world.Vec2{}, "", true, nil
	default:
		return world.Vec2{}, world.Vec2{}, "", false, nil
	}
}
