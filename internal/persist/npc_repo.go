package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fernvale/server/internal/world"
)

const npcColumns = `id, map_name, object_id, sprite, name, phase,
        pos_x, pos_y, spawn_x, spawn_y, vel_x, vel_y, facing,
        speed, wander_radius, target_x, target_y, idle_until,
        current_hp, max_hp, defeated_at, respawn_at, last_hit_at,
        aggro_target, aggro_until, ticked_at`

// NpcRepo stores live NPC behavior rows.
type NpcRepo struct {
	db *DB
}

func NewNpcRepo(db *DB) *NpcRepo {
	return &NpcRepo{db: db}
}

func scanNpc(row pgx.Row) (*world.NpcState, error) {
	n := &world.NpcState{}
	var targetX, targetY *float64
	err := row.Scan(
		&n.ID, &n.MapName, &n.ObjectID, &n.Sprite, &n.Name, &n.Phase,
		&n.Pos.X, &n.Pos.Y, &n.Spawn.X, &n.Spawn.Y, &n.Vel.X, &n.Vel.Y, &n.Facing,
		&n.Speed, &n.WanderRadius, &targetX, &targetY, &n.IdleUntil,
		&n.CurrentHP, &n.MaxHP, &n.DefeatedAt, &n.RespawnAt, &n.LastHitAt,
		&n.AggroTarget, &n.AggroUntil, &n.TickedAt,
	)
	if err != nil {
		return nil, err
	}
	if targetX != nil && targetY != nil {
		n.Target = &world.Vec2{X: *targetX, Y: *targetY}
	}
	return n, nil
}

func (r *NpcRepo) listWhere(ctx context.Context, where string, args ...any) ([]world.NpcState, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+npcColumns+` FROM npc_states `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []world.NpcState
	for rows.Next() {
		n, err := scanNpc(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

func (r *NpcRepo) ListNpcs(ctx context.Context) ([]world.NpcState, error) {
	return r.listWhere(ctx, `ORDER BY id`)
}

func (r *NpcRepo) ListNpcsOnMap(ctx context.Context, mapName string) ([]world.NpcState, error) {
	return r.listWhere(ctx, `WHERE map_name = $1 ORDER BY id`, mapName)
}

func (r *NpcRepo) GetNpc(ctx context.Context, id string) (*world.NpcState, error) {
	n, err := scanNpc(r.db.Pool.QueryRow(ctx,
		`SELECT `+npcColumns+` FROM npc_states WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *NpcRepo) CreateNpc(ctx context.Context, n *world.NpcState) error {
	var targetX, targetY *float64
	if n.Target != nil {
		targetX, targetY = &n.Target.X, &n.Target.Y
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO npc_states (`+npcColumns+`) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,
			$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26
		)`,
		n.ID, n.MapName, n.ObjectID, n.Sprite, n.Name, n.Phase,
		n.Pos.X, n.Pos.Y, n.Spawn.X, n.Spawn.Y, n.Vel.X, n.Vel.Y, n.Facing,
		n.Speed, n.WanderRadius, targetX, targetY, n.IdleUntil,
		n.CurrentHP, n.MaxHP, n.DefeatedAt, n.RespawnAt, n.LastHitAt,
		n.AggroTarget, n.AggroUntil, n.TickedAt,
	)
	return err
}

func (r *NpcRepo) DeleteNpc(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM npc_states WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// patchSQL builds the dynamic SET clause for one patch. The column list
// mirrors NpcPatch: nil means leave alone, Clear* flags null the column.
func patchSQL(p world.NpcPatch) (string, []any) {
	set := make([]string, 0, 16)
	args := []any{p.ID}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Phase != nil {
		add("phase", *p.Phase)
	}
	if p.Pos != nil {
		add("pos_x", p.Pos.X)
		add("pos_y", p.Pos.Y)
	}
	if p.Vel != nil {
		add("vel_x", p.Vel.X)
		add("vel_y", p.Vel.Y)
	}
	if p.Facing != nil {
		add("facing", *p.Facing)
	}
	if p.Target != nil {
		add("target_x", p.Target.X)
		add("target_y", p.Target.Y)
	} else if p.ClearTarget {
		set = append(set, "target_x = NULL", "target_y = NULL")
	}
	if p.IdleUntil != nil {
		add("idle_until", *p.IdleUntil)
	} else if p.ClearIdle {
		set = append(set, "idle_until = NULL")
	}
	if p.HP != nil {
		add("current_hp", *p.HP)
	}
	if p.LastHitAt != nil {
		add("last_hit_at", *p.LastHitAt)
	}
	if p.Aggro != nil {
		add("aggro_target", p.Aggro.TargetID)
		add("aggro_until", p.Aggro.Until)
	} else if p.ClearAggro {
		set = append(set, "aggro_target = ''", "aggro_until = NULL")
	}
	if p.Defeat != nil {
		add("defeated_at", p.Defeat.DefeatedAt)
		add("respawn_at", p.Defeat.RespawnAt)
	} else if p.ClearDefeat {
		set = append(set, "defeated_at = NULL", "respawn_at = NULL", "last_hit_at = NULL")
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Speed != nil {
		add("speed", *p.Speed)
	}
	if p.WanderRadius != nil {
		add("wander_radius", *p.WanderRadius)
	}
	if p.TickedAt != nil {
		add("ticked_at", *p.TickedAt)
	}

	sql := "UPDATE npc_states SET "
	for i, s := range set {
		if i > 0 {
			sql += ", "
		}
		sql += s
	}
	sql += " WHERE id = $1"
	return sql, args
}

// ApplyPatches commits the batch in one transaction. A patch whose row
// vanished is skipped and reported; an exec failure aborts the batch.
func (r *NpcRepo) ApplyPatches(ctx context.Context, patches []world.NpcPatch) (int, []error, error) {
	var applied int
	var skipped []error

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback(ctx)

	for _, p := range patches {
		if p.IsZero() {
			continue
		}
		sql, args := patchSQL(p)
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, nil, fmt.Errorf("patch npc %s: %w", p.ID, err)
		}
		if tag.RowsAffected() == 0 {
			skipped = append(skipped, fmt.Errorf("npc %s: %w", p.ID, world.ErrNotFound))
			continue
		}
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, err
	}
	return applied, skipped, nil
}

func (r *NpcRepo) LatestTick(ctx context.Context) (time.Time, int, error) {
	var latest *time.Time
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT MAX(ticked_at), COUNT(*) FROM npc_states`,
	).Scan(&latest, &count)
	if err != nil {
		return time.Time{}, 0, err
	}
	if latest == nil {
		return time.Time{}, count, nil
	}
	return *latest, count, nil
}
