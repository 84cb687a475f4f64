// Package world defines the shared domain types: entity identity, the
// instance/global dimension split, NPC behavior state, and the row shapes
// persisted by the storage layer.
package world

import (
	"math"
	"time"
)

// EntityType distinguishes the row families tracked by the spatial index
// and the location ledger.
type EntityType string

const (
	EntityPlayer EntityType = "player_profile"
	EntityNpc    EntityType = "npc_state"
)

// Dimension says which coordinate space an entity currently occupies.
// Instance maps are bounded, named spaces; the global dimension is the
// single unbounded chunked plane.
type Dimension string

const (
	DimensionInstance Dimension = "instance"
	DimensionGlobal   Dimension = "global"
)

// Phase is the NPC behavior state. The tick evaluates phases in strict
// priority order: defeated, chase, idle, wander.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseWander   Phase = "wander"
	PhaseChase    Phase = "chase"
	PhaseDefeated Phase = "defeated"
)

// Facing is the four-way render direction.
type Facing string

const (
	FacingNorth Facing = "north"
	FacingSouth Facing = "south"
	FacingEast  Facing = "east"
	FacingWest  Facing = "west"
)

// Vec2 is a position or velocity in world pixels. Y grows downward.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Sub(o Vec2) Vec2    { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec2) Add(o Vec2) Vec2    { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }
func (v Vec2) Len() float64       { return math.Hypot(v.X, v.Y) }

// FacingFromDelta picks the facing for a movement delta: the axis with the
// larger magnitude wins, ties go horizontal.
func FacingFromDelta(dx, dy float64) Facing {
	if math.Abs(dy) > math.Abs(dx) {
		if dy < 0 {
			return FacingNorth
		}
		return FacingSouth
	}
	if dx < 0 {
		return FacingWest
	}
	return FacingEast
}

// NpcState is one live NPC row. Position, velocity, target, and phase are
// owned exclusively by the tick; combat fields (CurrentHP, LastHitAt, the
// aggro lock, the defeat timestamps) may additionally be written by the
// combat path.
type NpcState struct {
	ID       string `json:"id"`
	MapName  string `json:"mapName"`
	ObjectID string `json:"objectId"` // placed map object backing this row
	Sprite   string `json:"sprite"`
	Name     string `json:"name,omitempty"`

	Phase  Phase  `json:"phase"`
	Pos    Vec2   `json:"pos"`
	Spawn  Vec2   `json:"spawn"`
	Vel    Vec2   `json:"vel"`
	Facing Facing `json:"facing"`

	Speed        float64 `json:"speed"`        // px/s
	WanderRadius float64 `json:"wanderRadius"` // px around Spawn

	Target    *Vec2      `json:"target,omitempty"`
	IdleUntil *time.Time `json:"idleUntil,omitempty"`

	CurrentHP  int        `json:"currentHp"`
	MaxHP      int        `json:"maxHp"`
	DefeatedAt *time.Time `json:"defeatedAt,omitempty"`
	RespawnAt  *time.Time `json:"respawnAt,omitempty"`
	LastHitAt  *time.Time `json:"lastHitAt,omitempty"`

	AggroTarget string     `json:"aggroTarget,omitempty"` // player profile id
	AggroUntil  *time.Time `json:"aggroUntil,omitempty"`

	TickedAt time.Time `json:"tickedAt"`
}

// AggroLock records which player an NPC is chasing and until when.
type AggroLock struct {
	TargetID string
	Until    time.Time
}

// DefeatTimes marks an NPC defeated and schedules its respawn.
type DefeatTimes struct {
	DefeatedAt time.Time
	RespawnAt  time.Time
}

// NpcPatch is a field-level update for one NPC row: nil pointer means
// leave the column alone, Clear* flags null out the nullable fields.
type NpcPatch struct {
	ID string

	Phase  *Phase
	Pos    *Vec2
	Vel    *Vec2
	Facing *Facing

	Target      *Vec2
	ClearTarget bool
	IdleUntil   *time.Time
	ClearIdle   bool

	HP        *int
	LastHitAt *time.Time
	Aggro     *AggroLock
	ClearAggro bool
	Defeat      *DefeatTimes
	ClearDefeat bool

	Name         *string
	Speed        *float64
	WanderRadius *float64

	TickedAt *time.Time
}

// IsZero reports whether the patch would change nothing.
func (p NpcPatch) IsZero() bool {
	return p.Phase == nil && p.Pos == nil && p.Vel == nil && p.Facing == nil &&
		p.Target == nil && !p.ClearTarget && p.IdleUntil == nil && !p.ClearIdle &&
		p.HP == nil && p.LastHitAt == nil && p.Aggro == nil && !p.ClearAggro &&
		p.Defeat == nil && !p.ClearDefeat &&
		p.Name == nil && p.Speed == nil && p.WanderRadius == nil &&
		p.TickedAt == nil
}

// Apply writes the patch onto a state in place.
func (p NpcPatch) Apply(n *NpcState) {
	if p.Phase != nil {
		n.Phase = *p.Phase
	}
	if p.Pos != nil {
		n.Pos = *p.Pos
	}
	if p.Vel != nil {
		n.Vel = *p.Vel
	}
	if p.Facing != nil {
		n.Facing = *p.Facing
	}
	if p.Target != nil {
		t := *p.Target
		n.Target = &t
	} else if p.ClearTarget {
		n.Target = nil
	}
	if p.IdleUntil != nil {
		t := *p.IdleUntil
		n.IdleUntil = &t
	} else if p.ClearIdle {
		n.IdleUntil = nil
	}
	if p.HP != nil {
		n.CurrentHP = *p.HP
	}
	if p.LastHitAt != nil {
		t := *p.LastHitAt
		n.LastHitAt = &t
	}
	if p.Aggro != nil {
		n.AggroTarget = p.Aggro.TargetID
		u := p.Aggro.Until
		n.AggroUntil = &u
	} else if p.ClearAggro {
		n.AggroTarget = ""
		n.AggroUntil = nil
	}
	if p.Defeat != nil {
		d := p.Defeat.DefeatedAt
		r := p.Defeat.RespawnAt
		n.DefeatedAt = &d
		n.RespawnAt = &r
	} else if p.ClearDefeat {
		n.DefeatedAt = nil
		n.RespawnAt = nil
		n.LastHitAt = nil
	}
	if p.Name != nil {
		n.Name = *p.Name
	}
	if p.Speed != nil {
		n.Speed = *p.Speed
	}
	if p.WanderRadius != nil {
		n.WanderRadius = *p.WanderRadius
	}
	if p.TickedAt != nil {
		n.TickedAt = *p.TickedAt
	}
}

// SpatialRow is one denormalized position entry in the spatial index.
type SpatialRow struct {
	WorldKey   string     `json:"worldKey"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Pos        Vec2       `json:"pos"`
	Vel        Vec2       `json:"vel"`
	ChunkX     int        `json:"chunkX"`
	ChunkY     int        `json:"chunkY"`
	Animation  string     `json:"animation,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// SameEntry reports whether two rows agree on everything except UpdatedAt.
func (r SpatialRow) SameEntry(o SpatialRow) bool {
	return r.WorldKey == o.WorldKey &&
		r.EntityType == o.EntityType && r.EntityID == o.EntityID &&
		r.Pos == o.Pos && r.Vel == o.Vel &&
		r.ChunkX == o.ChunkX && r.ChunkY == o.ChunkY &&
		r.Animation == o.Animation
}

// LocationRow is the ledger entry saying where an entity currently is.
// MapName is set iff Dimension is instance.
type LocationRow struct {
	EntityType   EntityType `json:"entityType"`
	EntityID     string     `json:"entityId"`
	Dimension    Dimension  `json:"dimension"`
	WorldKey     string     `json:"worldKey"`
	MapName      string     `json:"mapName,omitempty"`
	LastPortalID string     `json:"lastPortalId,omitempty"`
	PortalUsedAt *time.Time `json:"portalUsedAt,omitempty"`
	LastGlobal   *Vec2      `json:"lastGlobal,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ChunkObject is one static object recorded on a chunk row.
type ChunkObject struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Pos  Vec2   `json:"pos"`
}

// ChunkRow is the persisted chunk record: a revision counter bumped on
// every edit plus the static objects placed in the chunk. The spatial
// index references chunk coordinates but never owns these rows.
type ChunkRow struct {
	WorldKey  string        `json:"worldKey"`
	ChunkX    int           `json:"chunkX"`
	ChunkY    int           `json:"chunkY"`
	Revision  int64         `json:"revision"`
	Objects   []ChunkObject `json:"objects"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// PlacedObject is a map-editor object placed on an instance map. Objects
// whose sprite definition is categorized as an NPC seed NPC rows.
type PlacedObject struct {
	ID           string `json:"id"`
	MapName      string `json:"mapName"`
	Sprite       string `json:"sprite"`
	InstanceName string `json:"instanceName,omitempty"`
	Pos          Vec2   `json:"pos"`
}

// BehaviorOverride tunes one named NPC instance on a map. Nil fields fall
// through to the sprite definition.
type BehaviorOverride struct {
	MapName      string
	InstanceName string
	Speed        *float64
	WanderRadius *float64
}

// PlayerProfile is the persisted player row; Pos is the last saved
// instance-map position.
type PlayerProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MapName   string    `json:"mapName"`
	Pos       Vec2      `json:"pos"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlayerPresence is the live session row, fresher than the profile while
// the player is connected.
type PlayerPresence struct {
	ProfileID string    `json:"profileId"`
	MapName   string    `json:"mapName"`
	Pos       Vec2      `json:"pos"`
	UpdatedAt time.Time `json:"updatedAt"`
}
