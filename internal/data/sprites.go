// Package data loads the static definition tables shipped with the server.
package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sprite categories. Only CategoryNpc sprites seed NPC behavior rows;
// everything else is inert scenery to the simulation.
const (
	CategoryNpc   = "npc"
	CategoryDecor = "decor"
	CategoryItem  = "item"
)

// Brain kinds for NPC sprites.
const (
	BrainBuiltin  = "builtin"
	BrainScripted = "scripted"
)

// SpriteDef holds static data for one sprite loaded from YAML.
type SpriteDef struct {
	Name         string  `yaml:"name"`
	Category     string  `yaml:"category"`
	DisplayName  string  `yaml:"display_name"`
	Speed        float64 `yaml:"speed"`         // px/s
	WanderRadius float64 `yaml:"wander_radius"` // px
	MaxHP        int     `yaml:"max_hp"`
	RespawnDelay int     `yaml:"respawn_delay"` // seconds
	Brain        string  `yaml:"brain"`         // builtin (default) or scripted
	Animation    string  `yaml:"animation"`
}

// IsNpc reports whether placing this sprite on a map should create an
// NPC behavior row.
func (d *SpriteDef) IsNpc() bool {
	return d != nil && d.Category == CategoryNpc
}

type spriteListFile struct {
	Sprites []SpriteDef `yaml:"sprites"`
}

// SpriteTable holds all sprite definitions indexed by name.
type SpriteTable struct {
	defs map[string]*SpriteDef
}

// LoadSpriteTable loads sprite definitions from a YAML file.
func LoadSpriteTable(path string) (*SpriteTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sprite list: %w", err)
	}
	var f spriteListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse sprite list: %w", err)
	}
	t := &SpriteTable{defs: make(map[string]*SpriteDef, len(f.Sprites))}
	for i := range f.Sprites {
		d := &f.Sprites[i]
		if d.Brain == "" {
			d.Brain = BrainBuiltin
		}
		t.defs[d.Name] = d
	}
	return t, nil
}

// NewSpriteTable builds a table from in-memory definitions, for tests.
func NewSpriteTable(defs ...SpriteDef) *SpriteTable {
	t := &SpriteTable{defs: make(map[string]*SpriteDef, len(defs))}
	for i := range defs {
		d := defs[i]
		if d.Brain == "" {
			d.Brain = BrainBuiltin
		}
		t.defs[d.Name] = &d
	}
	return t
}

// Get returns a sprite definition by name, or nil if not found.
func (t *SpriteTable) Get(name string) *SpriteDef {
	return t.defs[name]
}

// Count returns the number of loaded definitions.
func (t *SpriteTable) Count() int {
	return len(t.defs)
}
