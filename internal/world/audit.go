package world

import "time"

// AuditEntry records the outcome of one reconciliation or sync pass so
// operators can track drift over time.
type AuditEntry struct {
	Pass      string    `json:"pass"`
	WorldKey  string    `json:"worldKey"`
	Inserted  int       `json:"inserted"`
	Patched   int       `json:"patched"`
	Unchanged int       `json:"unchanged"`
	Skipped   int       `json:"skipped"`
	At        time.Time `json:"at"`
}
