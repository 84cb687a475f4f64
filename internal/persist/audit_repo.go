package persist

import (
	"context"

	"github.com/fernvale/server/internal/world"
)

// AuditRepo is an append-only record of reconciliation passes.
type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Record(ctx context.Context, entry world.AuditEntry) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO reconcile_audit (pass, world_key, inserted, patched, unchanged, skipped, ran_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.Pass, entry.WorldKey, entry.Inserted, entry.Patched,
		entry.Unchanged, entry.Skipped, entry.At,
	)
	return err
}

// Recent returns the latest audit entries, newest first.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]world.AuditEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT pass, world_key, inserted, patched, unchanged, skipped, ran_at
		 FROM reconcile_audit ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []world.AuditEntry
	for rows.Next() {
		var e world.AuditEntry
		if err := rows.Scan(&e.Pass, &e.WorldKey, &e.Inserted, &e.Patched,
			&e.Unchanged, &e.Skipped, &e.At); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
