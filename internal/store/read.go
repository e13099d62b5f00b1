package store

import (
	"context"
	"fmt"

	"github.com/roach88/ddnet/internal/ir"
)

// Contents returns the present facts of rel, ordered by value.
// Returns an empty slice (not nil) for an empty relation.
func (s *Store) Contents(ctx context.Context, rel ir.RelID) ([]ir.Value, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM facts
		WHERE rel_id = ?
		ORDER BY value COLLATE BINARY ASC
	`, int64(rel))
	if err != nil {
		return nil, fmt.Errorf("contents of %d: %w", rel, err)
	}
	defer rows.Close()

	values := []ir.Value{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("contents of %d: scan: %w", rel, err)
		}
		values = append(values, ir.Value(v))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contents of %d: %w", rel, err)
	}
	return values, nil
}

// Snapshot returns every present fact of the given relations as Insert
// updates, ordered by relation id then value.
func (s *Store) Snapshot(ctx context.Context, rels ir.RelSet) ([]ir.Update, error) {
	var updates []ir.Update
	for _, rel := range rels.Sorted() {
		values, err := s.Contents(ctx, rel)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		for _, v := range values {
			updates = append(updates, ir.Update{Kind: ir.Insert, Rel: rel, Value: v})
		}
	}
	return updates, nil
}

// Weight returns the current weight of one fact (0 when absent).
func (s *Store) Weight(ctx context.Context, rel ir.RelID, value ir.Value) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("weight: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	return readWeight(ctx, tx, factKey{rel: rel, value: value})
}
