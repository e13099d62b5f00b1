package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ddnet/internal/ir"
)

type factKey struct {
	rel   ir.RelID
	value ir.Value
}

// Apply adjusts fact weights for every update inside one SQL transaction and
// returns the net presence changes: an Insert for each fact that was absent
// before the call and is present after it, a Delete for the reverse.
//
// Facts that flip and flip back within the same call produce no change.
// Deleting an absent fact is ignored.
func (s *Store) Apply(ctx context.Context, updates []ir.Update) ([]ir.Update, error) {
	return s.ApplyDerived(ctx, updates, nil)
}

// ApplyDerived applies updates like Apply, then repeatedly feeds the changes
// of the last round to derive and applies the updates it returns, until a
// round produces no change. Every round runs in the same SQL transaction, so
// either all of them commit or none does.
//
// derive must terminate: it is the caller's job to reject cyclic rules.
// The returned changes are the concatenation of every round's changes.
func (s *Store) ApplyDerived(ctx context.Context, updates []ir.Update, derive func([]ir.Update) []ir.Update) ([]ir.Update, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("apply: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	var all []ir.Update
	pending := updates
	for len(pending) > 0 {
		changes, err := applyRound(ctx, tx, pending)
		if err != nil {
			return nil, fmt.Errorf("apply: %w", err)
		}
		all = append(all, changes...)
		if derive == nil || len(changes) == 0 {
			break
		}
		pending = derive(changes)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("apply: commit: %w", err)
	}
	return all, nil
}

// applyRound applies one batch and reports its presence changes.
func applyRound(ctx context.Context, tx *sql.Tx, updates []ir.Update) ([]ir.Update, error) {
	before := make(map[factKey]bool)
	weights := make(map[factKey]int64)
	var order []factKey

	for _, u := range updates {
		k := factKey{rel: u.Rel, value: u.Value}

		weight, ok := weights[k]
		if !ok {
			var err error
			weight, err = readWeight(ctx, tx, k)
			if err != nil {
				return nil, err
			}
			before[k] = weight > 0
			order = append(order, k)
		}

		switch u.Kind {
		case ir.Insert:
			weight++
		case ir.Delete:
			if weight == 0 {
				weights[k] = 0
				continue
			}
			weight--
		default:
			return nil, fmt.Errorf("invalid update kind %d for relation %d", u.Kind, u.Rel)
		}

		if err := writeWeight(ctx, tx, k, weight); err != nil {
			return nil, err
		}
		weights[k] = weight
	}

	var changes []ir.Update
	for _, k := range order {
		now := weights[k] > 0
		switch {
		case now && !before[k]:
			changes = append(changes, ir.Update{Kind: ir.Insert, Rel: k.rel, Value: k.value})
		case !now && before[k]:
			changes = append(changes, ir.Update{Kind: ir.Delete, Rel: k.rel, Value: k.value})
		}
	}
	return changes, nil
}

func readWeight(ctx context.Context, tx *sql.Tx, k factKey) (int64, error) {
	var weight int64
	err := tx.QueryRowContext(ctx,
		`SELECT weight FROM facts WHERE rel_id = ? AND value = ?`,
		int64(k.rel), string(k.value),
	).Scan(&weight)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read weight of %d %q: %w", k.rel, k.value, err)
	}
	return weight, nil
}

func writeWeight(ctx context.Context, tx *sql.Tx, k factKey, weight int64) error {
	var err error
	if weight == 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM facts WHERE rel_id = ? AND value = ?`,
			int64(k.rel), string(k.value),
		)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO facts (rel_id, value, weight) VALUES (?, ?, ?)
			ON CONFLICT(rel_id, value) DO UPDATE SET weight = excluded.weight
		`,
			int64(k.rel), string(k.value), weight,
		)
	}
	if err != nil {
		return fmt.Errorf("write weight of %d %q: %w", k.rel, k.value, err)
	}
	return nil
}
