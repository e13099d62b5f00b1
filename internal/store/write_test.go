package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/roach88/ddnet/internal/ir"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ins(rel ir.RelID, v string) ir.Update {
	return ir.Update{Kind: ir.Insert, Rel: rel, Value: ir.Value(v)}
}

func del(rel ir.RelID, v string) ir.Update {
	return ir.Update{Kind: ir.Delete, Rel: rel, Value: ir.Value(v)}
}

func TestApply_InsertReportsNewFacts(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	changes, err := s.Apply(ctx, []ir.Update{ins(1, "a"), ins(2, "b"), ins(1, "a")})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	want := []ir.Update{ins(1, "a"), ins(2, "b")}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %v, want %v", changes, want)
	}

	w, err := s.Weight(ctx, 1, "a")
	if err != nil {
		t.Fatalf("Weight() failed: %v", err)
	}
	if w != 2 {
		t.Errorf("weight = %d, want 2", w)
	}
}

func TestApply_DeleteOnlyWhenWeightReachesZero(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if _, err := s.Apply(ctx, []ir.Update{ins(1, "a"), ins(1, "a")}); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	changes, err := s.Apply(ctx, []ir.Update{del(1, "a")})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("changes = %v, want none while weight is positive", changes)
	}

	changes, err = s.Apply(ctx, []ir.Update{del(1, "a")})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if want := []ir.Update{del(1, "a")}; !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %v, want %v", changes, want)
	}
}

func TestApply_DeleteAbsentIsNoop(t *testing.T) {
	s := openMemory(t)

	changes, err := s.Apply(context.Background(), []ir.Update{del(3, "ghost")})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("changes = %v, want none", changes)
	}
}

func TestApply_FlipWithinTransactionCancels(t *testing.T) {
	s := openMemory(t)

	changes, err := s.Apply(context.Background(), []ir.Update{ins(1, "a"), del(1, "a")})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("changes = %v, want none", changes)
	}
}

func TestApply_InvalidKindRollsBack(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, err := s.Apply(ctx, []ir.Update{ins(1, "a"), {Kind: 0, Rel: 1, Value: "b"}})
	if err == nil {
		t.Fatal("Apply() succeeded with an invalid kind")
	}

	values, err := s.Contents(ctx, 1)
	if err != nil {
		t.Fatalf("Contents() failed: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("contents = %v, want rolled back", values)
	}
}

func TestApplyDerived_RunsToFixpoint(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	// 1 -> 2 -> 3
	derive := func(changes []ir.Update) []ir.Update {
		var out []ir.Update
		for _, c := range changes {
			if c.Rel < 3 {
				out = append(out, ir.Update{Kind: c.Kind, Rel: c.Rel + 1, Value: c.Value})
			}
		}
		return out
	}

	changes, err := s.ApplyDerived(ctx, []ir.Update{ins(1, "a")}, derive)
	if err != nil {
		t.Fatalf("ApplyDerived() failed: %v", err)
	}
	want := []ir.Update{ins(1, "a"), ins(2, "a"), ins(3, "a")}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %v, want %v", changes, want)
	}

	changes, err = s.ApplyDerived(ctx, []ir.Update{del(1, "a")}, derive)
	if err != nil {
		t.Fatalf("ApplyDerived() failed: %v", err)
	}
	want = []ir.Update{del(1, "a"), del(2, "a"), del(3, "a")}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %v, want %v", changes, want)
	}
}
