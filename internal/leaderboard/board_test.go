package leaderboard

import (
	"context"
	"testing"

	"techcharades/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewBoard(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestBoardKeepsBestScore(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	kim := domain.Participant{Name: "kim", StudentID: "2024-01"}

	if err := b.Record(ctx, kim, 120); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := b.Record(ctx, kim, 80); err != nil {
		t.Fatalf("Record lower: %v", err)
	}
	if err := b.Record(ctx, domain.Participant{Name: "lee"}, 95); err != nil {
		t.Fatalf("Record lee: %v", err)
	}

	top, err := b.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("entries = %d, want 2", len(top))
	}
	if top[0].Name != "kim" || top[0].Score != 120 {
		t.Fatalf("best entry = %+v, want kim 120 (lower score must not overwrite)", top[0])
	}
	if top[1].Name != "lee" || top[1].Score != 95 {
		t.Fatalf("second entry = %+v", top[1])
	}
}

func TestBoardTopLimit(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	for _, p := range []struct {
		name  string
		score float64
	}{{"a", 1}, {"b", 2}, {"c", 3}} {
		if err := b.Record(ctx, domain.Participant{Name: p.name}, p.score); err != nil {
			t.Fatalf("Record %s: %v", p.name, err)
		}
	}

	top, err := b.Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 || top[0].Name != "c" || top[1].Name != "b" {
		t.Fatalf("Top(2) = %+v", top)
	}
}

func TestBoardSameNameDifferentStudents(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	if err := b.Record(ctx, domain.Participant{Name: "kim", StudentID: "1"}, 50); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := b.Record(ctx, domain.Participant{Name: "kim", StudentID: "2"}, 60); err != nil {
		t.Fatalf("Record: %v", err)
	}

	top, err := b.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("entries = %d, want 2 distinct members", len(top))
	}
	for _, e := range top {
		if e.Name != "kim" {
			t.Fatalf("display name = %q, want kim", e.Name)
		}
	}
}
