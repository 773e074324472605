package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
)

// runContract exercises the behavior every Store backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("EmptyRange", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		page, err := s.Range(ctx, 0, -1, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Companies) != 0 || page.Total != 0 {
			t.Errorf("expected empty page, got %+v", page)
		}
	})

	t.Run("Scenario", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		mustInsert(t, s, "aaa", "100", "X")
		mustInsert(t, s, "bbb", "200", "Y")
		mustInsert(t, s, "ccc", "50", "Z")

		assertSymbols(t, mustRange(t, s, 0, -1, true), "bbb", "aaa", "ccc")
		assertSymbols(t, mustRange(t, s, 0, 1, false), "ccc", "aaa")

		next, err := s.IncrementScore(ctx, "ccc", decimal.NewFromInt(200))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !next.Equal(decimal.NewFromInt(250)) {
			t.Errorf("expected 250, got %s", next)
		}
		page := mustRange(t, s, 0, -1, true)
		assertSymbols(t, page, "ccc", "bbb", "aaa")
		if page.Companies[0].Name != "Z" {
			t.Errorf("metadata did not follow the score: %+v", page.Companies[0])
		}
	})

	t.Run("TieBreakMatchesSortedSet", func(t *testing.T) {
		s := newStore(t)
		mustInsert(t, s, "a", "10", "")
		mustInsert(t, s, "b", "10", "")
		mustInsert(t, s, "c", "10", "")

		assertSymbols(t, mustRange(t, s, 0, -1, false), "a", "b", "c")
		assertSymbols(t, mustRange(t, s, 0, -1, true), "c", "b", "a")
	})

	t.Run("Clamping", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			mustInsert(t, s, fmt.Sprintf("s%d", i), fmt.Sprint(i), "")
		}

		assertSymbols(t, mustRange(t, s, -2, -1, true), "s1", "s0")
		assertSymbols(t, mustRange(t, s, 3, 100, true), "s1", "s0")
		assertSymbols(t, mustRange(t, s, -100, 0, true), "s4")
		assertSymbols(t, mustRange(t, s, 4, 2, true))
		assertSymbols(t, mustRange(t, s, 10, 20, true))
		if page := mustRange(t, s, 10, 20, true); page.Total != 5 {
			t.Errorf("expected total 5, got %d", page.Total)
		}
	})

	t.Run("OverwriteAndIdempotentInsert", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		mustInsert(t, s, "aaa", "100", "X")
		mustInsert(t, s, "aaa", "100", "X")
		mustInsert(t, s, "bbb", "150", "Y")

		if n, _ := s.Count(ctx); n != 2 {
			t.Fatalf("expected 2 companies, got %d", n)
		}
		mustInsert(t, s, "aaa", "300", "X2")
		page := mustRange(t, s, 0, -1, true)
		assertSymbols(t, page, "aaa", "bbb")
		if page.Companies[0].Name != "X2" {
			t.Errorf("expected overwritten metadata, got %q", page.Companies[0].Name)
		}
	})

	t.Run("IncrementUnknown", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.IncrementScore(ctx, "nope", decimal.NewFromInt(1))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if n, _ := s.Count(ctx); n != 0 {
			t.Errorf("increment of unknown symbol created a record")
		}
	})

	t.Run("ExactRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		mustInsert(t, s, "aaa", "2803409657856.123456789", "")

		d := decimal.RequireFromString("0.1")
		for i := 0; i < 10; i++ {
			if _, err := s.IncrementScore(ctx, "aaa", d); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		for i := 0; i < 10; i++ {
			if _, err := s.IncrementScore(ctx, "aaa", d.Neg()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		got, err := s.Lookup(ctx, []string{"aaa"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got["aaa"].MarketCap.String() != "2803409657856.123456789" {
			t.Errorf("drift after round trip: %s", got["aaa"].MarketCap)
		}
	})

	t.Run("LookupOmitsMissing", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		mustInsert(t, s, "aaa", "1", "X")

		got, err := s.Lookup(ctx, []string{"zzz", "aaa"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 record, got %d", len(got))
		}
		if got["aaa"].Name != "X" || got["aaa"].Country != "US" {
			t.Errorf("unexpected record %+v", got["aaa"])
		}
	})

	t.Run("RemoveIdempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		mustInsert(t, s, "aaa", "1", "")

		if err := s.Remove(ctx, "aaa"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.Remove(ctx, "aaa"); err != nil {
			t.Fatalf("second remove failed: %v", err)
		}
		if n, _ := s.Count(ctx); n != 0 {
			t.Errorf("expected empty store, got %d", n)
		}
		got, _ := s.Lookup(ctx, []string{"aaa"})
		if len(got) != 0 {
			t.Errorf("removed record still visible: %+v", got)
		}
	})

	t.Run("Position", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		mustInsert(t, s, "aaa", "100", "X")
		mustInsert(t, s, "bbb", "200", "Y")
		mustInsert(t, s, "ccc", "50", "Z")
		mustInsert(t, s, "ddd", "100", "W")

		want := map[string]int{"bbb": 0, "ddd": 1, "aaa": 2, "ccc": 3}
		for sym, pos := range want {
			c, got, err := s.Position(ctx, sym)
			if err != nil {
				t.Fatalf("position %s: %v", sym, err)
			}
			if got != pos {
				t.Errorf("%s: expected position %d, got %d", sym, pos, got)
			}
			if c.Symbol != sym || c.Country != "US" {
				t.Errorf("%s: unexpected record %+v", sym, c)
			}
		}
		if _, _, err := s.Position(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(context.Background()); err != nil {
			t.Errorf("unexpected ping error: %v", err)
		}
	})
}

func mustInsert(t *testing.T, s Store, symbol, marketCap, name string) {
	t.Helper()
	c := model.Company{
		Symbol:    symbol,
		MarketCap: decimal.RequireFromString(marketCap),
		Name:      name,
		Country:   "US",
	}
	if err := s.Insert(context.Background(), c); err != nil {
		t.Fatalf("insert %s: %v", symbol, err)
	}
}

func mustRange(t *testing.T, s Store, start, stop int, desc bool) Page {
	t.Helper()
	page, err := s.Range(context.Background(), start, stop, desc)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	return page
}

func assertSymbols(t *testing.T, page Page, want ...string) {
	t.Helper()
	if len(page.Companies) != len(want) {
		t.Fatalf("expected %v, got %d companies: %+v", want, len(page.Companies), page.Companies)
	}
	for i, c := range page.Companies {
		if c.Symbol != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], c.Symbol)
		}
	}
}
