package ranking

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func symbols(ms []Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Symbol
	}
	return out
}

// oracle is the re-sort reference the treap is checked against.
type oracle map[string]decimal.Decimal

func (o oracle) descending() []Member {
	out := make([]Member, 0, len(o))
	for s, v := range o {
		out = append(out, Member{Symbol: s, Score: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return less(out[j].Score, out[j].Symbol, out[i].Score, out[i].Symbol)
	})
	return out
}

func checkInvariants(t *testing.T, n *node) int {
	t.Helper()
	if n == nil {
		return 0
	}
	if n.left != nil {
		require.True(t, less(n.left.score, n.left.symbol, n.score, n.symbol), "bst order broken at %s", n.symbol)
		require.LessOrEqual(t, n.left.prio, n.prio, "heap order broken at %s", n.symbol)
	}
	if n.right != nil {
		require.True(t, less(n.score, n.symbol, n.right.score, n.right.symbol), "bst order broken at %s", n.symbol)
		require.LessOrEqual(t, n.right.prio, n.prio, "heap order broken at %s", n.symbol)
	}
	size := 1 + checkInvariants(t, n.left) + checkInvariants(t, n.right)
	require.Equal(t, size, n.size, "stale size at %s", n.symbol)
	return size
}

func TestIndex_Empty(t *testing.T) {
	ix := NewIndex()

	assert.Equal(t, 0, ix.Len())
	assert.Empty(t, ix.RangeByRank(0, -1, true))
	assert.Empty(t, ix.RangeByRank(0, 9, false))
	_, ok := ix.ScoreOf("aaa")
	assert.False(t, ok)
	_, ok = ix.Position("aaa")
	assert.False(t, ok)
	assert.False(t, ix.Remove("aaa"))
}

func TestIndex_ScenarioOrdering(t *testing.T) {
	ix := NewIndex()
	ix.Insert("aaa", d("100"))
	ix.Insert("bbb", d("200"))
	ix.Insert("ccc", d("50"))

	assert.Equal(t, []string{"bbb", "aaa", "ccc"}, symbols(ix.RangeByRank(0, -1, true)))
	assert.Equal(t, []string{"ccc", "aaa"}, symbols(ix.RangeByRank(0, 1, false)))

	got := ix.IncrementScore("ccc", d("200"))
	assert.True(t, got.Equal(d("250")))
	assert.Equal(t, []string{"ccc", "bbb", "aaa"}, symbols(ix.RangeByRank(0, -1, true)))

	pos, ok := ix.Position("aaa")
	require.True(t, ok)
	assert.Equal(t, 2, pos)
}

func TestIndex_InsertOverwrites(t *testing.T) {
	ix := NewIndex()
	ix.Insert("aaa", d("10"))
	ix.Insert("aaa", d("10"))
	assert.Equal(t, 1, ix.Len())

	ix.Insert("aaa", d("-3.5"))
	score, ok := ix.ScoreOf("aaa")
	require.True(t, ok)
	assert.True(t, score.Equal(d("-3.5")))
	assert.Len(t, ix.RangeByRank(0, -1, true), 1)
	checkInvariants(t, ix.root)
}

func TestIndex_IncrementAbsentStartsAtZero(t *testing.T) {
	ix := NewIndex()
	got := ix.IncrementScore("new", d("42.5"))
	assert.True(t, got.Equal(d("42.5")))
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_IncrementRoundTripIsExact(t *testing.T) {
	ix := NewIndex()
	start := d("2913283890000.1")
	delta := d("0.000000000000000000123")
	ix.Insert("aapl", start)

	ix.IncrementScore("aapl", delta)
	ix.IncrementScore("aapl", delta.Neg())

	score, _ := ix.ScoreOf("aapl")
	assert.True(t, score.Equal(start), "got %s", score)
}

func TestIndex_TieBreak(t *testing.T) {
	ix := NewIndex()
	for _, s := range []string{"bbb", "aaa", "ccc"} {
		ix.Insert(s, d("7"))
	}

	// Ascending ties by symbol, descending is the exact reverse.
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, symbols(ix.RangeByRank(0, -1, false)))
	assert.Equal(t, []string{"ccc", "bbb", "aaa"}, symbols(ix.RangeByRank(0, -1, true)))

	// Repeated queries on an unchanged index agree.
	for i := 0; i < 5; i++ {
		assert.Equal(t, []string{"ccc", "bbb", "aaa"}, symbols(ix.RangeByRank(0, -1, true)))
	}
}

func TestIndex_RangeClamping(t *testing.T) {
	ix := NewIndex()
	for i := 0; i < 5; i++ {
		ix.Insert(fmt.Sprintf("s%d", i), decimal.NewFromInt(int64(i)))
	}

	cases := []struct {
		name       string
		start      int
		stop       int
		descending bool
		want       []string
	}{
		{"all desc", 0, -1, true, []string{"s4", "s3", "s2", "s1", "s0"}},
		{"stop beyond end", 3, 100, true, []string{"s1", "s0"}},
		{"start before begin", -100, 1, true, []string{"s4", "s3"}},
		{"negative window", -2, -1, false, []string{"s3", "s4"}},
		{"start after stop", 3, 1, true, []string{}},
		{"start beyond end", 10, 20, false, []string{}},
		{"single", 2, 2, false, []string{"s2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, symbols(ix.RangeByRank(tc.start, tc.stop, tc.descending)))
		})
	}
}

func TestIndex_RemoveIsIdempotent(t *testing.T) {
	ix := NewIndex()
	ix.Insert("aaa", d("1"))
	ix.Insert("bbb", d("2"))

	assert.True(t, ix.Remove("aaa"))
	assert.False(t, ix.Remove("aaa"))
	assert.Equal(t, []string{"bbb"}, symbols(ix.RangeByRank(0, -1, true)))
	checkInvariants(t, ix.root)
}

func TestIndex_RandomOperationsMatchOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ix := NewIndex()
	ref := oracle{}

	for step := 0; step < 3000; step++ {
		sym := fmt.Sprintf("s%02d", rng.Intn(60))
		// Small score domain so ties are frequent.
		score := decimal.NewFromInt(int64(rng.Intn(20) - 5))
		switch op := rng.Intn(10); {
		case op < 4:
			ix.Insert(sym, score)
			ref[sym] = score
		case op < 8:
			delta := decimal.New(int64(rng.Intn(2000)-1000), -2)
			got := ix.IncrementScore(sym, delta)
			ref[sym] = ref[sym].Add(delta)
			require.True(t, got.Equal(ref[sym]))
		default:
			ix.Remove(sym)
			delete(ref, sym)
		}

		if step%50 != 0 {
			continue
		}
		checkInvariants(t, ix.root)
		want := ref.descending()
		got := ix.RangeByRank(0, -1, true)
		require.Equal(t, symbols(want), symbols(got), "step %d", step)
		for i := 1; i < len(got); i++ {
			require.True(t, got[i-1].Score.GreaterThanOrEqual(got[i].Score), "not non-increasing at %d", i)
		}
		for i, m := range want {
			pos, ok := ix.Position(m.Symbol)
			require.True(t, ok)
			require.Equal(t, i, pos)
		}
		if n := len(want); n > 0 {
			lo, hi := rng.Intn(n), rng.Intn(n)
			if lo > hi {
				lo, hi = hi, lo
			}
			require.Equal(t, symbols(want[lo:hi+1]), symbols(ix.RangeByRank(lo, hi, true)))
		}
	}
}

func TestBounds(t *testing.T) {
	_, _, ok := Bounds(0, -1, 0)
	assert.False(t, ok)

	lo, hi, ok := Bounds(0, 9, 3)
	assert.True(t, ok)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 2, hi)

	lo, hi, ok = Bounds(-1, -1, 3)
	assert.True(t, ok)
	assert.Equal(t, 2, lo)
	assert.Equal(t, 2, hi)
}

func BenchmarkIndex_IncrementScore(b *testing.B) {
	ix := NewIndex()
	for i := 0; i < 100_000; i++ {
		ix.Insert(fmt.Sprintf("s%06d", i), decimal.NewFromInt(int64(i)))
	}
	delta := decimal.NewFromInt(3)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.IncrementScore(fmt.Sprintf("s%06d", i%100_000), delta)
	}
}

func BenchmarkIndex_TopTen(b *testing.B) {
	ix := NewIndex()
	for i := 0; i < 100_000; i++ {
		ix.Insert(fmt.Sprintf("s%06d", i), decimal.NewFromInt(int64(i)))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ix.RangeByRank(0, 9, true)
	}
}
