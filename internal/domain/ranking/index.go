// Package ranking implements the ordered score index and the rank
// numbering rules of the leaderboard.
package ranking

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

// Treap-based ordered index.
//
// Ordering: score ASC, then symbol ASC. The descending leaderboard is the
// exact reverse of that order, so equal scores list in reverse lexical
// symbol order when read descending. This is the order of a Redis sorted
// set, which keeps the in-memory and Redis backends interchangeable.
//
// Every node carries its subtree size, which turns positional lookups and
// rank ranges into O(log n) descents.

// Member is a (symbol, score) pair read out of the index.
type Member struct {
	Symbol string
	Score  decimal.Decimal
}

type node struct {
	symbol string
	score  decimal.Decimal
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aScore, aSym) sorts before (bScore, bSym) in
// ascending order.
func less(aScore decimal.Decimal, aSym string, bScore decimal.Decimal, bSym string) bool {
	if c := aScore.Cmp(bScore); c != 0 {
		return c < 0
	}
	return aSym < bSym
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n, fresh *node) *node {
	if n == nil {
		return fresh
	}
	if less(fresh.score, fresh.symbol, n.score, n.symbol) {
		n.left = insert(n.left, fresh)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, fresh)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, symbol string, score decimal.Decimal) *node {
	if n == nil {
		return nil
	}
	if n.symbol == symbol && n.score.Cmp(score) == 0 {
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, symbol, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, symbol, score)
		}
	} else if less(score, symbol, n.score, n.symbol) {
		n.left = deleteNode(n.left, symbol, score)
	} else {
		n.right = deleteNode(n.right, symbol, score)
	}
	fix(n)
	return n
}

// collect appends the nodes whose ascending index lies in [lo, hi].
// offset is the number of nodes that precede n's subtree.
func collect(n *node, lo, hi, offset int, out *[]Member) {
	if n == nil {
		return
	}
	idx := offset + nsize(n.left)
	if lo < idx {
		collect(n.left, lo, hi, offset, out)
	}
	if lo <= idx && idx <= hi {
		*out = append(*out, Member{Symbol: n.symbol, Score: n.score})
	}
	if hi > idx {
		collect(n.right, lo, hi, idx+1, out)
	}
}

// Index maps symbols to scores and keeps them in rank order.
// It is not safe for concurrent use; the owner serializes access.
type Index struct {
	root   *node
	scores map[string]decimal.Decimal
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{scores: make(map[string]decimal.Decimal)}
}

// Len returns the number of symbols in the index.
func (ix *Index) Len() int {
	return len(ix.scores)
}

// Insert sets the score of symbol, overwriting any previous score.
func (ix *Index) Insert(symbol string, score decimal.Decimal) {
	if old, ok := ix.scores[symbol]; ok {
		ix.root = deleteNode(ix.root, symbol, old)
	}
	ix.scores[symbol] = score
	ix.root = insert(ix.root, &node{symbol: symbol, score: score, prio: rand.Uint64(), size: 1})
}

// IncrementScore adds delta to the score of symbol and returns the new
// score. An absent symbol starts from zero.
func (ix *Index) IncrementScore(symbol string, delta decimal.Decimal) decimal.Decimal {
	cur, ok := ix.scores[symbol]
	if !ok {
		cur = decimal.Zero
	}
	next := cur.Add(delta)
	ix.Insert(symbol, next)
	return next
}

// ScoreOf returns the score of symbol.
func (ix *Index) ScoreOf(symbol string) (decimal.Decimal, bool) {
	s, ok := ix.scores[symbol]
	return s, ok
}

// Remove deletes symbol. It reports whether the symbol was present.
func (ix *Index) Remove(symbol string) bool {
	old, ok := ix.scores[symbol]
	if !ok {
		return false
	}
	ix.root = deleteNode(ix.root, symbol, old)
	delete(ix.scores, symbol)
	return true
}

// Position returns the 0-based position of symbol in descending order.
func (ix *Index) Position(symbol string) (int, bool) {
	score, ok := ix.scores[symbol]
	if !ok {
		return 0, false
	}
	asc := 0
	for n := ix.root; n != nil; {
		switch {
		case n.symbol == symbol && n.score.Cmp(score) == 0:
			asc += nsize(n.left)
			return len(ix.scores) - 1 - asc, true
		case less(score, symbol, n.score, n.symbol):
			n = n.left
		default:
			asc += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0, false
}

// RangeByRank returns the members at positions start..stop (inclusive) of
// the descending or ascending order. Negative positions count from the
// end, -1 being the last one. Bounds outside the index are clamped.
func (ix *Index) RangeByRank(start, stop int, descending bool) []Member {
	n := len(ix.scores)
	lo, hi, ok := Bounds(start, stop, n)
	if !ok {
		return []Member{}
	}
	if descending {
		lo, hi = n-1-hi, n-1-lo
	}
	out := make([]Member, 0, hi-lo+1)
	collect(ix.root, lo, hi, 0, &out)
	if descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Bounds normalizes an inclusive position range over n elements the way
// Redis ZRANGE does. ok is false when the range selects nothing.
func Bounds(start, stop, n int) (lo, hi int, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
