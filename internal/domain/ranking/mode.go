package ranking

import (
	"fmt"
	"strings"
)

// Mode selects which slice of the leaderboard a ranked query returns.
type Mode string

// Supported modes.
const (
	ModeAll    Mode = "all"
	ModeTop    Mode = "top"
	ModeBottom Mode = "bottom"
)

// ParseMode parses a mode name. The legacy names top10 and bottom10 are
// accepted as aliases of top and bottom.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return ModeAll, nil
	case "top", "top10":
		return ModeTop, nil
	case "bottom", "bottom10":
		return ModeBottom, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Window is the position range a mode reads and its rank numbering.
type Window struct {
	Start      int
	Stop       int
	Descending bool
}

// Window returns the read window of m for a TOP/BOTTOM size of limit.
func (m Mode) Window(limit int) (Window, error) {
	switch m {
	case ModeAll:
		return Window{Start: 0, Stop: -1, Descending: true}, nil
	case ModeTop, ModeBottom:
		if limit < 1 {
			return Window{}, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
		}
		return Window{Start: 0, Stop: limit - 1, Descending: m == ModeTop}, nil
	}
	return Window{}, fmt.Errorf("%w: %q", ErrInvalidMode, string(m))
}

// RankAt returns the rank of the i-th element of a page read through w
// from a leaderboard of total entities.
//
// Descending pages count up from the first position. Ascending pages
// count down from total, so the lowest score gets rank total: "bottom N"
// reports global positions rather than 1..N.
func (w Window) RankAt(i, total int) int {
	if w.Descending {
		return w.Start + i + 1
	}
	return total - w.Start - i
}
