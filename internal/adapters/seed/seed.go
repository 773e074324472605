// Package seed reads the initial company list: a JSON array of
// {symbol, marketCap, company, country}.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/types"
)

// ErrInvalidRecord marks a seed row that could not be used.
var ErrInvalidRecord = errors.New("invalid seed record")

// Load decodes r. Valid rows are returned even when some rows are bad; the
// error then lists every bad row. A later row for the same symbol replaces
// an earlier one, as an insert would.
func Load(r io.Reader) ([]model.Company, error) {
	var rows []json.RawMessage
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode seed array: %w", err)
	}

	var result *multierror.Error
	out := make([]model.Company, 0, len(rows))
	pos := make(map[string]int, len(rows))
	for i, raw := range rows {
		var rec types.CompanyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: row %d: %w", ErrInvalidRecord, i, err))
			continue
		}
		c, err := rec.ToCompany()
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: row %d: %w", ErrInvalidRecord, i, err))
			continue
		}
		if at, dup := pos[c.Symbol]; dup {
			out[at] = c
			continue
		}
		pos[c.Symbol] = len(out)
		out = append(out, c)
	}
	return out, result.ErrorOrNil()
}

// LoadFile opens path and calls Load.
func LoadFile(path string) ([]model.Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Load(f)
}
