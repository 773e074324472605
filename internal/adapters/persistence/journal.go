// Package persistence keeps a durable copy of the memory leaderboard in a
// Pebble database. Each company is one CBOR-encoded record under "c/<symbol>".
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
)

// Sentinel kinds for journal errors.
var (
	ErrCorruptRecord = errors.New("corrupt journal record")
)

const keyPrefix = "c/"

// record is the on-disk shape of a company. The market cap is stored as its
// exact decimal string.
type record struct {
	Symbol    string `cbor:"s"`
	MarketCap string `cbor:"m"`
	Name      string `cbor:"n,omitempty"`
	Country   string `cbor:"c,omitempty"`
}

func encodeRecord(c model.Company) ([]byte, error) {
	return cbor.Marshal(record{
		Symbol:    c.Symbol,
		MarketCap: c.MarketCap.String(),
		Name:      c.Name,
		Country:   c.Country,
	})
}

func decodeRecord(b []byte) (model.Company, error) {
	var r record
	if err := cbor.Unmarshal(b, &r); err != nil {
		return model.Company{}, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	mc, err := decimal.NewFromString(r.MarketCap)
	if err != nil {
		return model.Company{}, fmt.Errorf("%w: market cap of %q: %w", ErrCorruptRecord, r.Symbol, err)
	}
	return model.Company{Symbol: r.Symbol, MarketCap: mc, Name: r.Name, Country: r.Country}, nil
}

func keyFor(symbol string) []byte {
	return []byte(keyPrefix + symbol)
}

// Journal is a Pebble-backed company journal.
type Journal struct {
	db *pebble.DB
}

// Open opens or creates the journal in dir.
func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Save applies puts and deletes in one synced batch.
func (j *Journal) Save(ctx context.Context, puts []model.Company, deletes []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := j.db.NewBatch()
	defer b.Close()

	for _, c := range puts {
		val, err := encodeRecord(c)
		if err != nil {
			return fmt.Errorf("encode %q: %w", c.Symbol, err)
		}
		if err := b.Set(keyFor(c.Symbol), val, nil); err != nil {
			return err
		}
	}
	for _, sym := range deletes {
		if err := b.Delete(keyFor(sym), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// Load returns every saved company in symbol order.
func (j *Journal) Load(ctx context.Context) ([]model.Company, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte("c0"), // '0' follows '/'
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []model.Company
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := decodeRecord(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", iter.Key(), err)
		}
		out = append(out, c)
	}
	return out, iter.Error()
}
