package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/pkg/logger"
	"github.com/okian/capboard/pkg/metrics"
)

const (
	redisBackend      = "redis"
	defaultPrefix     = "capboard"
	defaultMaxRetries = 16

	fieldMarketCap = "marketCap"
	fieldCompany   = "company"
	fieldCountry   = "country"
)

// rangeScript reads a rank slice and the hash of every member in one atomic
// step. It reads hash keys that are not declared in KEYS, so it needs the
// sorted set and the hashes on one node.
//
// KEYS[1] sorted set; ARGV: start, stop, "1" for descending, hash key prefix.
// Reply: total, then symbol, marketCap, company, country per member.
var rangeScript = redis.NewScript(`
local total = redis.call('ZCARD', KEYS[1])
local members
if ARGV[3] == '1' then
  members = redis.call('ZREVRANGE', KEYS[1], ARGV[1], ARGV[2])
else
  members = redis.call('ZRANGE', KEYS[1], ARGV[1], ARGV[2])
end
local out = {total}
for _, m in ipairs(members) do
  local h = redis.call('HMGET', ARGV[4] .. m, 'marketCap', 'company', 'country')
  out[#out+1] = m
  out[#out+1] = h[1] or ''
  out[#out+1] = h[2] or ''
  out[#out+1] = h[3] or ''
end
return out
`)

// lookupScript reads several company hashes atomically.
// KEYS are hash keys. Reply: marketCap, company, country per key; an empty
// marketCap marks a missing company.
var lookupScript = redis.NewScript(`
local out = {}
for _, k in ipairs(KEYS) do
  local h = redis.call('HMGET', k, 'marketCap', 'company', 'country')
  out[#out+1] = h[1] or ''
  out[#out+1] = h[2] or ''
  out[#out+1] = h[3] or ''
end
return out
`)

// positionScript reads the descending rank of one member and its hash.
// KEYS[1] sorted set, KEYS[2] hash; ARGV[1] symbol. Reply: rank, marketCap,
// company, country, or an empty list for an unknown symbol.
var positionScript = redis.NewScript(`
local r = redis.call('ZREVRANK', KEYS[1], ARGV[1])
if not r then
  return {}
end
local h = redis.call('HMGET', KEYS[2], 'marketCap', 'company', 'country')
return {r, h[1] or '', h[2] or '', h[3] or ''}
`)

// RedisStore keeps the leaderboard in Redis: a sorted set <prefix>:leaderboard
// scored by market cap, and a hash <prefix>:company:<symbol> carrying the
// exact decimal market cap and the metadata. The sorted-set score is the
// float64 approximation used only for ordering.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
	logger     logger.Logger
}

// NewRedisStore wraps an existing client. The store owns the client and
// closes it on Close.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:     client,
		prefix:     defaultPrefix,
		maxRetries: defaultMaxRetries,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenRedis connects to the server named by a redis:// or rediss:// URL and
// verifies it answers.
func OpenRedis(ctx context.Context, uri string, opts ...RedisOption) (*RedisStore, error) {
	o, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s := NewRedisStore(redis.NewClient(o), opts...)
	if err := s.Ping(ctx); err != nil {
		_ = s.client.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) boardKey() string { return s.prefix + ":leaderboard" }

func (s *RedisStore) hashPrefix() string { return s.prefix + ":company:" }

func (s *RedisStore) hashKey(symbol string) string { return s.hashPrefix() + symbol }

func unavailable(op string, err error) error {
	metrics.RecordStoreError(redisBackend, op)
	return fmt.Errorf("redis %s: %w: %w", op, ErrBackendUnavailable, err)
}

// Insert writes the sorted-set member and the hash in one MULTI/EXEC.
func (s *RedisStore) Insert(ctx context.Context, c model.Company) error {
	defer observe(redisBackend, "insert", time.Now())

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, s.boardKey(), redis.Z{Score: c.MarketCap.InexactFloat64(), Member: c.Symbol})
		p.HSet(ctx, s.hashKey(c.Symbol),
			fieldMarketCap, c.MarketCap.String(),
			fieldCompany, c.Name,
			fieldCountry, c.Country,
		)
		return nil
	})
	if err != nil {
		return unavailable("insert", err)
	}
	return nil
}

// IncrementScore reads the exact score under WATCH, adds delta in decimal
// arithmetic and writes both keys in one transaction, retrying when another
// writer touched the record in between.
func (s *RedisStore) IncrementScore(ctx context.Context, symbol string, delta decimal.Decimal) (decimal.Decimal, error) {
	defer observe(redisBackend, "increment", time.Now())

	hkey := s.hashKey(symbol)
	var next decimal.Decimal
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, hkey, fieldMarketCap).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("increment %q: %w", symbol, ErrNotFound)
		}
		if err != nil {
			return err
		}
		cur, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("decode market cap of %q: %w", symbol, err)
		}
		next = cur.Add(delta)
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, hkey, fieldMarketCap, next.String())
			p.ZAdd(ctx, s.boardKey(), redis.Z{Score: next.InexactFloat64(), Member: symbol})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, hkey)
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, redis.TxFailedErr):
			s.logger.Debug(ctx, "increment conflict, retrying",
				logger.String("symbol", symbol), logger.Int("attempt", attempt+1))
			continue
		case errors.Is(err, ErrNotFound):
			return decimal.Zero, err
		default:
			return decimal.Zero, unavailable("increment", err)
		}
	}
	return decimal.Zero, unavailable("increment", fmt.Errorf("%q still contended after %d attempts", symbol, s.maxRetries))
}

// Remove deletes the sorted-set member and the hash in one MULTI/EXEC.
func (s *RedisStore) Remove(ctx context.Context, symbol string) error {
	defer observe(redisBackend, "remove", time.Now())

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, s.boardKey(), symbol)
		p.Del(ctx, s.hashKey(symbol))
		return nil
	})
	if err != nil {
		return unavailable("remove", err)
	}
	return nil
}

// Range implements Store.Range with one Lua call. Redis applies the same
// inclusive, negative-index and clamping rules as the memory index.
func (s *RedisStore) Range(ctx context.Context, start, stop int, descending bool) (Page, error) {
	defer observe(redisBackend, "range", time.Now())

	desc := "0"
	if descending {
		desc = "1"
	}
	res, err := rangeScript.Run(ctx, s.client, []string{s.boardKey()}, start, stop, desc, s.hashPrefix()).Slice()
	if err != nil {
		return Page{}, unavailable("range", err)
	}
	if len(res) == 0 {
		return Page{}, unavailable("range", errors.New("empty script reply"))
	}
	total, ok := res[0].(int64)
	if !ok {
		return Page{}, unavailable("range", fmt.Errorf("unexpected total %T", res[0]))
	}

	rows := res[1:]
	out := make([]model.Company, 0, len(rows)/4)
	for i := 0; i+3 < len(rows); i += 4 {
		c, err := decodeCompany(str(rows[i]), str(rows[i+1]), str(rows[i+2]), str(rows[i+3]))
		if err != nil {
			return Page{}, err
		}
		out = append(out, c)
	}
	return Page{Companies: out, Total: int(total)}, nil
}

// Lookup implements Store.Lookup with one Lua call.
func (s *RedisStore) Lookup(ctx context.Context, symbols []string) (map[string]model.Company, error) {
	defer observe(redisBackend, "lookup", time.Now())

	out := make(map[string]model.Company, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = s.hashKey(sym)
	}
	res, err := lookupScript.Run(ctx, s.client, keys).Slice()
	if err != nil {
		return nil, unavailable("lookup", err)
	}
	for i, sym := range symbols {
		if 3*i+2 >= len(res) {
			break
		}
		mc := str(res[3*i])
		if mc == "" {
			continue
		}
		c, err := decodeCompany(sym, mc, str(res[3*i+1]), str(res[3*i+2]))
		if err != nil {
			return nil, err
		}
		out[sym] = c
	}
	return out, nil
}

// Position implements Store.Position with one Lua call.
func (s *RedisStore) Position(ctx context.Context, symbol string) (model.Company, int, error) {
	defer observe(redisBackend, "position", time.Now())

	res, err := positionScript.Run(ctx, s.client, []string{s.boardKey(), s.hashKey(symbol)}, symbol).Slice()
	if err != nil {
		return model.Company{}, 0, unavailable("position", err)
	}
	if len(res) < 4 {
		return model.Company{}, 0, fmt.Errorf("position %q: %w", symbol, ErrNotFound)
	}
	pos, ok := res[0].(int64)
	if !ok {
		return model.Company{}, 0, unavailable("position", fmt.Errorf("unexpected rank %T", res[0]))
	}
	c, err := decodeCompany(symbol, str(res[1]), str(res[2]), str(res[3]))
	if err != nil {
		return model.Company{}, 0, err
	}
	return c, int(pos), nil
}

// Count returns the sorted-set cardinality.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.boardKey()).Result()
	if err != nil {
		return 0, unavailable("count", err)
	}
	return int(n), nil
}

// Ping sends PING to the server.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeCompany(symbol, marketCap, name, country string) (model.Company, error) {
	mc, err := decimal.NewFromString(marketCap)
	if err != nil {
		return model.Company{}, fmt.Errorf("decode market cap of %q: %w", symbol, err)
	}
	return model.Company{Symbol: symbol, MarketCap: mc, Name: name, Country: country}, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
