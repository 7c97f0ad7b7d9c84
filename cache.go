package fundamentals

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const factKeyPrefix = "facts:"

// Stale entries are kept well past the freshness TTL so the service can
// serve a degraded report when the upstream is down. Hard expiry happens in
// badger at ttl * staleRetention.
const staleRetention = 7

// FactCache is a badger-backed store of ingested fact sets, keyed by ticker.
// Freshness is judged by the caller against RawFactSet.FetchedAt; the store
// only enforces the hard retention limit. A missing entry is a cache miss,
// never an error.
type FactCache struct {
	db  *badger.DB
	ttl time.Duration
	log *zap.Logger
}

// OpenFactCache opens (or creates) the cache at the configured path, or an
// ephemeral in-memory store when cfg.InMemory is set.
func OpenFactCache(cfg CacheConfig, log *zap.Logger) (*FactCache, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := cfg.Path
		if path == "" {
			path = "data/facts"
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open badger")
	}
	return &FactCache{db: db, ttl: cfg.TTL, log: log}, nil
}

// Get returns the cached fact set for a ticker, or (nil, false) on a miss.
func (c *FactCache) Get(ticker string) (*RawFactSet, bool, error) {
	var set RawFactSet
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(factKey(ticker))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &set)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: get %s", ticker)
	}
	return &set, true, nil
}

// Put stores a fact set under its ticker with the cache TTL.
func (c *FactCache) Put(set *RawFactSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", set.Ticker)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(factKey(set.Ticker), data).WithTTL(c.ttl * staleRetention)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return eris.Wrapf(err, "cache: put %s", set.Ticker)
	}
	c.log.Debug("cached fact set",
		zap.String("ticker", set.Ticker),
		zap.Int("concepts", len(set.Facts)))
	return nil
}

// Invalidate removes a ticker's entry. Missing entries are not an error.
func (c *FactCache) Invalidate(ticker string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(factKey(ticker))
	})
	if err != nil {
		return eris.Wrapf(err, "cache: invalidate %s", ticker)
	}
	return nil
}

// Close releases the underlying store.
func (c *FactCache) Close() error {
	return c.db.Close()
}

func factKey(ticker string) []byte {
	return []byte(factKeyPrefix + strings.ToUpper(ticker))
}
