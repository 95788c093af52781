// SPDX-License-Identifier: MIT

package preflight

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	xglog "github.com/Seongyun-Jeong/chromium-etc-sub005/internal/log"
)

// BadgerCache persists preflight results across daemon restarts. Badger's
// native TTL handles expiry; the result's own Expiry field is still the
// authority on read so clock skew cannot resurrect a stale grant.
type BadgerCache struct {
	db     *badger.DB
	logger zerolog.Logger
	now    func() time.Time
}

// OpenBadgerCache opens (or creates) the store at path.
func OpenBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerCache{
		db:     db,
		logger: xglog.WithComponent("preflight-store"),
		now:    time.Now,
	}, nil
}

// Close releases the underlying database.
func (c *BadgerCache) Close() error { return c.db.Close() }

func (c *BadgerCache) Get(key Key) (*Result, bool) {
	var result Result
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key.String()))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("badger get failed")
		return nil, false
	}
	if result.Expired(c.now()) {
		return nil, false
	}
	return &result, true
}

func (c *BadgerCache) Put(key Key, result *Result) {
	ttl := time.Until(result.Expiry)
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn().Err(err).Msg("marshal preflight result failed")
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key.String()), raw).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("badger set failed")
	}
}

func (c *BadgerCache) InvalidatePrivateNetwork(key Key) {
	key.PrivateNetwork = true
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key.String()))
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("badger delete failed")
	}
}

func (c *BadgerCache) Clear() {
	if err := c.db.DropAll(); err != nil {
		c.logger.Warn().Err(err).Msg("badger drop failed")
	}
}
