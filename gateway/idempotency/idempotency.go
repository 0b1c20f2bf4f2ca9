// Package idempotency implements the write-once (key, subject) response
// cache of spec.md §3/§4.2: a second concurrent attempt with the same key
// observes the first write's result; entries expire after 24 hours.
package idempotency

import (
	"time"

	"github.com/yanniks/health-companion-prototype/internal/filestore"
	"github.com/yanniks/health-companion-prototype/internal/logging"
)

// TTL is the idempotency entry lifetime of spec.md §3.
const TTL = 24 * time.Hour

// entry binds {caller-supplied key, caller subject, cached canonical
// response JSON, creation timestamp}.
type entry struct {
	CompositeKey   string    `json:"compositeKey"`
	IdempotencyKey string    `json:"idempotencyKey"`
	Subject        string    `json:"subject"`
	ResponseJSON   []byte    `json:"responseJson"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (e entry) Key() string         { return e.CompositeKey }
func (e entry) ExpiresAt() time.Time { return e.CreatedAt.Add(TTL) }

// Cache is the (key, subject)-keyed idempotent-response store.
type Cache struct {
	store *filestore.Store[entry]
	now   func() time.Time
}

// Open opens the idempotency store at path.
func Open(path string, logger logging.Logger) (*Cache, error) {
	store, err := filestore.Open[entry](path, logger)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, now: time.Now}, nil
}

func compositeKey(key, subject string) string { return subject + "\x00" + key }

// Lookup returns the cached response for (key, subject), if any.
func (c *Cache) Lookup(key, subject string) (response []byte, found bool) {
	e, err := c.store.Get(compositeKey(key, subject))
	if err != nil {
		return nil, false
	}
	return e.ResponseJSON, true
}

// StoreIfAbsent writes response under (key, subject) unless an entry
// already exists, in which case the existing response is returned instead
// — the write-once guarantee of spec.md §5.
func (c *Cache) StoreIfAbsent(key, subject string, response []byte) (stored []byte, wasAlreadyPresent bool, err error) {
	ck := compositeKey(key, subject)
	var winner []byte
	var present bool
	updateErr := c.store.Update(ck, func(item entry, found bool) (entry, bool) {
		if found {
			winner = item.ResponseJSON
			present = true
			return item, true
		}
		winner = response
		return entry{
			CompositeKey:   ck,
			IdempotencyKey: key,
			Subject:        subject,
			ResponseJSON:   response,
			CreatedAt:      c.now(),
		}, true
	})
	if updateErr != nil {
		return nil, false, updateErr
	}
	return winner, present, nil
}

// Sweep drops expired entries.
func (c *Cache) Sweep() int { return c.store.Sweep() }
