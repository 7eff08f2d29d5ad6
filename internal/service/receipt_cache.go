package service

import (
	"context"
	"sync"
	"time"

	"github.com/subwire/agentpay/internal/model"
)

// receiptCache makes create idempotent across retries: a re-submitted
// approval with the same signature returns the original receipt instead of
// relaying a second transaction. In-flight tracking collapses concurrent
// duplicates onto one relay round trip.
type receiptCache struct {
	mu       sync.Mutex
	results  map[string]*model.TxReceipt
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

type cacheStatus int

const (
	cacheMiss cacheStatus = iota
	cacheHit
	cacheInFlight
)

func newReceiptCache(ttl time.Duration) *receiptCache {
	return &receiptCache{
		results:  make(map[string]*model.TxReceipt),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// checkAndMark atomically looks up key and, on a miss, marks it in-flight.
// The returned channel is the done signal: owned by the caller on a miss,
// awaited by the caller when another request holds the key.
func (c *receiptCache) checkAndMark(key string) (cacheStatus, *model.TxReceipt, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, ok := c.expiry[key]; ok {
		if time.Now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return cacheHit, result, nil
			}
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if done, ok := c.inFlight[key]; ok {
		return cacheInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return cacheMiss, nil, done
}

// wait blocks until the in-flight holder finishes, then returns its cached
// result, or nil if the holder failed without caching one.
func (c *receiptCache) wait(ctx context.Context, key string, done chan struct{}) (*model.TxReceipt, error) {
	select {
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if expiry, ok := c.expiry[key]; ok && time.Now().Before(expiry) {
			return c.results[key], nil
		}
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete caches the receipt and releases waiters.
func (c *receiptCache) complete(key string, receipt *model.TxReceipt, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = receipt
	c.expiry[key] = time.Now().Add(c.ttl)
	delete(c.inFlight, key)
	close(done)
}

// release drops the in-flight mark without caching, letting the next retry
// run fresh.
func (c *receiptCache) release(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}
