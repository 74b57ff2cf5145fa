// Package gate decides whether a request is admitted: it decodes the payment
// proof header, consults the proof cache, and drives ledger verification on
// cache misses.
package gate

import (
	"sync"
	"time"
)

// Entry records an accepted payment proof. An entry exists only for proofs
// that passed ledger verification at least once.
type Entry struct {
	ProofID        string
	VerifiedAmount uint64
	FirstSeenAt    time.Time
	ExpiresAt      time.Time
	ReuseCount     int
}

// ProofCache is an in-memory record of accepted payment proofs keyed by
// transaction signature. Expired entries are evicted lazily on lookup and by
// a periodic background sweep.
type ProofCache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	window  time.Duration
	now     func() time.Time

	sweepOnce sync.Once
	stop      chan struct{}
}

// NewProofCache creates a proof cache whose entries expire after the given
// access window.
func NewProofCache(window time.Duration) *ProofCache {
	return &ProofCache{
		entries: make(map[string]*Entry),
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Reuse returns a copy of the live entry for proofID after incrementing its
// reuse count. Expired entries are removed and reported as absent, so an
// expired-but-known proof behaves exactly like an unknown one.
func (c *ProofCache) Reuse(proofID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[proofID]
	if !exists {
		return Entry{}, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		delete(c.entries, proofID)
		return Entry{}, false
	}

	entry.ReuseCount++
	return *entry, true
}

// Put records a freshly verified proof and returns a copy of its entry.
// If a live entry already exists (two concurrent cold verifications of the
// same proof), the existing entry is reused rather than overwritten, so
// expires_at stays stable across concurrent admits.
func (c *ProofCache) Put(proofID string, verifiedAmount uint64) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, exists := c.entries[proofID]; exists && now.Before(entry.ExpiresAt) {
		entry.ReuseCount++
		return *entry
	}

	entry := &Entry{
		ProofID:        proofID,
		VerifiedAmount: verifiedAmount,
		FirstSeenAt:    now,
		ExpiresAt:      now.Add(c.window),
	}
	c.entries[proofID] = entry
	return *entry
}

// Len returns the number of entries currently held, including not yet swept
// expired ones.
func (c *ProofCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper launches the background sweep that bounds memory by purging
// expired entries. It is idempotent; the sweeper stops when Stop is called.
func (c *ProofCache) StartSweeper(interval time.Duration) {
	c.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					c.sweep()
				case <-c.stop:
					return
				}
			}
		}()
	})
}

// Stop terminates the background sweeper.
func (c *ProofCache) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *ProofCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for proofID, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, proofID)
		}
	}
}
