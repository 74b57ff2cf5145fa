// Package upstream provides the resilient fetch layer: an ordered registry
// of data providers with circuit-breaker health tracking, a sequential
// failover fetcher, and a short-TTL response cache consulted before any
// provider is contacted.
package upstream

import (
	"sort"
	"sync"
	"time"
)

// Source is one upstream data provider. Health fields are mutated only by
// the fetcher's outcome handling, always under the source's own mutex.
type Source struct {
	Name     string
	Endpoint string
	// Priority orders sources within a health bucket; lower is preferred.
	Priority int

	mu                  sync.Mutex
	healthy             bool
	consecutiveFailures int
	lastStateChange     time.Time
}

// NewSource creates a healthy source.
func NewSource(name, endpoint string, priority int) *Source {
	return &Source{
		Name:     name,
		Endpoint: endpoint,
		Priority: priority,
		healthy:  true,
	}
}

// Healthy reports the source's current breaker state.
func (s *Source) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

// ConsecutiveFailures returns the current failure streak.
func (s *Source) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

// Registry holds the configured sources and the breaker policy. The source
// list is fixed at construction; only per-source health state changes.
type Registry struct {
	sources          []*Source
	breakerThreshold int
	breakerTimeout   time.Duration
}

// NewRegistry creates a registry with the given circuit-breaker policy.
func NewRegistry(sources []*Source, breakerThreshold int, breakerTimeout time.Duration) *Registry {
	return &Registry{
		sources:          sources,
		breakerThreshold: breakerThreshold,
		breakerTimeout:   breakerTimeout,
	}
}

// Ordered returns the sources in attempt order: healthy before unhealthy,
// then ascending priority. An unhealthy source whose breaker timeout has
// elapsed is optimistically reinstated first (half-open retry by elapsed
// time, no probe request).
func (r *Registry) Ordered(now time.Time) []*Source {
	for _, s := range r.sources {
		s.reinstateIfElapsed(r.breakerTimeout, now)
	}

	ordered := make([]*Source, len(r.sources))
	copy(ordered, r.sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		hi, hj := ordered[i].Healthy(), ordered[j].Healthy()
		if hi != hj {
			return hi
		}
		return ordered[i].Priority < ordered[j].Priority
	})
	return ordered
}

// RecordSuccess closes the breaker for the source.
func (r *Registry) RecordSuccess(s *Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	if !s.healthy {
		s.healthy = true
		s.lastStateChange = time.Now()
	}
}

// RecordFailure increments the source's failure streak and opens the breaker
// at the configured threshold. A failure while already at or past the
// threshold (a failed half-open attempt) restarts the open window.
func (r *Registry) RecordFailure(s *Source, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= r.breakerThreshold {
		s.healthy = false
		s.lastStateChange = now
	}
}

// reinstateIfElapsed optimistically marks an unhealthy source healthy once
// the breaker timeout has elapsed since it was opened. The failure streak is
// kept so a single subsequent failure re-opens the breaker immediately.
func (s *Source) reinstateIfElapsed(timeout time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.healthy {
		return
	}
	if now.Sub(s.lastStateChange) >= timeout {
		s.healthy = true
		s.lastStateChange = now
	}
}

// Status is a point-in-time snapshot of one source, for health reporting.
type Status struct {
	Name                string `json:"name"`
	Priority            int    `json:"priority"`
	Healthy             bool   `json:"healthy"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}

// Status snapshots all sources.
func (r *Registry) Status() []Status {
	statuses := make([]Status, 0, len(r.sources))
	for _, s := range r.sources {
		s.mu.Lock()
		statuses = append(statuses, Status{
			Name:                s.Name,
			Priority:            s.Priority,
			Healthy:             s.healthy,
			ConsecutiveFailures: s.consecutiveFailures,
		})
		s.mu.Unlock()
	}
	return statuses
}
