package scheduling

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultServiceCacheTTL bounds staleness of the service catalog.
const DefaultServiceCacheTTL = 5 * time.Minute

// ServiceLister is the slice of Gateway the cache needs.
type ServiceLister interface {
	ListServices(ctx context.Context) ([]Service, error)
}

// ServiceCache is a read-mostly, TTL-bounded snapshot of the service
// catalog. A refetch that fails falls back to the last good snapshot, so a
// flaky catalog endpoint degrades to staleness instead of failure. Stale
// reads inside the TTL window are accepted; last writer wins.
type ServiceCache struct {
	source ServiceLister
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	services  []Service
	fetchedAt time.Time
}

// NewServiceCache builds a cache over the given catalog source. A
// non-positive ttl uses the default.
func NewServiceCache(source ServiceLister, ttl time.Duration) *ServiceCache {
	if ttl <= 0 {
		ttl = DefaultServiceCacheTTL
	}
	return &ServiceCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the cache clock; for tests.
func (c *ServiceCache) WithClock(now func() time.Time) *ServiceCache {
	c.now = now
	return c
}

// Get returns the cached catalog, refetching when forced or past the TTL.
// On refetch failure the previous snapshot is returned when one exists.
func (c *ServiceCache) Get(ctx context.Context, forceRefresh bool) ([]Service, error) {
	c.mu.RLock()
	fresh := !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl
	snapshot := c.services
	c.mu.RUnlock()

	if fresh && !forceRefresh {
		return snapshot, nil
	}

	services, err := c.source.ListServices(ctx)
	if err != nil {
		if len(snapshot) > 0 {
			return snapshot, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.services = services
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return services, nil
}

// Find matches a spoken service name against the catalog: exact title or
// slug first, then substring in either direction. An unknown name yields a
// ValidationError carrying the valid titles.
func (c *ServiceCache) Find(ctx context.Context, name string) (*Service, error) {
	services, err := c.Get(ctx, false)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(strings.TrimSpace(name))

	for i := range services {
		if strings.ToLower(services[i].Title) == want || strings.ToLower(services[i].Slug) == want {
			return &services[i], nil
		}
	}
	for i := range services {
		title := strings.ToLower(services[i].Title)
		slug := strings.ToLower(services[i].Slug)
		if strings.Contains(title, want) || strings.Contains(slug, want) ||
			strings.Contains(want, title) || strings.Contains(want, slug) {
			return &services[i], nil
		}
	}
	return nil, &ValidationError{
		Msg:          "unknown service " + name,
		Alternatives: Titles(services),
	}
}

// Titles projects a catalog to its human titles.
func Titles(services []Service) []string {
	out := make([]string, 0, len(services))
	for _, s := range services {
		out = append(out, s.Title)
	}
	return out
}
