package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/x402-facilitator/facilitator/clock"
)

// defaultListLimit and maxListLimit bound a List call's page size: an
// unset or non-positive limit defaults to defaultListLimit, and any limit
// above maxListLimit is clamped down to it rather than returning the whole
// catalog in one page.
const defaultListLimit = 100
const maxListLimit = 1000

// InMemoryStore is a mutex-guarded map keyed by resource URL, with entries
// aging out of List visibility (but not deleted outright) after visibilityTTL,
// in the mutex+map+expiry idiom the teacher uses for its settlement cache.
type InMemoryStore struct {
	mu            sync.Mutex
	entries       map[string]Resource
	clock         clock.Clock
	visibilityTTL time.Duration
}

func NewInMemoryStore(c clock.Clock, visibilityTTL time.Duration) *InMemoryStore {
	if c == nil {
		c = clock.System{}
	}
	return &InMemoryStore{entries: make(map[string]Resource), clock: c, visibilityTTL: visibilityTTL}
}

func (s *InMemoryStore) Upsert(ctx context.Context, resource Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[resource.Resource]; ok {
		resource.ID = existing.ID
	} else {
		resource.ID = uuid.NewString()
	}
	resource.LastUpdated = s.clock.Now().UTC().Format(time.RFC3339)
	s.entries[resource.Resource] = resource
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, resourceURL string) (*Resource, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resource, ok := s.entries[resourceURL]
	if !ok {
		return nil, false, nil
	}
	return &resource, true, nil
}

func (s *InMemoryStore) List(ctx context.Context, opts ListOptions) ([]Resource, Pagination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-s.visibilityTTL)
	var visible []Resource
	for _, resource := range s.entries {
		if resource.DeletedAt != "" {
			continue
		}
		lastUpdated, err := time.Parse(time.RFC3339, resource.LastUpdated)
		if err == nil && s.visibilityTTL > 0 && lastUpdated.Before(cutoff) {
			continue
		}
		if opts.Type != "" && resource.Type != opts.Type {
			continue
		}
		if !metadataMatches(resource.Metadata, opts.Metadata) {
			continue
		}
		if opts.URLFilter != nil && !opts.URLFilter(resource.Resource) {
			continue
		}
		visible = append(visible, resource)
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].LastUpdated > visible[j].LastUpdated })

	total := len(visible)
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return visible[offset:end], Pagination{Limit: limit, Offset: offset, Total: total}, nil
}

// Delete soft-deletes a resource by stamping its DeletedAt; it is a no-op if
// the resource was never registered.
func (s *InMemoryStore) Delete(ctx context.Context, resourceURL string, deletedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resource, ok := s.entries[resourceURL]
	if !ok {
		return nil
	}
	resource.DeletedAt = deletedAt.UTC().Format(time.RFC3339)
	s.entries[resourceURL] = resource
	return nil
}

// Cleanup purges every entry soft-deleted before before, returning the count
// removed.
func (s *InMemoryStore) Cleanup(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for url, resource := range s.entries {
		if resource.DeletedAt == "" {
			continue
		}
		deletedAt, err := time.Parse(time.RFC3339, resource.DeletedAt)
		if err != nil || deletedAt.Before(before) {
			delete(s.entries, url)
			purged++
		}
	}
	return purged, nil
}

// metadataMatches reports whether resource metadata satisfies every key/value
// pair in filters, treated as exact string equality. A nil or empty filters
// map always matches.
func metadataMatches(metadata *Metadata, filters map[string]string) bool {
	if len(filters) == 0 {
		return true
	}
	if metadata == nil {
		return false
	}
	fields := map[string]string{
		"name":          metadata.Name,
		"description":   metadata.Description,
		"category":      metadata.Category,
		"documentation": metadata.Documentation,
		"logo":          metadata.Logo,
		"provider":      metadata.Provider,
	}
	for key, want := range filters {
		if got, ok := fields[key]; !ok || got != want {
			return false
		}
	}
	return true
}
