// Package discovery implements the facilitator's resource catalog: sellers'
// settled resources are upserted here and exposed for browsing, the way the
// teacher's bazaar extension lets a facilitator catalog discoverable
// x402-protected endpoints.
package discovery

import (
	"context"
	"time"

	x402 "github.com/x402-facilitator/facilitator/internal/x402types"
)

// Metadata is optional descriptive information about a catalogued resource.
type Metadata struct {
	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
	Logo          string   `json:"logo,omitempty"`
	Provider      string   `json:"provider,omitempty"`
}

// Resource is one catalogued x402-protected endpoint.
type Resource struct {
	ID          string                     `json:"id"`
	Resource    string                     `json:"resource"`
	Type        string                     `json:"type"`
	X402Version int                        `json:"x402Version"`
	Accepts     []x402.PaymentRequirements `json:"accepts"`
	LastUpdated string                     `json:"lastUpdated"`
	Metadata    *Metadata                  `json:"metadata,omitempty"`
	// DeletedAt is the RFC3339 timestamp a resource was soft-deleted at, or
	// empty if it is live. Soft-deleted resources are hidden from List and
	// purged outright by Cleanup once old enough.
	DeletedAt string `json:"deletedAt,omitempty"`
}

// ListOptions filters and paginates a List call.
type ListOptions struct {
	Type   string
	Limit  int
	Offset int
	// Metadata requires an exact string match against the resource's
	// Metadata fields for every key present here (JSON-key equality).
	Metadata map[string]string
	// URLFilter, when set, is applied to every candidate resource URL at
	// query time; entries it rejects are excluded from results regardless
	// of any filtering already applied when the resource was registered.
	URLFilter func(resourceURL string) bool
}

// Pagination describes the slice of the total result set a List call returned.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// ResourceStore is the discovery persistence port. An in-memory implementation
// is provided for tests and for facilitators run without a database.
type ResourceStore interface {
	Upsert(ctx context.Context, resource Resource) error
	Get(ctx context.Context, resourceURL string) (*Resource, bool, error)
	List(ctx context.Context, opts ListOptions) ([]Resource, Pagination, error)
	// Delete soft-deletes a resource, stamping its DeletedAt so it stops
	// appearing in List without purging its record outright.
	Delete(ctx context.Context, resourceURL string, deletedAt time.Time) error
	// Cleanup purges records whose DeletedAt is set and older than before,
	// returning the count removed.
	Cleanup(ctx context.Context, before time.Time) (int, error)
}
