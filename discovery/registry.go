package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	x402 "github.com/x402-facilitator/facilitator/internal/x402types"
	"github.com/x402-facilitator/facilitator/clock"
	"github.com/x402-facilitator/facilitator/logging"
)

// defaultDebounce is the window within which a repeated Register call for the
// same resource is skipped when it would leave the accepts list unchanged, so
// a resource settled many times a second doesn't rewrite its catalog entry on
// every settlement. A call inside the window that changes the accepts list
// still updates the store.
const defaultDebounce = 24 * time.Hour

// DefaultVisibilityTTL is how long a resource stays in List results after its
// last registration before it ages out, mirroring the settlement cache's
// expiry idiom without ever deleting the underlying record.
const DefaultVisibilityTTL = 7 * 24 * time.Hour

// defaultPurgeAfter is how long a soft-deleted resource survives before
// Cleanup removes its record outright.
const defaultPurgeAfter = 30 * 24 * time.Hour

// Registry is the facade's discovery port: it takes successfully settled
// PaymentRequirements and catalogs the resource they paid for, the way the
// teacher's bazaar extension lets a facilitator build a directory of the
// resources it has observed being paid for.
type Registry struct {
	store          ResourceStore
	clock          clock.Clock
	debounce       time.Duration
	logger         logging.Logger
	allowLocalhost bool
}

func NewRegistry(store ResourceStore, c clock.Clock, logger logging.Logger, allowLocalhost bool) *Registry {
	if c == nil {
		c = clock.System{}
	}
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &Registry{store: store, clock: c, debounce: defaultDebounce, logger: logger, allowLocalhost: allowLocalhost}
}

// Register upserts requirements.Resource into the catalog, merging requirements
// into the resource's accepts list. It rejects resource URLs whose host is
// "localhost" or a private, loopback, link-local, or unspecified IP literal;
// hostnames are not resolved. It skips the upsert entirely
// when nothing has changed since the last registration within the debounce
// window.
func (r *Registry) Register(ctx context.Context, requirements x402.PaymentRequirements) error {
	if requirements.Resource == "" {
		return fmt.Errorf("resource is empty")
	}
	if !r.allowLocalhost {
		if err := checkResourceURL(requirements.Resource); err != nil {
			return fmt.Errorf("resource url rejected: %w", err)
		}
	}

	existing, found, err := r.store.Get(ctx, requirements.Resource)
	if err != nil {
		return fmt.Errorf("load existing resource: %w", err)
	}

	accepts := []x402.PaymentRequirements{requirements}
	resourceType := "http"
	if found {
		accepts = mergeAccepts(existing.Accepts, requirements)
		resourceType = existing.Type

		if debounced(existing, accepts, r.clock.Now(), r.debounce) {
			return nil
		}
	}

	resource := Resource{
		Resource:    requirements.Resource,
		Type:        resourceType,
		X402Version: 1,
		Accepts:     accepts,
	}
	if found {
		resource.Metadata = existing.Metadata
	}

	if err := r.store.Upsert(ctx, resource); err != nil {
		return fmt.Errorf("upsert resource: %w", err)
	}
	return nil
}

// Get looks up a single catalogued resource by URL.
func (r *Registry) Get(ctx context.Context, resourceURL string) (*Resource, bool, error) {
	return r.store.Get(ctx, resourceURL)
}

// List returns the page of catalogued resources matching opts. The URL
// safety filter is re-applied here, at query time, as defense-in-depth
// against any resource that reached the store another way.
func (r *Registry) List(ctx context.Context, opts ListOptions) ([]Resource, Pagination, error) {
	if !r.allowLocalhost {
		opts.URLFilter = func(resourceURL string) bool {
			return checkResourceURL(resourceURL) == nil
		}
	}
	return r.store.List(ctx, opts)
}

// Delete soft-deletes a catalogued resource.
func (r *Registry) Delete(ctx context.Context, resourceURL string) error {
	return r.store.Delete(ctx, resourceURL, r.clock.Now())
}

// Cleanup purges resources soft-deleted more than 30 days ago.
func (r *Registry) Cleanup(ctx context.Context) (int, error) {
	return r.store.Cleanup(ctx, r.clock.Now().Add(-defaultPurgeAfter))
}

func mergeAccepts(existing []x402.PaymentRequirements, requirements x402.PaymentRequirements) []x402.PaymentRequirements {
	for i, accept := range existing {
		if accept.PayTo == requirements.PayTo && accept.Asset == requirements.Asset && accept.Network == requirements.Network {
			merged := append([]x402.PaymentRequirements(nil), existing...)
			merged[i] = requirements
			return merged
		}
	}
	return append(append([]x402.PaymentRequirements(nil), existing...), requirements)
}

func debounced(existing *Resource, mergedAccepts []x402.PaymentRequirements, now time.Time, window time.Duration) bool {
	if !x402.DeepEqual(existing.Accepts, mergedAccepts) {
		return false
	}
	lastUpdated, err := time.Parse(time.RFC3339, existing.LastUpdated)
	if err != nil {
		return false
	}
	return now.Sub(lastUpdated) < window
}

// checkResourceURL rejects resource identifiers that would have the
// facilitator advertise an internal or loopback endpoint as a discoverable
// resource.
func checkResourceURL(resource string) error {
	u, err := url.Parse(resource)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("host %q is not publicly reachable", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("host %q is not publicly reachable", host)
		}
	}
	return nil
}
