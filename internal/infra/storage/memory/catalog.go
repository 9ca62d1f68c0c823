package memory

import (
	"context"
	"fmt"
	"sync"

	domainlistings "sneakmarket/internal/domain/listings"
)

// Catalog is an in-memory read model of the listing catalog, fed from
// fixtures or seeded by tests. The real catalog lives in another service.
type Catalog struct {
	mu       sync.RWMutex
	listings map[domainlistings.ListingID]domainlistings.Listing
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{listings: make(map[domainlistings.ListingID]domainlistings.Listing)}
}

// Put inserts or replaces a listing.
func (c *Catalog) Put(listing domainlistings.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[listing.ID] = listing
}

// ListingByID looks a listing up.
func (c *Catalog) ListingByID(ctx context.Context, id domainlistings.ListingID) (domainlistings.Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	listing, ok := c.listings[id]
	if !ok {
		return domainlistings.Listing{}, fmt.Errorf("%w: %s", domainlistings.ErrNotFound, id)
	}
	return listing, nil
}

// All returns every listing, for the read-only browse endpoint.
func (c *Catalog) All(ctx context.Context) ([]domainlistings.Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domainlistings.Listing, 0, len(c.listings))
	for _, l := range c.listings {
		out = append(out, l)
	}
	return out, nil
}
