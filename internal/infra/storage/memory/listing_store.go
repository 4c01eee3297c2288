package memory

import (
	"context"
	"sync"

	domainlistings "nestly/internal/domain/listings"
)

// ListingRepository is an in-memory listings.Repository, seeded at startup.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[string]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{items: make(map[string]*domainlistings.Listing)}
}

func (r *ListingRepository) ByID(ctx context.Context, id string) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrNotFound
	}
	out := *listing
	return &out, nil
}

// Seed stores or replaces a listing entry.
func (r *ListingRepository) Seed(listing domainlistings.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[listing.ID] = &listing
}
