package listings

import "errors"

// ErrNotFound is returned by catalog lookups for unknown listings.
var ErrNotFound = errors.New("listings: not found")

// ListingID identifies a catalog item.
type ListingID string

// Listing is the read-only catalog shape used to decorate offers and trades.
// The catalog itself is owned by another service; this core only reads it.
type Listing struct {
	ID         ListingID
	Title      string
	Price      float64
	Images     []string
	SellerID   string
	IsForTrade bool
}

// Thumbnail returns the primary image, or empty when none is set.
func (l Listing) Thumbnail() string {
	if len(l.Images) == 0 {
		return ""
	}
	return l.Images[0]
}
