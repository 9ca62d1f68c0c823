package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	gin "github.com/gin-gonic/gin"

	"sneakmarket/internal/app/dto"
	"sneakmarket/internal/domain/listings"
)

// CatalogReader is the read side of the sneaker catalog the chat pages
// render next to a thread (title, price, thumbnail).
type CatalogReader interface {
	ListingByID(ctx context.Context, id listings.ListingID) (listings.Listing, error)
	All(ctx context.Context) ([]listings.Listing, error)
}

// ListingHandler serves catalog lookups.
type ListingHandler struct {
	Catalog CatalogReader
	Logger  *slog.Logger
}

func (h ListingHandler) List(c *gin.Context) {
	items, err := h.Catalog.All(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("catalog list failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	out := make([]dto.Listing, 0, len(items))
	for _, l := range items {
		out = append(out, dto.FromListing(l))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h ListingHandler) Get(c *gin.Context) {
	listing, err := h.Catalog.ListingByID(c.Request.Context(), listings.ListingID(c.Param("id")))
	if err != nil {
		if errors.Is(err, listings.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		if h.Logger != nil {
			h.Logger.Error("catalog lookup failed", "listing_id", c.Param("id"), "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, dto.FromListing(listing))
}
