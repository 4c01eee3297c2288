package listings

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a listing id resolves to nothing.
var ErrNotFound = errors.New("listings: not found")

// Listing is the slice of a property listing the chat component needs:
// display context for property inquiries and the agent to route them to.
type Listing struct {
	ID        string
	Title     string
	ImageURL  string
	AgentID   string
	AgentName string
	City      string
	CreatedAt time.Time
}

// Repository reads listings.
type Repository interface {
	ByID(ctx context.Context, id string) (*Listing, error)
}
