// Package auth holds API key identity data used to authenticate requests.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no active key matches the presented hash.
var ErrNotFound = errors.New("api key not found")

// APIKey holds the identity data for a validated API key. OwnerID is the
// user the key acts as; carts and orders are scoped to it.
type APIKey struct {
	KeyHash string
	OwnerID string
	Name    string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
}
