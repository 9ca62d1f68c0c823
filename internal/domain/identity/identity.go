package identity

import (
	"context"
	"errors"
)

// ErrUnknownToken is returned when a bearer token resolves to no user.
var ErrUnknownToken = errors.New("identity: unknown token")

// User is the authenticated caller as reported by the external identity provider.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// Provider resolves bearer tokens. Authentication itself is delegated to a
// managed identity service; this core only consumes its verdicts.
type Provider interface {
	Resolve(ctx context.Context, token string) (User, error)
}
