package memory

import (
	"context"
	"strings"
	"sync"

	"sneakmarket/internal/domain/identity"
)

// IdentityProvider resolves static bearer tokens to users. It stands in for
// the managed identity service during development and tests.
type IdentityProvider struct {
	mu      sync.RWMutex
	byToken map[string]identity.User
}

// NewIdentityProvider returns an empty provider.
func NewIdentityProvider() *IdentityProvider {
	return &IdentityProvider{byToken: make(map[string]identity.User)}
}

// Register binds a token to a user.
func (p *IdentityProvider) Register(token string, user identity.User) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byToken[token] = user
}

// Resolve maps a token to its user.
func (p *IdentityProvider) Resolve(ctx context.Context, token string) (identity.User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	user, ok := p.byToken[strings.TrimSpace(token)]
	if !ok {
		return identity.User{}, identity.ErrUnknownToken
	}
	return user, nil
}
