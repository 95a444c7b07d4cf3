// Package tier defines the subscription tier boundary consumed by the quota
// ledger. The production resolver is backed by the billing system; this
// package ships a static resolver for tests and development.
package tier

import (
	"context"
	"sync"

	"auditgate/internal/admission/models"
)

// Resolver maps a user to their subscription tier.
type Resolver interface {
	ResolveTier(ctx context.Context, userID string) (models.Tier, error)
}

// StaticResolver is a seedable in-memory Resolver. Users without an entry
// resolve to the free tier.
type StaticResolver struct {
	mu    sync.RWMutex
	tiers map[string]models.Tier
}

// NewStatic creates a StaticResolver with no assignments.
func NewStatic() *StaticResolver {
	return &StaticResolver{
		tiers: make(map[string]models.Tier),
	}
}

// Set assigns a tier to a user.
func (r *StaticResolver) Set(userID string, tier models.Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[userID] = tier
}

// ResolveTier returns the user's tier, defaulting to free.
func (r *StaticResolver) ResolveTier(_ context.Context, userID string) (models.Tier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tiers[userID]; ok {
		return t, nil
	}
	return models.TierFree, nil
}

// Verify interface is satisfied.
var _ Resolver = (*StaticResolver)(nil)
