package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"circulation-engine/internal/domain/circulation"

	"github.com/redis/go-redis/v9"
)

const policyCacheKey = "circulation:policy:current"

// CachedPolicyProvider keeps the current loan policy in Redis for a short
// TTL so the per-operation policy snapshot does not hit Postgres on every
// request. Redis failures fall through to the source provider; the cache
// never turns a readable policy into an error.
type CachedPolicyProvider struct {
	source circulation.PolicyProvider
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ circulation.PolicyProvider = (*CachedPolicyProvider)(nil)

func NewCachedPolicyProvider(source circulation.PolicyProvider, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedPolicyProvider {
	if source == nil {
		panic("source PolicyProvider cannot be nil for CachedPolicyProvider")
	}
	return &CachedPolicyProvider{
		source: source,
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "CachedPolicyProvider"),
	}
}

func (p *CachedPolicyProvider) Current(ctx context.Context) (circulation.Policy, error) {
	if pol, ok := p.lookup(ctx); ok {
		return pol, nil
	}

	pol, err := p.source.Current(ctx)
	if err != nil {
		return circulation.Policy{}, err
	}

	p.store(ctx, pol)
	return pol, nil
}

func (p *CachedPolicyProvider) lookup(ctx context.Context) (circulation.Policy, bool) {
	payload, err := p.client.Get(ctx, policyCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			p.logger.WarnContext(ctx, "Policy cache lookup failed, falling through to source", "error", err)
		}
		return circulation.Policy{}, false
	}

	var pol circulation.Policy
	if err := json.Unmarshal(payload, &pol); err != nil {
		p.logger.WarnContext(ctx, "Discarding unreadable cached policy", "error", err)
		p.invalidate(ctx)
		return circulation.Policy{}, false
	}
	return pol, true
}

func (p *CachedPolicyProvider) store(ctx context.Context, pol circulation.Policy) {
	payload, err := json.Marshal(pol)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to marshal policy for caching", "error", err)
		return
	}
	if err := p.client.Set(ctx, policyCacheKey, payload, p.ttl).Err(); err != nil {
		p.logger.WarnContext(ctx, "Failed to cache policy", "error", err)
	}
}

func (p *CachedPolicyProvider) invalidate(ctx context.Context) {
	if err := p.client.Del(ctx, policyCacheKey).Err(); err != nil {
		p.logger.WarnContext(ctx, "Failed to drop cached policy", "error", err)
	}
}
