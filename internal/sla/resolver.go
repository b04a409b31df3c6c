package sla

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
	"github.com/spec-kit/servicedesk-realtime/internal/repository"
	apperrors "github.com/spec-kit/servicedesk-realtime/pkg/util"
)

// ErrNoPolicy means no active policy covers a priority tier.
var ErrNoPolicy = errors.New("no active sla policy for priority")

// PolicyCache stores resolved policies between lookups. Implementations may
// lose entries at any time.
type PolicyCache interface {
	Get(ctx context.Context, key string) (*domain.SLAPolicy, error)
	Set(ctx context.Context, key string, policy *domain.SLAPolicy, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// errCacheMiss is returned by PolicyCache.Get when the key is absent.
var errCacheMiss = errors.New("policy cache miss")

// RedisPolicyCache keeps policies as JSON strings in Redis.
type RedisPolicyCache struct {
	client *redis.Client
	prefix string
}

// NewRedisPolicyCache returns a cache over client. A nil client disables caching.
func NewRedisPolicyCache(client *redis.Client) *RedisPolicyCache {
	return &RedisPolicyCache{client: client, prefix: "sla:policy:"}
}

func (c *RedisPolicyCache) Get(ctx context.Context, key string) (*domain.SLAPolicy, error) {
	if c == nil || c.client == nil {
		return nil, errCacheMiss
	}
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var policy domain.SLAPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (c *RedisPolicyCache) Set(ctx context.Context, key string, policy *domain.SLAPolicy, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(policy)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, ttl).Err()
}

func (c *RedisPolicyCache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = c.prefix + key
	}
	return c.client.Del(ctx, full...).Err()
}

// Resolver maps ticket priorities to SLA policies.
type Resolver struct {
	policies repository.SLAPolicyRepository
	cache    PolicyCache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewResolver builds a resolver. cache may be nil; ttl <= 0 disables caching.
func NewResolver(policies repository.SLAPolicyRepository, cache PolicyCache, ttl time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		policies: policies,
		cache:    cache,
		ttl:      ttl,
		logger:   observability.OrNop(logger),
	}
}

// Resolve returns the most recently created active policy for priority, or ErrNoPolicy.
func (r *Resolver) Resolve(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	key := priorityKey(priority)
	if policy := r.cached(ctx, key); policy != nil {
		return policy, nil
	}
	policy, err := r.policies.FindActiveByPriority(ctx, priority)
	if apperrors.IsNotFound(err) {
		return nil, ErrNoPolicy
	}
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, policy)
	return policy, nil
}

// Policy loads a policy by id.
func (r *Resolver) Policy(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	key := idKey(id)
	if policy := r.cached(ctx, key); policy != nil {
		return policy, nil
	}
	policy, err := r.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, policy)
	return policy, nil
}

// Invalidate drops cached lookups that may now resolve differently after policy was edited.
func (r *Resolver) Invalidate(ctx context.Context, policy *domain.SLAPolicy) {
	if r.cache == nil || policy == nil {
		return
	}
	if err := r.cache.Delete(ctx, idKey(policy.ID), priorityKey(policy.Priority)); err != nil {
		r.logger.Warn("policy cache invalidation failed", zap.String("policy_id", policy.ID), zap.Error(err))
	}
}

func (r *Resolver) cached(ctx context.Context, key string) *domain.SLAPolicy {
	if r.cache == nil || r.ttl <= 0 {
		return nil
	}
	policy, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errCacheMiss) {
			r.logger.Warn("policy cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	return policy
}

func (r *Resolver) store(ctx context.Context, key string, policy *domain.SLAPolicy) {
	if r.cache == nil || r.ttl <= 0 {
		return
	}
	if err := r.cache.Set(ctx, key, policy, r.ttl); err != nil {
		r.logger.Warn("policy cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func priorityKey(priority domain.TicketPriority) string {
	return "priority:" + string(priority)
}

func idKey(id string) string {
	return "id:" + id
}
