package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"tangled.org/booru.social/booru/internal/moderation"
)

// IdentityClient implements moderation.Authorizer against the identity &
// permission service. Answers are cached briefly; errors are never cached.
type IdentityClient struct {
	c     caller
	cache *expirable.LRU[capabilityKey, bool]
}

var _ moderation.Authorizer = (*IdentityClient)(nil)

// IdentityClientOptions configures an IdentityClient.
type IdentityClientOptions struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client

	// CacheSize is the number of answers kept. Zero means unlimited.
	CacheSize int
	// CacheTTL is how long an answer is trusted. Zero disables caching.
	CacheTTL time.Duration
}

type capabilityKey struct {
	actorID    int64
	capability moderation.Capability
}

// NewIdentityClient creates a client for the identity service.
func NewIdentityClient(opts IdentityClientOptions) (*IdentityClient, error) {
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid identity service url %q: %w", opts.BaseURL, err)
	}
	ic := &IdentityClient{c: newCaller("identity", opts.BaseURL, opts.HTTPClient, opts.Timeout, opts.Token)}
	if opts.CacheTTL > 0 {
		ic.cache = expirable.NewLRU[capabilityKey, bool](opts.CacheSize, nil, opts.CacheTTL)
	}
	return ic, nil
}

type capabilityQuery struct {
	ActorID    int64  `url:"actor_id"`
	Capability string `url:"capability"`
}

type capabilityResponse struct {
	Allowed bool `json:"allowed"`
}

// HasCapability asks GET /capabilities/check?actor_id=..&capability=..
func (ic *IdentityClient) HasCapability(ctx context.Context, actorID int64, capability moderation.Capability) (bool, error) {
	key := capabilityKey{actorID: actorID, capability: capability}
	if ic.cache != nil {
		if allowed, ok := ic.cache.Get(key); ok {
			return allowed, nil
		}
	}

	vals, err := query.Values(capabilityQuery{ActorID: actorID, Capability: string(capability)})
	if err != nil {
		return false, fmt.Errorf("encode capability query: %w", err)
	}

	var out capabilityResponse
	if err := ic.c.do(ctx, "has_capability", http.MethodGet, "/capabilities/check?"+vals.Encode(), nil, &out); err != nil {
		return false, err
	}

	if ic.cache != nil {
		ic.cache.Add(key, out.Allowed)
	}
	log.Debug().
		Int64("actor_id", actorID).
		Str("capability", string(capability)).
		Bool("allowed", out.Allowed).
		Msg("identity: capability checked")
	return out.Allowed, nil
}

// Invalidate drops cached answers for an actor, after a role change.
func (ic *IdentityClient) Invalidate(actorID int64) {
	if ic.cache == nil {
		return
	}
	for _, key := range ic.cache.Keys() {
		if key.actorID == actorID {
			ic.cache.Remove(key)
		}
	}
}
