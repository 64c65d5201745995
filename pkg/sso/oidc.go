package sso

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/loginoidc/pkg/observability"
	"github.com/platinummonkey/loginoidc/pkg/settings"
)

// discoveryCacheSize is the number of issuers whose documents are kept
const discoveryCacheSize = 16

// Endpoints are the provider URLs published in an OpenID discovery document
type Endpoints struct {
	AuthorizeURL  string
	TokenURL      string
	UserinfoURL   string
	EndSessionURL string
	RevocationURL string
}

// Discoverer fetches and caches OpenID provider metadata. ID tokens are not
// verified, so only the endpoint URLs are used.
type Discoverer struct {
	client  *http.Client
	cache   *expirable.LRU[string, Endpoints]
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewDiscoverer creates a discoverer whose documents expire after ttl
func NewDiscoverer(client *http.Client, ttl time.Duration, metrics *observability.Metrics) *Discoverer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Discoverer{
		client:  client,
		cache:   expirable.NewLRU[string, Endpoints](discoveryCacheSize, nil, ttl),
		metrics: metrics,
	}
}

// Discover returns the endpoints published by issuer. Concurrent calls for
// the same issuer share one request.
func (d *Discoverer) Discover(ctx context.Context, issuer string) (Endpoints, error) {
	if ep, ok := d.cache.Get(issuer); ok {
		return ep, nil
	}

	v, err, _ := d.group.Do(issuer, func() (interface{}, error) {
		start := time.Now()
		ep, err := d.fetch(ctx, issuer)
		kind := ""
		if err != nil {
			kind = providerErrorKind(err)
		}
		d.metrics.ObserveProvider("discovery", start, kind)
		if err != nil {
			return Endpoints{}, err
		}
		d.cache.Add(issuer, ep)
		return ep, nil
	})
	if err != nil {
		return Endpoints{}, err
	}
	return v.(Endpoints), nil
}

func (d *Discoverer) fetch(ctx context.Context, issuer string) (Endpoints, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, d.client), issuer)
	if err != nil {
		return Endpoints{}, classifyProviderError("discovery", err)
	}

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return Endpoints{}, fmt.Errorf("%w: discovery document: %v", ErrInvalidProviderResponse, err)
	}

	endpoint := provider.Endpoint()
	return Endpoints{
		AuthorizeURL:  endpoint.AuthURL,
		TokenURL:      endpoint.TokenURL,
		UserinfoURL:   provider.UserInfoEndpoint(),
		EndSessionURL: extra.EndSessionEndpoint,
		RevocationURL: extra.RevocationEndpoint,
	}, nil
}

// Apply fills endpoints left blank in cfg from the issuer's discovery
// document. Settings without an issuer are returned unchanged.
func (d *Discoverer) Apply(ctx context.Context, cfg settings.Settings) (settings.Settings, error) {
	if cfg.IssuerURL == "" {
		return cfg, nil
	}

	ep, err := d.Discover(ctx, cfg.IssuerURL)
	if err != nil {
		return cfg, err
	}

	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.AuthorizeURL, ep.AuthorizeURL)
	fill(&cfg.TokenURL, ep.TokenURL)
	fill(&cfg.UserinfoURL, ep.UserinfoURL)
	fill(&cfg.EndSessionURL, ep.EndSessionURL)
	fill(&cfg.RevocationURL, ep.RevocationURL)
	return cfg, nil
}
