package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/AriajSarkar/SPAAR/pkg/httpclient"
)

// IPResolver reports the public IP this host egresses from.
type IPResolver interface {
	PublicIP(ctx context.Context) (string, error)
}

const defaultIPEndpoint = "https://api.ipify.org?format=json"

// IPConfig configures the ipify-backed resolver.
type IPConfig struct {
	// Endpoint must answer GET with a JSON body carrying an "ip" field.
	// Default is api.ipify.org.
	Endpoint string
	// Timeout bounds a single lookup. Default 10s.
	Timeout time.Duration
	// TTL is how long a resolved address is reused before the next lookup.
	// Every fetch consults the resolver; the cache keeps that from becoming
	// outbound traffic of its own. Default 1 minute.
	TTL time.Duration
}

// IpifyResolver resolves the host's public IP over HTTP with a short cache.
type IpifyResolver struct {
	endpoint string
	ttl      time.Duration
	client   *httpclient.Client

	mu      sync.Mutex
	ip      string
	fetched time.Time
}

var _ IPResolver = (*IpifyResolver)(nil)

// NewIpifyResolver creates a resolver from cfg, applying defaults for zero
// values.
func NewIpifyResolver(cfg IPConfig) (*IpifyResolver, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultIPEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TTL == 0 {
		cfg.TTL = time.Minute
	}

	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create ip client: %w", err)
	}

	return &IpifyResolver{
		endpoint: cfg.Endpoint,
		ttl:      cfg.TTL,
		client:   client,
	}, nil
}

// PublicIP returns the cached address when fresh, otherwise performs a
// lookup. Safe for concurrent use.
func (r *IpifyResolver) PublicIP(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.ip != "" && time.Since(r.fetched) < r.ttl {
		ip := r.ip
		r.mu.Unlock()
		return ip, nil
	}
	r.mu.Unlock()

	resp, err := r.client.Get(ctx, r.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to reach ip service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip service returned status %d", resp.StatusCode)
	}

	var payload struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode ip response: %w", err)
	}
	if payload.IP == "" {
		return "", errors.New("ip service returned an empty address")
	}

	r.mu.Lock()
	r.ip = payload.IP
	r.fetched = time.Now()
	r.mu.Unlock()

	return payload.IP, nil
}
