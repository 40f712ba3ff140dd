package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/AriajSarkar/SPAAR/internal/bypass"
	"github.com/AriajSarkar/SPAAR/internal/fingerprint"
	"github.com/AriajSarkar/SPAAR/internal/metrics"
	"github.com/AriajSarkar/SPAAR/pkg/httpclient"
	"github.com/AriajSarkar/SPAAR/pkg/proxy"
	"github.com/AriajSarkar/SPAAR/pkg/ratelimit"
	"github.com/AriajSarkar/SPAAR/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Headers every fetch presents, matching what a browser sends alongside the
// rotated User-Agent.
const (
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.9"
)

// Config configures a Fetcher.
type Config struct {
	// Timeout bounds one fetch including body read. Default 20s.
	Timeout time.Duration
	// MaxRedirects caps redirect following; zero keeps the stdlib chain,
	// deep enough for the engines' consent hops.
	MaxRedirects int
	UseCookieJar bool
	// Selector picks the egress per fetch. Nil means always direct.
	Selector proxy.Selector
	// UAPool supplies the per-fetch User-Agent. Nil falls back to the
	// default browser set.
	UAPool *useragent.Pool
	// Fingerprint pins one TLS profile. Empty matches the profile to each
	// fetch's User-Agent family instead.
	Fingerprint fingerprint.Profile
	// Limiter, when set, paces fetches.
	Limiter *ratelimit.Limiter
	// Resolver reports the public IP for the egress identity. Nil uses
	// api.ipify.org with a short cache.
	Resolver IPResolver
	// Detectors override the challenge detector chain. Nil uses defaults.
	Detectors []bypass.Detector
	Logger    *slog.Logger
}

// FetchResult captures one fetch attempt. A failed fetch is data, not a Go
// error: Body stays nil and Error says why.
type FetchResult struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Egress identifies the address the request left from: a proxy URL, or
	// "direct (<ip>)", or "unknown" when the lookup failed.
	Egress string
	// Challenge names the bot protection that served a block page, if any.
	Challenge string
	Duration  time.Duration
	Error     string
}

// OK reports whether the fetch produced a usable body.
func (r *FetchResult) OK() bool {
	return r.Error == "" && r.Body != nil
}

// Fetcher performs single GET fetches dressed as browser traffic: rotated
// User-Agent, matching TLS fingerprint, browser header set, optional proxy
// egress. One Fetcher holds one client per TLS profile so connections and
// cookie jars persist across fetches.
type Fetcher struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	clients map[fingerprint.Profile]*httpclient.Client
}

// NewFetcher initializes a Fetcher, applying defaults and surfacing
// transport configuration errors eagerly.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Resolver == nil {
		resolver, err := NewIpifyResolver(IPConfig{})
		if err != nil {
			return nil, fmt.Errorf("failed to create ip resolver: %w", err)
		}
		cfg.Resolver = resolver
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	f := &Fetcher{
		cfg:     cfg,
		log:     cfg.Logger,
		clients: make(map[fingerprint.Profile]*httpclient.Client),
	}

	probe := cfg.Fingerprint
	if probe == "" {
		probe = fingerprint.ProfileChrome
	}
	if _, err := f.clientFor(probe); err != nil {
		return nil, err
	}
	return f, nil
}

// proxyFromContext reads the per-request egress installed by Fetch. Requests
// without one connect directly; environment proxies are ignored on purpose,
// otherwise the reported egress identity would lie.
func proxyFromContext(req *http.Request) (*url.URL, error) {
	if val := req.Context().Value(proxyKey); val != nil {
		if u, ok := val.(*url.URL); ok {
			return u, nil
		}
	}
	return nil, nil
}

// clientFor returns the client for a TLS profile, building it on first use.
func (f *Fetcher) clientFor(p fingerprint.Profile) (*httpclient.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[p]; ok {
		return c, nil
	}

	transport, err := fingerprint.Transport(p, fingerprint.Options{Proxy: proxyFromContext})
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      f.cfg.Timeout,
		MaxRedirects: f.cfg.MaxRedirects,
		UseCookieJar: f.cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	f.clients[p] = client
	return client, nil
}

// Fetch GETs rawURL with params encoded into the query string. It never
// returns a Go error; inspect the result's Error field.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, params url.Values) *FetchResult {
	target := rawURL
	if len(params) > 0 {
		target = rawURL + "?" + params.Encode()
	}

	result := &FetchResult{URL: target}

	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx); err != nil {
			result.Error = fmt.Sprintf("rate limiter interrupted: %v", err)
			return result
		}
	}

	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	var egressProxy *url.URL
	if f.cfg.Selector != nil {
		egressProxy = f.cfg.Selector.Pick()
	}
	if egressProxy != nil {
		result.Egress = egressProxy.String()
	} else {
		result.Egress = f.directEgress(ctx)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to build request: %v", err)
		return result
	}
	if egressProxy != nil {
		// Per-request rotation over a shared transport: the proxy URL rides
		// the request context and proxyFromContext hands it to the transport.
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, egressProxy))
	}

	ua := f.cfg.UAPool.Random()
	profile := f.cfg.Fingerprint
	if profile == "" {
		profile = fingerprint.ForUserAgent(ua)
	}
	client, err := f.clientFor(profile)
	if err != nil {
		result.Error = fmt.Sprintf("failed to build transport: %v", err)
		return result
	}

	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := client.Do(req.Context(), req)
	if err != nil {
		f.reportProxy(egressProxy, false)
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer resp.Body.Close()
	f.reportProxy(egressProxy, true)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read body: %v", err)
		return result
	}

	result.StatusCode = resp.StatusCode
	result.Header = resp.Header

	// Challenge detection runs before the status check so a 429 sorry page
	// or 403 CDN block keeps its provenance instead of a generic status error.
	if detected, source := bypass.Detect(resp.StatusCode, resp.Header, body, f.cfg.Detectors); detected {
		result.Challenge = source
		result.Error = fmt.Sprintf("blocked by %s challenge", source)
		metrics.RecordChallenge(source)
		f.log.Warn("challenge page detected", "url", rawURL, "source", source)
		return result
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		f.log.Warn("fetch returned non-success status", "url", rawURL, "status", resp.StatusCode)
		return result
	}

	result.Body = body
	return result
}

// directEgress labels a fetch that leaves from the host's own address.
func (f *Fetcher) directEgress(ctx context.Context) string {
	ip, err := f.cfg.Resolver.PublicIP(ctx)
	if err != nil {
		f.log.Debug("public ip lookup failed", "err", err)
		return "unknown"
	}
	return fmt.Sprintf("direct (%s)", ip)
}

// reportProxy feeds the outcome back to health-tracking selectors.
func (f *Fetcher) reportProxy(u *url.URL, success bool) {
	if u == nil {
		return
	}
	rep, ok := f.cfg.Selector.(proxy.Reporter)
	if !ok {
		return
	}
	if success {
		_ = rep.MarkSuccess(u)
	} else {
		_ = rep.MarkFailure(u)
	}
}
