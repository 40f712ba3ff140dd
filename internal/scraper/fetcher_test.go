package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/AriajSarkar/SPAAR/internal/fingerprint"
	"github.com/AriajSarkar/SPAAR/pkg/proxy"
	"github.com/AriajSarkar/SPAAR/pkg/useragent"
)

// staticResolver keeps fetch tests off the real IP service.
type staticResolver struct {
	ip  string
	err error
}

func (s staticResolver) PublicIP(ctx context.Context) (string, error) {
	return s.ip, s.err
}

func TestFetcher_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("expected User-Agent header, got none")
		}
		if r.Header.Get("Accept-Language") != "en-US,en;q=0.9" {
			t.Errorf("expected browser Accept-Language, got %q", r.Header.Get("Accept-Language"))
		}
		if r.Header.Get("Upgrade-Insecure-Requests") != "1" {
			t.Errorf("expected Upgrade-Insecure-Requests header")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	fetcher, err := NewFetcher(Config{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		UAPool:      useragent.NewPool([]string{"TestBrowser/1.0"}),
		Resolver:    staticResolver{ip: "203.0.113.7"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := fetcher.Fetch(context.Background(), ts.URL, nil)

	if !res.OK() {
		t.Fatalf("expected successful fetch, got error %q", res.Error)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", res.StatusCode)
	}
	if string(res.Body) != "ok" {
		t.Errorf("expected body 'ok', got %s", string(res.Body))
	}
	if res.Egress != "direct (203.0.113.7)" {
		t.Errorf("expected direct egress identity, got %q", res.Egress)
	}
	if res.Duration == 0 {
		t.Errorf("expected non-zero duration")
	}
}

func TestFetcher_Params(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "golang testing" {
			t.Errorf("expected q param, got %q", got)
		}
		if got := r.URL.Query().Get("num"); got != "10" {
			t.Errorf("expected num param, got %q", got)
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{
		Fingerprint: fingerprint.ProfileGo,
		Resolver:    staticResolver{ip: "203.0.113.7"},
	})

	res := fetcher.Fetch(context.Background(), ts.URL, url.Values{
		"q":   {"golang testing"},
		"num": {"10"},
	})
	if !res.OK() {
		t.Fatalf("expected successful fetch, got %q", res.Error)
	}
}

func TestFetcher_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{
		Timeout:     10 * time.Millisecond,
		Fingerprint: fingerprint.ProfileGo,
		Resolver:    staticResolver{ip: "203.0.113.7"},
	})

	res := fetcher.Fetch(context.Background(), ts.URL, nil)

	if res.OK() {
		t.Fatal("expected fetch failure")
	}
	if !strings.Contains(res.Error, "request failed") {
		t.Errorf("expected timeout in error, got %q", res.Error)
	}
	if res.Body != nil {
		t.Errorf("expected nil body on failure")
	}
}

func TestFetcher_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{
		Fingerprint: fingerprint.ProfileGo,
		Resolver:    staticResolver{ip: "203.0.113.7"},
	})

	res := fetcher.Fetch(context.Background(), ts.URL, nil)

	if res.OK() {
		t.Fatal("expected failure on 500")
	}
	if !strings.Contains(res.Error, "unexpected status 500") {
		t.Errorf("expected status in error, got %q", res.Error)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected recorded status 500, got %d", res.StatusCode)
	}
}

func TestFetcher_ChallengePage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><div class="g-recaptcha">prove you are human</div></html>`))
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{
		Fingerprint: fingerprint.ProfileGo,
		Resolver:    staticResolver{ip: "203.0.113.7"},
	})

	res := fetcher.Fetch(context.Background(), ts.URL, nil)

	if res.OK() {
		t.Fatal("expected challenge to fail the fetch")
	}
	if res.Challenge != "recaptcha" {
		t.Errorf("expected recaptcha challenge, got %q", res.Challenge)
	}
	if res.Body != nil {
		t.Errorf("expected body withheld on challenge")
	}
}

func TestFetcher_ChallengeBeatsStatusError(t *testing.T) {
	// A CDN block arrives as 403; the result should name the challenge, not
	// just the status.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<html><title>Attention Required! | Cloudflare</title></html>`))
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{
		Fingerprint: fingerprint.ProfileGo,
		Resolver:    staticResolver{ip: "203.0.113.7"},
	})

	res := fetcher.Fetch(context.Background(), ts.URL, nil)

	if res.Challenge != "cloudflare" {
		t.Errorf("expected cloudflare challenge, got %q", res.Challenge)
	}
	if !strings.Contains(res.Error, "blocked by cloudflare challenge") {
		t.Errorf("expected challenge error, got %q", res.Error)
	}
	if res.StatusCode != http.StatusForbidden {
		t.Errorf("expected recorded status 403, got %d", res.StatusCode)
	}
}

func TestFetcher_EgressUnknown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(Config{
		Fingerprint: fingerprint.ProfileGo,
		Resolver:    staticResolver{err: errors.New("resolver down")},
	})

	res := fetcher.Fetch(context.Background(), ts.URL, nil)

	if !res.OK() {
		t.Fatalf("expected fetch to succeed despite resolver failure, got %q", res.Error)
	}
	if res.Egress != "unknown" {
		t.Errorf("expected unknown egress, got %q", res.Egress)
	}
}

func TestFetcher_Proxy(t *testing.T) {
	// The pool routes the fetch here; answering 418 proves the routing.
	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer proxyServer.Close()

	pool := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: 1 * time.Second})
	if err := pool.Add(proxyServer.URL); err != nil {
		t.Fatalf("failed to add proxy: %v", err)
	}

	fetcher, _ := NewFetcher(Config{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		Selector:    pool,
		Resolver:    staticResolver{ip: "203.0.113.7"},
	})

	targetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer targetServer.Close()

	res := fetcher.Fetch(context.Background(), targetServer.URL, nil)

	if res.StatusCode != http.StatusTeapot {
		t.Errorf("expected 418 from proxy, got %d, err: %v", res.StatusCode, res.Error)
	}
	if res.Egress != proxyServer.URL {
		t.Errorf("expected proxy egress identity %q, got %q", proxyServer.URL, res.Egress)
	}
}
