package useragent

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync/atomic"
)

// Browser families recognized by Family. Search engines profile the TLS
// handshake against the claimed browser, so callers pairing a User-Agent
// with a TLS fingerprint should key the fingerprint off these values.
const (
	FamilyChrome  = "chrome"
	FamilyFirefox = "firefox"
	FamilySafari  = "safari"
)

// DefaultPool holds current desktop browser User-Agents. Search result pages
// are served differently (or not at all) to obviously non-browser clients,
// so the set skews toward the most common Chrome builds.
var DefaultPool = []string{
	// Chrome Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	// Chrome Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	// Edge Windows (Chromium)
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 Edg/125.0.0.0",
	// Firefox Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	// Firefox Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:126.0) Gecko/20100101 Firefox/126.0",
	// Safari Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// Pool is a fixed set of User-Agents handed out randomly or round-robin.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool builds a pool from the given User-Agents, falling back to
// DefaultPool when the slice is empty.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	// Copy to avoid external mutation
	copied := make([]string, len(uas))
	copy(copied, uas)
	return &Pool{uas: copied}
}

// Random returns a User-Agent chosen via crypto/rand. Every call makes a
// fresh choice, so consecutive fetches present as different browsers.
// Safe for concurrent use.
func (p *Pool) Random() string {
	if len(p.uas) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		// Fall back to round-robin if crypto/rand fails
		return p.Next()
	}
	return p.uas[n.Int64()]
}

// Next returns User-Agents in round-robin order. Safe for concurrent use.
func (p *Pool) Next() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// All returns a copy of the pool contents.
func (p *Pool) All() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}

// Family classifies a User-Agent string into one of the browser family
// constants. Chromium derivatives (Edge included) report FamilyChrome since
// they share Chrome's TLS stack. Unrecognized strings default to FamilyChrome.
func Family(ua string) string {
	switch {
	case strings.Contains(ua, "Firefox/"):
		return FamilyFirefox
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "Edg/"), strings.Contains(ua, "CriOS/"):
		return FamilyChrome
	case strings.Contains(ua, "Safari/"):
		return FamilySafari
	default:
		return FamilyChrome
	}
}
