package proxy

import "net/url"

// Selector chooses the egress for an outbound request. A nil URL means
// connect directly from the host's own address.
type Selector interface {
	Pick() *url.URL
}

// Reporter is implemented by selectors that track endpoint health. Callers
// feed request outcomes back after each use.
type Reporter interface {
	MarkSuccess(u *url.URL) error
	MarkFailure(u *url.URL) error
}

// Direct always connects from the host's own address. It is the wired
// default: scraped free proxies measured too unreliable for search traffic,
// so rotation stays off until a vetted pool exists. Swapping a Pool in here
// re-enables rotation without touching any fetch code.
type Direct struct{}

// Pick implements Selector.
func (Direct) Pick() *url.URL { return nil }

var _ Selector = Direct{}
