package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"

	utls "github.com/refraction-networking/utls"

	"github.com/AriajSarkar/SPAAR/pkg/useragent"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ForUserAgent returns the profile whose ClientHello matches the browser the
// User-Agent claims to be. Search engines compare the two, so a Firefox
// header on a Chrome handshake is itself a signal.
func ForUserAgent(ua string) Profile {
	switch useragent.Family(ua) {
	case useragent.FamilyFirefox:
		return ProfileFirefox
	case useragent.FamilySafari:
		return ProfileSafari
	default:
		return ProfileChrome
	}
}

// Options tunes the transport returned by Transport.
type Options struct {
	// Proxy configures the underlying transport's Proxy function.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables certificate verification, needed when
	// handshaking against self-signed test servers.
	InsecureSkipVerify bool
}

func helloID(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("unknown fingerprint profile %q", p)
	}
}

// Transport returns an http.RoundTripper whose TLS handshake presents the
// given profile. ProfileGo yields a plain cloned http.Transport; every other
// profile installs a DialTLSContext that performs the uTLS handshake over the
// transport's own TCP dialer.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	id, err := helloID(p)
	if err != nil {
		return nil, err
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr // addr carried no port
		}

		uConn := utls.UClient(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}, id)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("utls handshake failed: %w", err)
		}

		return uConn, nil
	}

	return transport, nil
}
