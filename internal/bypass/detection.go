package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Detector inspects a fetched page to determine whether a bot protection
// mechanism blocked or challenged the request instead of serving results.
type Detector func(statusCode int, header http.Header, body []byte) (detected bool, source string)

// DefaultDetectors returns the detectors for the challenge pages the search
// engines actually serve, plus the CDN-level blocks seen in front of them.
func DefaultDetectors() []Detector {
	return []Detector{
		detectGoogleSorry,
		detectRecaptcha,
		detectCloudflare,
		detectDDGAnomaly,
	}
}

// Detect runs the page through the detectors in order and reports the first
// match. An empty detector slice falls back to DefaultDetectors.
func Detect(statusCode int, header http.Header, body []byte, detectors []Detector) (bool, string) {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	for _, d := range detectors {
		if detected, source := d(statusCode, header, body); detected {
			return true, source
		}
	}
	return false, ""
}

// detectGoogleSorry matches Google's rate-limit interstitial. It arrives as
// 429, or as 200 after a redirect to /sorry/, so the body markers decide.
func detectGoogleSorry(statusCode int, _ http.Header, body []byte) (bool, string) {
	if bytes.Contains(body, []byte("detected unusual traffic")) ||
		bytes.Contains(body, []byte("google.com/sorry")) {
		return true, "google-sorry"
	}
	if statusCode == http.StatusTooManyRequests && bytes.Contains(body, []byte("About this page")) {
		return true, "google-sorry"
	}
	return false, ""
}

// detectRecaptcha matches pages that replaced their content with a
// reCAPTCHA challenge.
func detectRecaptcha(_ int, _ http.Header, body []byte) (bool, string) {
	if bytes.Contains(body, []byte("g-recaptcha")) ||
		bytes.Contains(body, []byte("recaptcha/api.js")) {
		return true, "recaptcha"
	}
	return false, ""
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(statusCode int, header http.Header, body []byte) (bool, string) {
	// Status codes 403 or 503 are common for CF challenges
	if statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable {
		server := strings.ToLower(header.Get("Server"))
		if strings.Contains(server, "cloudflare") {
			return true, "cloudflare"
		}

		if bytes.Contains(body, []byte("cf-browser-verification")) ||
			bytes.Contains(body, []byte("cloudflare-nginx")) ||
			bytes.Contains(body, []byte("cf-turnstile")) ||
			bytes.Contains(body, []byte("Attention Required! | Cloudflare")) {
			return true, "cloudflare"
		}
	}
	return false, ""
}

// detectDDGAnomaly matches the DuckDuckGo HTML endpoint's anomaly page,
// which replaces the result list while still returning 200.
func detectDDGAnomaly(_ int, _ http.Header, body []byte) (bool, string) {
	if bytes.Contains(body, []byte("anomaly-modal")) ||
		bytes.Contains(body, []byte("Unfortunately, bots use DuckDuckGo too")) {
		return true, "ddg-anomaly"
	}
	return false, ""
}
