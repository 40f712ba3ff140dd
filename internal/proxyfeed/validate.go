package proxyfeed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/AriajSarkar/SPAAR/internal/storage"
	"github.com/AriajSarkar/SPAAR/pkg/httpclient"
	"github.com/AriajSarkar/SPAAR/pkg/useragent"
)

const (
	defaultProbeURL     = "https://www.google.com"
	defaultProbeTimeout = 10 * time.Second
)

// ValidatorConfig provides parameters for the probe.
type ValidatorConfig struct {
	// ProbeURL is fetched through each candidate. Default google.com, a
	// target that is up when anything is.
	ProbeURL string
	// Timeout bounds one probe. Default 10s.
	Timeout time.Duration
	UAPool  *useragent.Pool
	Logger  *slog.Logger
}

// Validator checks whether a candidate proxy actually relays traffic. Only a
// clean 200 from the probe target counts; an error page, a login portal or a
// refused connection all disqualify the candidate.
type Validator struct {
	cfg ValidatorConfig
	log *slog.Logger
}

func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = defaultProbeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Validator{cfg: cfg, log: cfg.Logger}
}

// Validate performs one GET through the candidate and reports whether the
// probe came back 200.
func (v *Validator) Validate(ctx context.Context, rec storage.ProxyRecord) bool {
	proxyURL, err := url.Parse(rec.URL())
	if err != nil {
		v.log.Debug("unusable proxy url", "addr", rec.Addr(), "err", err)
		return false
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout: v.cfg.Timeout,
		Proxy:   proxyURL,
	})
	if err != nil {
		v.log.Debug("failed to build probe client", "addr", rec.Addr(), "err", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.ProbeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", v.cfg.UAPool.Random())

	resp, err := client.Do(ctx, req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}
