package proxyfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AriajSarkar/SPAAR/internal/metrics"
	"github.com/AriajSarkar/SPAAR/internal/storage"
	"github.com/AriajSarkar/SPAAR/pkg/ratelimit"
)

// JobConfig provides parameters for one refresh run.
type JobConfig struct {
	// Sources to pull candidates from. At least one is required.
	Sources []Source
	// Store receives the validated records.
	Store storage.Store
	// Validator probes candidates. Nil gets the default google.com probe.
	Validator *Validator
	// Workers bounds concurrent probes. Default 10.
	Workers int
	// Limiter, when set, paces probes.
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
}

// Job refreshes the proxy inventory: fetch candidates, validate, upsert.
type Job struct {
	cfg JobConfig
	log *slog.Logger
}

func NewJob(cfg JobConfig) (*Job, error) {
	if len(cfg.Sources) == 0 {
		return nil, errors.New("at least one source is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator(ValidatorConfig{})
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Job{cfg: cfg, log: cfg.Logger}, nil
}

// Refresh runs one maintenance pass and returns how many proxies validated.
// A failing source is logged and contributes nothing; the whole run fails
// only on cancellation or when the store rejects the batch.
func (j *Job) Refresh(ctx context.Context) (int, error) {
	candidates := j.gather(ctx)
	if len(candidates) == 0 {
		j.log.Info("no proxy candidates found")
		return 0, nil
	}

	validated, err := j.validate(ctx, candidates)
	if err != nil {
		return 0, err
	}
	if len(validated) == 0 {
		j.log.Info("no proxy candidates survived validation", "candidates", len(candidates))
		return 0, nil
	}

	if err := j.cfg.Store.UpsertProxies(ctx, validated); err != nil {
		return 0, fmt.Errorf("failed to save proxies: %w", err)
	}

	j.log.Info("proxy inventory refreshed", "candidates", len(candidates), "validated", len(validated))
	return len(validated), nil
}

// gather concatenates every source's output, dropping (ip, port) duplicates
// so overlapping listings don't get probed twice.
func (j *Job) gather(ctx context.Context) []storage.ProxyRecord {
	seen := make(map[string]struct{})
	var candidates []storage.ProxyRecord

	for _, src := range j.cfg.Sources {
		records, err := src.Fetch(ctx)
		if err != nil {
			j.log.Warn("proxy source failed", "source", src.Name(), "err", err)
			continue
		}
		metrics.RecordProxyCandidates(src.Name(), len(records))
		j.log.Info("proxy source fetched", "source", src.Name(), "candidates", len(records))

		for _, rec := range records {
			if _, dup := seen[rec.Addr()]; dup {
				continue
			}
			seen[rec.Addr()] = struct{}{}
			candidates = append(candidates, rec)
		}
	}

	return candidates
}

// validate probes candidates over a bounded worker pool.
func (j *Job) validate(ctx context.Context, candidates []storage.ProxyRecord) ([]storage.ProxyRecord, error) {
	jobs := make(chan storage.ProxyRecord)

	var (
		mu        sync.Mutex
		validated []storage.ProxyRecord
	)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < j.cfg.Workers; i++ {
		g.Go(func() error {
			for rec := range jobs {
				if j.cfg.Limiter != nil {
					if err := j.cfg.Limiter.Wait(gCtx); err != nil {
						return err
					}
				}

				valid := j.cfg.Validator.Validate(gCtx, rec)
				metrics.RecordProxyValidation(valid)
				j.log.Debug("probed proxy", "addr", rec.Addr(), "valid", valid)
				if !valid {
					continue
				}

				rec.Active = true
				rec.SuccessRate = 100
				rec.LastChecked = time.Now().UTC()

				mu.Lock()
				validated = append(validated, rec)
				mu.Unlock()
			}
			return nil
		})
	}

	go func() {
		defer close(jobs)
		for _, rec := range candidates {
			select {
			case jobs <- rec:
			case <-gCtx.Done():
				return
			}
		}
	}()

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return validated, nil
}
