package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaar_searches_total",
			Help: "Total number of per-engine search executions",
		},
		[]string{"engine", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spaar_search_duration_seconds",
			Help:    "Duration of per-engine search executions in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"engine"},
	)

	SearchResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaar_search_results_total",
			Help: "Total results returned across all searches",
		},
		[]string{"engine"},
	)

	ChallengesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaar_challenges_total",
			Help: "Total challenge or block pages served instead of results",
		},
		[]string{"source"},
	)

	ProxyCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaar_proxy_candidates_total",
			Help: "Total proxy candidates fetched from list sources",
		},
		[]string{"source"},
	)

	ProxyValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spaar_proxy_validations_total",
			Help: "Total proxy validation probes by outcome",
		},
		[]string{"valid"},
	)
)

// Search statuses recorded in SearchesTotal.
const (
	StatusOK    = "ok"
	StatusEmpty = "empty"
	StatusError = "error"
)

// RecordSearch updates the per-engine counters for one search execution.
func RecordSearch(engine, status string, duration time.Duration, results int) {
	SearchesTotal.WithLabelValues(engine, status).Inc()
	SearchDuration.WithLabelValues(engine).Observe(duration.Seconds())
	SearchResultsTotal.WithLabelValues(engine).Add(float64(results))
}

// RecordChallenge counts a served block page by its protection source.
func RecordChallenge(source string) {
	ChallengesTotal.WithLabelValues(source).Inc()
}

// RecordProxyCandidates counts candidates contributed by a list source.
func RecordProxyCandidates(source string, n int) {
	ProxyCandidatesTotal.WithLabelValues(source).Add(float64(n))
}

// RecordProxyValidation counts one validation probe outcome.
func RecordProxyValidation(valid bool) {
	label := "false"
	if valid {
		label = "true"
	}
	ProxyValidationsTotal.WithLabelValues(label).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified address and exposes /metrics.
func Start(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
