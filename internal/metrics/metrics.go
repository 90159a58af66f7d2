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
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicminer_api_calls_total",
			Help: "Total number of external API calls, by capability and pipeline stage",
		},
		[]string{"api", "stage", "success"},
	)

	APICostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicminer_api_cost_usd_total",
			Help: "Accumulated USD cost of external API calls",
		},
		[]string{"api", "stage"},
	)

	CollectorTopicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicminer_collector_topics_total",
			Help: "Total candidate topics produced per collector",
		},
		[]string{"collector"},
	)

	CollectorFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topicminer_collector_failures_total",
			Help: "Total isolated collector failures during topic discovery",
		},
		[]string{"collector"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topicminer_pipeline_duration_seconds",
			Help:    "Duration of full pipeline runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// RecordCall updates the API call counters for one external invocation.
func RecordCall(api, stage string, success bool, cost float64) {
	successStr := "false"
	if success {
		successStr = "true"
	}
	APICallsTotal.WithLabelValues(api, stage, successStr).Inc()
	if cost > 0 {
		APICostTotal.WithLabelValues(api, stage).Add(cost)
	}
}

// RecordCollector updates the per-collector counters after one collector run.
func RecordCollector(collector string, topics int, failed bool) {
	if topics > 0 {
		CollectorTopicsTotal.WithLabelValues(collector).Add(float64(topics))
	}
	if failed {
		CollectorFailuresTotal.WithLabelValues(collector).Inc()
	}
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
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
