package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/ndltd-tw/papergraph/pkg/common"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeRequestsTotal counts gateway calls by operation and result kind.
	storeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papergraph_store_requests_total",
		Help: "Total document store calls by operation and result",
	}, []string{"operation", "result"})

	storeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papergraph_store_request_duration_seconds",
		Help:    "Document store call latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"operation"})

	networkBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "papergraph_network_build_duration_seconds",
		Help:    "Similarity network build duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	networkNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "papergraph_network_nodes",
		Help:    "Number of distinct nodes per similarity network",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	networkEdges = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "papergraph_network_edges",
		Help:    "Number of edges per similarity network",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})

	summaryStreamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papergraph_summary_streams_total",
		Help: "Total summary streams by provider and result",
	}, []string{"provider", "result"})
)

// Result maps an error to a low-cardinality label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if k := common.Kind(err); k != nil {
		return k.Error()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}

// ObserveStoreCall records one gateway call.
func ObserveStoreCall(operation string, start time.Time, err error) {
	storeRequestsTotal.WithLabelValues(operation, Result(err)).Inc()
	storeRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveNetworkBuild records a finished similarity network build.
func ObserveNetworkBuild(start time.Time, nodes, edges int) {
	networkBuildDuration.Observe(time.Since(start).Seconds())
	networkNodes.Observe(float64(nodes))
	networkEdges.Observe(float64(edges))
}

// ObserveSummaryStream records the outcome of a summary stream.
func ObserveSummaryStream(provider string, err error) {
	summaryStreamsTotal.WithLabelValues(provider, Result(err)).Inc()
}
