package cache

import "github.com/prometheus/client_golang/prometheus"

// Request outcomes recorded by Metrics.
const (
	resultMemory = "memory"
	resultDisk   = "disk"
	resultFetch  = "fetch"
	resultError  = "error"
)

// Metrics tracks Prometheus metrics for the pipeline.
//
// All metrics use the "swipe_cache_" prefix. Methods handle a nil receiver,
// so a nil *Metrics is a no-op.
type Metrics struct {
	// Requests counts Image and Prefetch calls by the tier that served them.
	// Labels: result=[memory, disk, fetch, error]
	Requests *prometheus.CounterVec

	// Coalesced counts callers that attached to an in-flight load.
	Coalesced prometheus.Counter

	// FetchDuration tracks network fetch latency.
	FetchDuration prometheus.Histogram

	// DiskErrors counts swallowed disk tier failures.
	DiskErrors prometheus.Counter
}

// NewMetrics creates pipeline metrics and registers them with registerer.
// A nil registerer leaves the metrics unregistered.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swipe_cache_requests_total",
				Help: "Image requests by the tier that served them",
			},
			[]string{"result"},
		),
		Coalesced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swipe_cache_coalesced_total",
				Help: "Requests that attached to an in-flight load for the same key",
			},
		),
		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "swipe_cache_fetch_duration_seconds",
				Help:    "Time to fetch a resource from the network",
				Buckets: prometheus.DefBuckets,
			},
		),
		DiskErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "swipe_cache_disk_errors_total",
				Help: "Disk tier failures that were absorbed",
			},
		),
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Requests, m.Coalesced, m.FetchDuration, m.DiskErrors} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) request(result string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(result).Inc()
}

func (m *Metrics) coalesced() {
	if m == nil {
		return
	}
	m.Coalesced.Inc()
}

func (m *Metrics) fetchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(seconds)
}

func (m *Metrics) diskError() {
	if m == nil {
		return
	}
	m.DiskErrors.Inc()
}
