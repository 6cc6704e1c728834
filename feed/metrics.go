package feed

import "github.com/prometheus/client_golang/prometheus"

// Discovery call outcomes recorded by Metrics.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeSeen      = "seen"
	outcomeError     = "error"
)

// Metrics tracks Prometheus metrics for a Scheduler.
//
// All metrics use the "swipe_feed_" prefix. Methods handle a nil receiver.
type Metrics struct {
	// Depth is the current buffer length.
	Depth prometheus.Gauge

	// Discoveries counts discovery calls by outcome.
	// Labels: outcome=[accepted, duplicate, seen, error]
	Discoveries *prometheus.CounterVec

	// Fills counts completed fills by result.
	// Labels: result=[ok, error]
	Fills *prometheus.CounterVec

	// Decisions counts recorded decisions.
	// Labels: favorite=[true, false]
	Decisions *prometheus.CounterVec
}

// NewMetrics creates scheduler metrics and registers them with registerer.
// A nil registerer leaves the metrics unregistered.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swipe_feed_buffer_depth",
			Help: "Candidates currently buffered ahead of the user",
		}),
		Discoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swipe_feed_discoveries_total",
				Help: "Discovery calls by outcome",
			},
			[]string{"outcome"},
		),
		Fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swipe_feed_fills_total",
				Help: "Buffer fills by result",
			},
			[]string{"result"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swipe_feed_decisions_total",
				Help: "Recorded decisions",
			},
			[]string{"favorite"},
		),
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Depth, m.Discoveries, m.Fills, m.Decisions} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) depth(n int) {
	if m == nil {
		return
	}
	m.Depth.Set(float64(n))
}

func (m *Metrics) discovery(outcome string) {
	if m == nil {
		return
	}
	m.Discoveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) fill(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Fills.WithLabelValues(result).Inc()
}

func (m *Metrics) decision(favorite bool) {
	if m == nil {
		return
	}
	label := "false"
	if favorite {
		label = "true"
	}
	m.Decisions.WithLabelValues(label).Inc()
}
