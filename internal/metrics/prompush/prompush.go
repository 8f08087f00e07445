// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A batch run has no scrape endpoint, so collected values
// are pushed once when the run finishes.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"snowflake-mask-report/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	stepCounter   *prometheus.CounterVec
	stepDuration  *prometheus.SummaryVec
	cellCounter   *prometheus.CounterVec
	tableCounter  *prometheus.CounterVec
	submitCounter prometheus.Counter
}

// NewBackend constructs a Pushgateway backend grouped under jobName.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "maskreport"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Pipeline step duration in seconds by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		cellCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.CellsTotal,
			Help: "Cells by kind (exported, submitted, masked).",
		}, []string{"kind"}),
		tableCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.TablesTotal,
			Help: "Processed tables by final state.",
		}, []string{"state"}),
		submitCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.SubmissionTotal,
			Help: "Masking jobs accepted by the service.",
		}),
	}

	for _, c := range []prometheus.Collector{b.stepCounter, b.stepDuration, b.cellCounter, b.tableCounter, b.submitCounter} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.CellsTotal:
		b.cellCounter.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.TablesTotal:
		b.tableCounter.WithLabelValues(labels["state"]).Add(delta)
	case metrics.SubmissionTotal:
		b.submitCounter.Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
