// Package metrics records pipeline counters and step timings through a
// pluggable Backend. The default backend discards everything, so callers
// never need to check whether metrics are configured.
package metrics

import "time"

const (
	StepTotal       = "maskreport_step_total"
	StepDuration    = "maskreport_step_duration_seconds"
	CellsTotal      = "maskreport_cells_total"
	TablesTotal     = "maskreport_tables_total"
	SubmissionTotal = "maskreport_submissions_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes collected metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil restores the no-op one.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep counts one execution of a pipeline step and its latency.
// Steps are fetch, submit, poll and merge.
func RecordStep(step string, err error, d time.Duration) {
	lbls := Labels{"step": step, "status": status(err)}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordCells adds to the cell counter of the given kind
// (exported, submitted, masked).
func RecordCells(kind string, delta int) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(CellsTotal, float64(delta), Labels{"kind": kind})
}

// RecordSubmission counts one accepted masking job.
func RecordSubmission() {
	backend.IncCounter(SubmissionTotal, 1, Labels{})
}

// RecordTable counts a finished table by its final state.
func RecordTable(state string) {
	backend.IncCounter(TablesTotal, 1, Labels{"state": state})
}
