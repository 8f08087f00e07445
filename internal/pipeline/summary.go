package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// State is the processing state of one table
type State string

const (
	StateInit       State = "INIT"
	StatePaginating State = "PAGINATING"
	StateSubmitting State = "SUBMITTING"
	StateResolving  State = "RESOLVING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Timing components recorded per table
const (
	TimeFetch  = "fetch"
	TimeSubmit = "submit"
	TimePoll   = "poll"
	TimeMerge  = "merge"
)

// TableResult tracks the outcome of one table
type TableResult struct {
	Table       string
	State       State
	FailedIn    State // state the table was in when it failed
	Rows        int
	Submissions int
	Resolved    int // tracking ids merged into the report
	MaskedCells int
	Report      string
	Published   string
	Err         error

	StartTime time.Time
	EndTime   time.Time
	timings   map[string]time.Duration
}

func newTableResult(table string, now time.Time) *TableResult {
	return &TableResult{
		Table:     table,
		State:     StateInit,
		StartTime: now,
		timings:   make(map[string]time.Duration),
	}
}

// AddTime accumulates time spent in a component
func (r *TableResult) AddTime(component string, d time.Duration) {
	if r.timings == nil {
		r.timings = make(map[string]time.Duration)
	}
	r.timings[component] += d
}

// GetDuration returns the time spent in a component
func (r *TableResult) GetDuration(component string) time.Duration {
	return r.timings[component]
}

// Duration returns the wall clock time of the table
func (r *TableResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Failed reports whether the table ended in FAILED
func (r *TableResult) Failed() bool {
	return r.State == StateFailed
}

// Summary is the outcome of a run
type Summary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Tables    []*TableResult
}

// Succeeded counts tables that reached DONE
func (s *Summary) Succeeded() int {
	n := 0
	for _, t := range s.Tables {
		if t.State == StateDone {
			n++
		}
	}
	return n
}

// FailedTables counts tables that ended in FAILED
func (s *Summary) FailedTables() int {
	n := 0
	for _, t := range s.Tables {
		if t.Failed() {
			n++
		}
	}
	return n
}

// Table returns the result for table, or nil
func (s *Summary) Table(name string) *TableResult {
	for _, t := range s.Tables {
		if t.Table == name {
			return t
		}
	}
	return nil
}

// Print writes a human readable run summary
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 80))
	fmt.Fprintf(w, "MASKING SUMMARY (run %s)\n", s.RunID)
	fmt.Fprintf(w, "%s\n", strings.Repeat("=", 80))

	totalRows, totalCells := 0, 0
	for _, t := range s.Tables {
		fmt.Fprintf(w, "\n%s: %s\n", t.Table, t.State)
		fmt.Fprintf(w, "  Rows Exported:         %d\n", t.Rows)
		fmt.Fprintf(w, "  Masking Jobs:          %d submitted, %d resolved\n", t.Submissions, t.Resolved)
		fmt.Fprintf(w, "  Masked Cells:          %d\n", t.MaskedCells)
		fmt.Fprintf(w, "  Processing Time:       %.2f seconds\n", t.Duration().Seconds())
		if t.Report != "" {
			fmt.Fprintf(w, "  Report:                %s\n", t.Report)
		}
		if t.Published != "" {
			fmt.Fprintf(w, "  Published:             %s\n", t.Published)
		}
		if t.Err != nil {
			fmt.Fprintf(w, "  Failed In:             %s\n", t.FailedIn)
			fmt.Fprintf(w, "  Error:                 %v\n", t.Err)
		}

		fmt.Fprintf(w, "    %-12s %10s\n", "Component", "Time")
		for _, c := range []string{TimeFetch, TimeSubmit, TimePoll, TimeMerge} {
			fmt.Fprintf(w, "    %-12s %9.2fs\n", c, t.GetDuration(c).Seconds())
		}

		totalRows += t.Rows
		totalCells += t.MaskedCells
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 50))
	fmt.Fprintf(w, "Tables:          %d done, %d failed\n", s.Succeeded(), s.FailedTables())
	fmt.Fprintf(w, "Rows Exported:   %d\n", totalRows)
	fmt.Fprintf(w, "Masked Cells:    %d\n", totalCells)
	fmt.Fprintf(w, "Elapsed:         %.2f seconds\n", s.EndTime.Sub(s.StartTime).Seconds())
}
