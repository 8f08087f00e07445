package types

import (
	"context"
	"fmt"
)

// DefaultMaxColumnsPerCall is the widest payload sent to the masking service
// in a single submission.
const DefaultMaxColumnsPerCall = 50

// RowBatch is one warehouse fetch at a fixed offset/limit
type RowBatch struct {
	Columns []string
	Rows    [][]interface{}
}

// Empty reports whether the batch carries no rows
func (b RowBatch) Empty() bool {
	return len(b.Rows) == 0
}

// ColumnRule holds the optional masking hints for one column position
type ColumnRule struct {
	Format    *string `json:"format,omitempty"`
	TokenName *string `json:"token_name,omitempty"`
}

// Mapping maps a zero-based column position to its rule.
// An empty mapping means auto-detect mode.
type Mapping map[int]ColumnRule

// Rule returns the rule for a position, or the zero rule
func (m Mapping) Rule(position int) ColumnRule {
	if m == nil {
		return ColumnRule{}
	}
	return m[position]
}

// Attribute locates a cell in the full export
type Attribute struct {
	Row            int    `json:"row"`
	Column         string `json:"column"`
	ColumnPosition int    `json:"column_position"`
}

// MaskEntry is a single cell submitted for masking
type MaskEntry struct {
	Value     string    `json:"value"`
	Attribute Attribute `json:"attribute"`
	Format    string    `json:"format,omitempty"`
	TokenName string    `json:"token_name,omitempty"`
}

// MaskedResult is a single masked cell returned by a finished job.
// A nil MaskedValue must never overwrite report content.
type MaskedResult struct {
	Attribute   Attribute
	MaskedValue *string
}

// String renders the result for logs
func (r MaskedResult) String() string {
	if r.MaskedValue == nil {
		return fmt.Sprintf("row=%d col=%d <none>", r.Attribute.Row, r.Attribute.ColumnPosition)
	}
	return fmt.Sprintf("row=%d col=%d %q", r.Attribute.Row, r.Attribute.ColumnPosition, *r.MaskedValue)
}

// ColumnRange is a half-open range of column positions [Start, End)
type ColumnRange struct {
	Start int
	End   int
}

// Width returns the number of columns in the range
func (r ColumnRange) Width() int {
	return r.End - r.Start
}

// Source reads row batches from the warehouse
type Source interface {
	Connect(ctx context.Context) error
	Close() error
	Fetch(ctx context.Context, table string, limit, offset int) (RowBatch, error)
}

// MaskingClient submits payloads to the masking service and checks job status
type MaskingClient interface {
	Submit(ctx context.Context, entries []MaskEntry) (string, error)
	Status(ctx context.Context, trackingID string) (JobStatus, error)
}

// JobState is the remote status of an async masking job
type JobState string

const (
	JobPending    JobState = "PENDING"
	JobInProgress JobState = "IN-PROGRESS"
	JobSuccess    JobState = "SUCCESS"
	JobFailed     JobState = "FAILED"
	JobUnknown    JobState = "UNKNOWN"
)

// ParseJobState normalises a status string returned by the service
func ParseJobState(s string) JobState {
	switch s {
	case "PENDING":
		return JobPending
	case "IN-PROGRESS", "IN_PROGRESS":
		return JobInProgress
	case "SUCCESS":
		return JobSuccess
	case "FAILED":
		return JobFailed
	default:
		return JobUnknown
	}
}

// Terminal reports whether no further polling is needed
func (s JobState) Terminal() bool {
	return s != JobPending && s != JobInProgress
}

// JobStatus is one status poll answer
type JobStatus struct {
	State   JobState
	Raw     string // status as sent by the service
	Results []MaskedResult
	Message string
}
