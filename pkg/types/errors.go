package types

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error so the driver can decide between aborting
// the run and aborting a single table.
type Kind int

const (
	KindUnknown Kind = iota
	KindSetup
	KindConfig
	KindValidation
	KindSubmission
	KindPoll
	KindWarehouse
	KindReport
	KindPublish
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindSetup:      "setup",
	KindConfig:     "config",
	KindValidation: "validation",
	KindSubmission: "submission",
	KindPoll:       "poll",
	KindWarehouse:  "warehouse",
	KindReport:     "report",
	KindPublish:    "publish",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// AbortsRun reports whether an error of this kind stops the whole run
func (k Kind) AbortsRun() bool {
	return k == KindSetup || k == KindConfig
}

// Error is a classified pipeline error.
type Error struct {
	Kind  Kind
	Table string // empty for run-level errors
	Op    string // e.g. "submit", "poll", "resolve mapping"
	Err   error
}

func (e *Error) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s error in table %q (%s): %v", e.Kind, e.Table, e.Op, e.Err)
	}
	return fmt.Sprintf("%s error (%s): %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a new Error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithTable returns err tagged with a table name when it is an *Error
// that does not carry one yet.
func WithTable(err error, table string) error {
	var e *Error
	if errors.As(err, &e) && e.Table == "" {
		tagged := *e
		tagged.Table = table
		return &tagged
	}
	return err
}

// KindOf extracts the kind of err, or KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
