package export

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"sql2parquet/internal/schema"
)

// Error kinds. Every export failure wraps exactly one of them.
var (
	// ErrUnsupportedType: a column matches no mapping rule. Raised before any
	// row is fetched.
	ErrUnsupportedType = schema.ErrUnsupportedType
	// ErrFetch: the source cursor failed mid-stream.
	ErrFetch = errors.New("fetch failed")
	// ErrWrite: a batch could not be converted or appended, or a segment
	// could not be finalized.
	ErrWrite = errors.New("write failed")
	// ErrRotation: the next segment could not be opened.
	ErrRotation = errors.New("rotation failed")
	// ErrCanceled: the context was canceled between batches.
	ErrCanceled = errors.New("export canceled")
)

// Exit codes per kind.
const (
	ExitOK              = 0
	ExitOther           = 1
	ExitUnsupportedType = 2
	ExitFetch           = 3
	ExitWrite           = 4
	ExitRotation        = 5
	ExitCanceled        = 130
)

// Error reports a failed export with enough context for manual cleanup.
type Error struct {
	Kind error
	// Rows is the number of rows written before the failure.
	Rows int64
	// Segment and Seq identify the segment that was open (or last opened).
	Segment string
	Seq     int
	Err     error
}

func (e *Error) Error() string {
	if e.Seq == 0 {
		return fmt.Sprintf("%v after %d rows: %v", e.Kind, e.Rows, e.Err)
	}
	return fmt.Sprintf("%v after %d rows (segment %d %s): %v", e.Kind, e.Rows, e.Seq, e.Segment, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's kind, so errors.Is(err, ErrFetch) works on the
// wrapper as well as on the cause chain.
func (e *Error) Is(target error) bool { return target == e.Kind }

var kinds = []error{ErrCanceled, ErrUnsupportedType, ErrFetch, ErrWrite, ErrRotation}

// KindOf returns the kind of err, or nil when it carries none.
func KindOf(err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case ErrCanceled:
		return ExitCanceled
	case ErrUnsupportedType:
		return ExitUnsupportedType
	case ErrFetch:
		return ExitFetch
	case ErrWrite:
		return ExitWrite
	case ErrRotation:
		return ExitRotation
	}
	if errors.Is(err, context.Canceled) {
		return ExitCanceled
	}
	return ExitOther
}
