package topten

import (
	"errors"
	"fmt"
)

var (
	ErrConfigurationMissing = errors.New("topten: configuration missing")
	ErrInvalidConfiguration = errors.New("topten: invalid configuration")
)

// ExtractionError reports that tallies for one item kind could not be
// computed. The run continues with an empty ranking for that kind.
type ExtractionError struct {
	Kind Kind
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("topten: extract %s tallies: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ReconcileError reports a failed collection store operation. It ends the run.
type ReconcileError struct {
	Collection string
	Op         string
	Err        error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("topten: reconcile collection %q: %s: %v", e.Collection, e.Op, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }
