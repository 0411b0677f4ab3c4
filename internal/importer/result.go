package importer

import "fmt"

// Reason explains why an import was a benign no-op.
type Reason string

const (
	// ReasonNoParts means the indicator has no pregen part bindings.
	ReasonNoParts Reason = "no_parts"
	// ReasonNoMatchingColumns means every bound column was absent from its
	// file's header, so there was nothing to import.
	ReasonNoMatchingColumns Reason = "no_matching_columns"
)

// Result is the outcome of one import run. When Applied is false and the run
// returned no error, Reason says why nothing was written.
type Result struct {
	Applied bool   `json:"applied"`
	Count   int    `json:"count"`
	Reason  Reason `json:"reason,omitempty"`
}

// FileOpenError reports a pregen file that could not be opened. It aborts the
// whole import for the indicator; prior observations are left untouched and
// the caller decides whether to retry after fixing the path.
type FileOpenError struct {
	Path string
	Err  error
}

func (e *FileOpenError) Error() string {
	return fmt.Sprintf("unable to open pregen file %q: %v", e.Path, e.Err)
}

func (e *FileOpenError) Unwrap() error { return e.Err }
