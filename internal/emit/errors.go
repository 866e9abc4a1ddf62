package emit

import (
	"errors"
	"fmt"

	"github.com/roach88/hwpipe/internal/ir"
)

// IOError reports a failure to write an output sink.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("write output: %v", e.Err)
	}
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ExportError reports an operation that cannot be expressed in Verilog,
// typically because it was never lowered.
type ExportError struct {
	Op      string
	Loc     ir.Location
	Message string
}

func (e *ExportError) Error() string {
	if e.Loc.IsKnown() {
		return fmt.Sprintf("%s: cannot export '%s': %s", e.Loc, e.Op, e.Message)
	}
	return fmt.Sprintf("cannot export '%s': %s", e.Op, e.Message)
}

func exportErrorf(op *ir.Operation, format string, args ...any) *ExportError {
	return &ExportError{Op: op.Name(), Loc: op.Loc(), Message: fmt.Sprintf(format, args...)}
}

// IsExportError reports whether err wraps an ExportError.
func IsExportError(err error) bool {
	var ee *ExportError
	return errors.As(err, &ee)
}

// IsIOError reports whether err wraps an IOError.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
