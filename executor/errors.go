package executor

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("executor closed")
	ErrNamespaceClosed = errors.New("namespace closed")
	ErrModuleNotFound  = errors.New("module not found")
	ErrOutOfRange      = errors.New("value out of range")
)

// ErrorKind classifies an evaluation failure.
type ErrorKind string

const (
	KindSyntax  ErrorKind = "syntax"
	KindRuntime ErrorKind = "runtime"
	KindImport  ErrorKind = "import"
	KindPanic   ErrorKind = "panic"
)

// EvalError is a failed evaluation. Trace is the human-readable diagnostic
// sent back to the client.
type EvalError struct {
	Kind    ErrorKind
	Message string
	Trace   string
	Err     error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Trace returns the diagnostic for err: the trace of an *EvalError when it
// has one, otherwise the error message.
func Trace(err error) string {
	var evalErr *EvalError
	if errors.As(err, &evalErr) && evalErr.Trace != "" {
		return evalErr.Trace
	}
	return err.Error()
}

// NewImportError reports that module could not be resolved.
func NewImportError(module string, cause error) *EvalError {
	if cause == nil {
		cause = ErrModuleNotFound
	}
	msg := fmt.Sprintf("cannot import %q: %v", module, cause)
	return &EvalError{
		Kind:    KindImport,
		Message: msg,
		Trace:   "ImportError: " + msg,
		Err:     cause,
	}
}
