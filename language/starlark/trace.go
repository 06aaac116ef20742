package starlark

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caffeineduck/evalbridge/executor"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// compileError converts scanner, parser and resolver failures.
func compileError(err error) error {
	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return &executor.EvalError{
			Kind:    executor.KindSyntax,
			Message: synErr.Msg,
			Trace:   locate(synErr.Pos, "SyntaxError", synErr.Msg),
			Err:     err,
		}
	}

	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) && len(resolveErrs) > 0 {
		lines := make([]string, 0, len(resolveErrs))
		for _, e := range resolveErrs {
			label := "SyntaxError"
			if strings.HasPrefix(e.Msg, "undefined:") {
				label = "NameError"
			}
			lines = append(lines, locate(e.Pos, label, e.Msg))
		}
		return &executor.EvalError{
			Kind:    executor.KindSyntax,
			Message: resolveErrs[0].Msg,
			Trace:   strings.Join(lines, "\n"),
			Err:     err,
		}
	}

	return &executor.EvalError{
		Kind:    executor.KindSyntax,
		Message: err.Error(),
		Trace:   "SyntaxError: " + err.Error(),
		Err:     err,
	}
}

// runtimeError converts a failure raised while the program ran.
func runtimeError(err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return &executor.EvalError{
			Kind:    executor.KindRuntime,
			Message: evalErr.Msg,
			Trace:   evalErr.Backtrace(),
			Err:     err,
		}
	}
	return &executor.EvalError{
		Kind:    executor.KindRuntime,
		Message: err.Error(),
		Trace:   "Error: " + err.Error(),
		Err:     err,
	}
}

func locate(pos syntax.Position, label, msg string) string {
	return fmt.Sprintf("File %q, line %d, col %d\n%s: %s", pos.Filename(), pos.Line, pos.Col, label, msg)
}
