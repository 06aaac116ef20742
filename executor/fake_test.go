package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// fakeLanguage implements Language for testing namespace logic without a
// real interpreter. Code is a list of "name=value" statements; "panic" and
// "fail" trigger the corresponding failure paths.
type fakeLanguage struct {
	created int
}

func (l *fakeLanguage) Name() string { return "fake" }

func (l *fakeLanguage) NewInterpreter(env Env) (Interpreter, error) {
	l.created++
	return &fakeInterpreter{vars: make(map[string]string), env: env}, nil
}

type fakeInterpreter struct {
	vars   map[string]string
	env    Env
	closed bool
}

func (f *fakeInterpreter) Exec(ctx context.Context, code, resultName string) (Outcome, error) {
	var out Outcome
	for _, stmt := range strings.Split(code, ";") {
		stmt = strings.TrimSpace(stmt)
		switch {
		case stmt == "":
		case stmt == "panic":
			panic("boom")
		case stmt == "fail":
			return out, &EvalError{Kind: KindRuntime, Message: "failed", Trace: "Traceback: failed"}
		case strings.HasPrefix(stmt, "print "):
			out.Output += strings.TrimPrefix(stmt, "print ") + "\n"
		default:
			name, value, ok := strings.Cut(stmt, "=")
			if !ok {
				return out, &EvalError{Kind: KindSyntax, Message: fmt.Sprintf("bad statement %q", stmt)}
			}
			name = strings.TrimSpace(name)
			f.vars[name] = strings.TrimSpace(value)
			if name == resultName {
				out.Value, out.Bound = f.vars[name], true
			}
		}
	}
	return out, nil
}

func (f *fakeInterpreter) Import(ctx context.Context, module string) error {
	if module == "missing" {
		return NewImportError(module, nil)
	}
	f.vars[module] = "<module>"
	return nil
}

func (f *fakeInterpreter) Names() []string {
	names := make([]string, 0, len(f.vars))
	for k := range f.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (f *fakeInterpreter) Close() error {
	if f.closed {
		return errors.New("closed twice")
	}
	f.closed = true
	return nil
}
