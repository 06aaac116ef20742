package starlark

import (
	"reflect"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// assigned reports whether a chunk that ran without error bound name. A
// binding by a top-level statement always counts. A binding nested in an
// if, for or while block counts when the value differs from before, since
// the block may not have run.
func assigned(stmts []syntax.Stmt, name string, before, after starlark.Value) bool {
	direct, nested := moduleBinding(stmts, name)
	if direct {
		return true
	}
	return nested && !sameValue(before, after)
}

// moduleBinding finds bindings of name outside function bodies.
func moduleBinding(stmts []syntax.Stmt, name string) (direct, nested bool) {
	block := func(body []syntax.Stmt) {
		if d, n := moduleBinding(body, name); d || n {
			nested = true
		}
	}

	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *syntax.AssignStmt:
			direct = direct || bindsName(s.LHS, name)
		case *syntax.DefStmt:
			direct = direct || s.Name.Name == name
		case *syntax.LoadStmt:
			for _, id := range s.To {
				direct = direct || id.Name == name
			}
		case *syntax.IfStmt:
			block(s.True)
			block(s.False)
		case *syntax.ForStmt:
			nested = nested || bindsName(s.Vars, name)
			block(s.Body)
		case *syntax.WhileStmt:
			block(s.Body)
		}
	}
	return direct, nested
}

func bindsName(e syntax.Expr, name string) bool {
	switch e := e.(type) {
	case *syntax.Ident:
		return e.Name == name
	case *syntax.ParenExpr:
		return bindsName(e.X, name)
	case *syntax.TupleExpr:
		for _, x := range e.List {
			if bindsName(x, name) {
				return true
			}
		}
	case *syntax.ListExpr:
		for _, x := range e.List {
			if bindsName(x, name) {
				return true
			}
		}
	}
	return false
}

// sameValue reports whether a and b are the identical value. Values whose
// dynamic type is not comparable are treated as different.
func sameValue(a, b starlark.Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
