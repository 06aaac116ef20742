package golang

import (
	"go/scanner"
	"go/token"
	"path"
	"strconv"
)

type lexeme struct {
	tok token.Token
	lit string
}

type importSpec struct {
	alias string
	path  string
}

func (s importSpec) name() string {
	if s.alias != "" {
		return s.alias
	}
	return path.Base(s.path)
}

// topLevel summarizes the top-level statements of a fragment.
type topLevel struct {
	// assigned holds names unconditionally assigned at top level.
	assigned map[string]bool
	// declared holds names the fragment introduces.
	declared []string
	imports  []importSpec
}

var assignOps = map[token.Token]bool{
	token.ASSIGN: true, token.DEFINE: true,
	token.ADD_ASSIGN: true, token.SUB_ASSIGN: true, token.MUL_ASSIGN: true,
	token.QUO_ASSIGN: true, token.REM_ASSIGN: true,
	token.AND_ASSIGN: true, token.OR_ASSIGN: true, token.XOR_ASSIGN: true,
	token.SHL_ASSIGN: true, token.SHR_ASSIGN: true, token.AND_NOT_ASSIGN: true,
	token.INC: true, token.DEC: true,
}

// scanTopLevel tokenizes src and inspects statements at nesting depth zero.
// Scan errors are ignored; the interpreter reports them.
func scanTopLevel(src string) topLevel {
	top := topLevel{assigned: make(map[string]bool)}
	for _, stmt := range splitStatements(lex(src)) {
		top.inspect(stmt)
	}
	return top
}

func lex(src string) []lexeme {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))

	var s scanner.Scanner
	s.Init(file, []byte(src), nil, 0)

	var out []lexeme
	for {
		_, tok, lit := s.Scan()
		if tok == token.EOF {
			return out
		}
		out = append(out, lexeme{tok, lit})
	}
}

// splitStatements splits on semicolons outside any brackets.
func splitStatements(lexemes []lexeme) [][]lexeme {
	var stmts [][]lexeme
	depth, start := 0, 0
	for i, l := range lexemes {
		switch l.tok {
		case token.LPAREN, token.LBRACE, token.LBRACK:
			depth++
		case token.RPAREN, token.RBRACE, token.RBRACK:
			depth--
		case token.SEMICOLON:
			if depth == 0 {
				if i > start {
					stmts = append(stmts, lexemes[start:i])
				}
				start = i + 1
			}
		}
	}
	if start < len(lexemes) {
		stmts = append(stmts, lexemes[start:])
	}
	return stmts
}

func (t *topLevel) inspect(stmt []lexeme) {
	switch stmt[0].tok {
	case token.VAR, token.CONST:
		for _, spec := range groupSpecs(stmt[1:]) {
			for _, name := range identList(spec) {
				t.assigned[name] = true
				t.declared = append(t.declared, name)
			}
		}
	case token.TYPE:
		for _, spec := range groupSpecs(stmt[1:]) {
			if spec[0].tok == token.IDENT {
				t.declared = append(t.declared, spec[0].lit)
			}
		}
	case token.FUNC:
		// Methods and function literals start with "(".
		if len(stmt) > 1 && stmt[1].tok == token.IDENT {
			t.declared = append(t.declared, stmt[1].lit)
		}
	case token.IMPORT:
		for _, spec := range groupSpecs(stmt[1:]) {
			if is, ok := parseImport(spec); ok {
				t.imports = append(t.imports, is)
				t.declared = append(t.declared, is.name())
			}
		}
	case token.IDENT:
		names := identList(stmt)
		if len(names)*2-1 >= len(stmt) {
			return
		}
		op := stmt[len(names)*2-1].tok
		if !assignOps[op] {
			return
		}
		for _, name := range names {
			if name == "_" {
				continue
			}
			t.assigned[name] = true
			if op == token.DEFINE || op == token.ASSIGN {
				t.declared = append(t.declared, name)
			}
		}
	}
}

// groupSpecs returns the specs of a declaration body, which is either a
// single spec or a parenthesized group.
func groupSpecs(body []lexeme) [][]lexeme {
	if len(body) == 0 {
		return nil
	}
	if body[0].tok != token.LPAREN {
		return [][]lexeme{body}
	}
	end := len(body)
	if body[end-1].tok == token.RPAREN {
		end--
	}
	return splitStatements(body[1:end])
}

// identList returns the leading "a, b, c" identifiers of a statement.
func identList(stmt []lexeme) []string {
	var names []string
	for i := 0; i < len(stmt); i += 2 {
		if stmt[i].tok != token.IDENT {
			break
		}
		names = append(names, stmt[i].lit)
		if i+1 >= len(stmt) || stmt[i+1].tok != token.COMMA {
			break
		}
	}
	return names
}

func parseImport(spec []lexeme) (importSpec, bool) {
	var is importSpec
	i := 0
	if spec[0].tok == token.IDENT || spec[0].tok == token.PERIOD {
		is.alias = spec[0].lit
		if spec[0].tok == token.PERIOD {
			is.alias = "."
		}
		i++
	}
	if i >= len(spec) || spec[i].tok != token.STRING {
		return importSpec{}, false
	}
	p, err := strconv.Unquote(spec[i].lit)
	if err != nil {
		return importSpec{}, false
	}
	is.path = p
	return is, true
}
