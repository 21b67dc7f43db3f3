package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bobmcallan/transformd/internal/models"
	"go.starlark.net/syntax"
)

// fileOptions relaxes Starlark's default dialect just enough to match the
// transform language original_source's scripts are written in: `while` is
// needed so the resource monitor (not the parser) is what terminates an
// infinite loop (S3), and recursive def-of-self calls are otherwise
// disallowed under the default resolver options.
var fileOptions = &syntax.FileOptions{While: true, Recursion: true}

// importStmtRe rejects Python-style import statements before they ever
// reach the parser: `import os` is not valid Starlark syntax at all, so
// without this check it would fail as a generic syntax error instead of
// the explicit "not allowed" rejection S2 requires.
var importStmtRe = regexp.MustCompile(`(?m)^\s*(import|from)\s+\S`)

// compile runs the static pre-check over code and, if it passes, returns
// source guaranteed to define a top-level transform(df) function — wrapping
// bare statements the same way restricted_compiler.py._wrap_transform_function
// does for RestrictedPython.
func compile(code string) (string, *Error) {
	if err := staticCheck(code); err != nil {
		return "", err
	}

	wrapped := wrapIfBare(code)

	// Re-parse the wrapped form: a bare-statement script that was
	// syntactically fine on its own could still fail once indented into
	// a function body (e.g. a top-level `load` squeezed in by a
	// mismatched special case), so the check that matters is the one
	// against what will actually execute.
	if _, err := fileOptions.Parse("<transform>", wrapped, 0); err != nil {
		return "", newErrorf(models.ErrStaticReject, "syntax error: %v", err)
	}

	return wrapped, nil
}

// staticCheck parses code and rejects import statements, load() statements,
// and any underscore-prefixed or blocklisted identifier reference that
// walkExpr reaches (identifiers inside dict literals, comprehensions and
// lambdas are not checked), as defense in depth alongside Starlark's own
// lack of exec/eval/open builtins.
func staticCheck(code string) *Error {
	if importStmtRe.MatchString(code) {
		return newErrorf(models.ErrStaticReject, "import statements are not allowed: transforms receive data only through df")
	}

	file, err := fileOptions.Parse("<transform>", code, 0)
	if err != nil {
		return newErrorf(models.ErrStaticReject, "syntax error: %v", err)
	}

	var walkErr *Error
	walkStmts(file.Stmts, func(stmt syntax.Stmt) bool {
		if walkErr != nil {
			return false
		}
		if load, ok := stmt.(*syntax.LoadStmt); ok {
			walkErr = newErrorf(models.ErrStaticReject, "load(%q) is not allowed: transforms receive data only through df", load.Module.Value)
			return false
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}

	walkExprsInStmts(file.Stmts, func(expr syntax.Expr) bool {
		if walkErr != nil {
			return false
		}
		ident, ok := expr.(*syntax.Ident)
		if !ok {
			return true
		}
		if blockedNames[ident.Name] {
			walkErr = newErrorf(models.ErrStaticReject, "%q is not allowed", ident.Name)
			return false
		}
		if strings.HasPrefix(ident.Name, "_") {
			walkErr = newErrorf(models.ErrStaticReject, "identifiers beginning with '_' are not allowed: %q", ident.Name)
			return false
		}
		return true
	})

	return walkErr
}

// hasTransformDef reports whether file defines a top-level function
// literally named transform.
func hasTransformDef(file *syntax.File) bool {
	for _, stmt := range file.Stmts {
		if def, ok := stmt.(*syntax.DefStmt); ok && def.Name.Name == "transform" {
			return true
		}
	}
	return false
}

// wrapIfBare indents code and wraps it in a transform(df) function body
// ending in `return df`, unless code already defines one.
func wrapIfBare(code string) string {
	file, err := fileOptions.Parse("<transform>", code, 0)
	if err == nil && hasTransformDef(file) {
		return code
	}

	var b strings.Builder
	b.WriteString("def transform(df):\n")
	lines := strings.Split(code, "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "    %s\n", line)
	}
	b.WriteString("    return df\n")
	return b.String()
}

// walkStmts visits every statement in the tree rooted at stmts, including
// nested bodies, depth-first. visit returns false to stop early.
func walkStmts(stmts []syntax.Stmt, visit func(syntax.Stmt) bool) bool {
	for _, stmt := range stmts {
		if !visit(stmt) {
			return false
		}
		var nested [][]syntax.Stmt
		switch s := stmt.(type) {
		case *syntax.DefStmt:
			nested = append(nested, s.Body)
		case *syntax.IfStmt:
			nested = append(nested, s.True, s.False)
		case *syntax.ForStmt:
			nested = append(nested, s.Body)
		case *syntax.WhileStmt:
			nested = append(nested, s.Body)
		}
		for _, body := range nested {
			if !walkStmts(body, visit) {
				return false
			}
		}
	}
	return true
}

// walkExprsInStmts visits every expression reachable from stmts (including
// those inside nested statement bodies), depth-first.
func walkExprsInStmts(stmts []syntax.Stmt, visit func(syntax.Expr) bool) bool {
	ok := true
	walkStmts(stmts, func(stmt syntax.Stmt) bool {
		var exprs []syntax.Expr
		switch s := stmt.(type) {
		case *syntax.AssignStmt:
			exprs = append(exprs, s.LHS, s.RHS)
		case *syntax.ExprStmt:
			exprs = append(exprs, s.X)
		case *syntax.ReturnStmt:
			if s.Result != nil {
				exprs = append(exprs, s.Result)
			}
		case *syntax.IfStmt:
			exprs = append(exprs, s.Cond)
		case *syntax.WhileStmt:
			exprs = append(exprs, s.Cond)
		case *syntax.ForStmt:
			exprs = append(exprs, s.Vars, s.X)
		case *syntax.DefStmt:
			exprs = append(exprs, s.Params...)
		}
		for _, e := range exprs {
			if e == nil {
				continue
			}
			if !walkExpr(e, visit) {
				ok = false
				return false
			}
		}
		return true
	})
	return ok
}

// walkExpr visits expr and its sub-expressions, depth-first. It descends
// into operator, paren, index, dot, call, list, tuple, slice and
// conditional expressions; dict literals, comprehensions and lambdas are
// visited themselves but their contents are not.
func walkExpr(expr syntax.Expr, visit func(syntax.Expr) bool) bool {
	if expr == nil {
		return true
	}
	if !visit(expr) {
		return false
	}
	switch e := expr.(type) {
	case *syntax.BinaryExpr:
		return walkExpr(e.X, visit) && walkExpr(e.Y, visit)
	case *syntax.UnaryExpr:
		return walkExpr(e.X, visit)
	case *syntax.ParenExpr:
		return walkExpr(e.X, visit)
	case *syntax.IndexExpr:
		return walkExpr(e.X, visit) && walkExpr(e.Y, visit)
	case *syntax.DotExpr:
		return walkExpr(e.X, visit)
	case *syntax.CallExpr:
		if !walkExpr(e.Fn, visit) {
			return false
		}
		for _, arg := range e.Args {
			if !walkExpr(arg, visit) {
				return false
			}
		}
	case *syntax.ListExpr:
		for _, el := range e.List {
			if !walkExpr(el, visit) {
				return false
			}
		}
	case *syntax.TupleExpr:
		for _, el := range e.List {
			if !walkExpr(el, visit) {
				return false
			}
		}
	case *syntax.SliceExpr:
		return walkExpr(e.X, visit) && walkExpr(e.Lo, visit) && walkExpr(e.Hi, visit) && walkExpr(e.Step, visit)
	case *syntax.CondExpr:
		return walkExpr(e.Cond, visit) && walkExpr(e.True, visit) && walkExpr(e.False, visit)
	}
	return true
}
