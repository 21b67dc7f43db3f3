package sandbox

import (
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

// blockedNames is checked by compiler.go's static pre-check. None of
// these are predeclared below, and Starlark's universe defines none of
// them except getattr, which this check is therefore what keeps out;
// rejecting the rest by name as well keeps the check meaningful if
// predeclared() below is ever extended carelessly.
var blockedNames = map[string]bool{
	"eval":       true,
	"exec":       true,
	"compile":    true,
	"open":       true,
	"getattr":    true,
	"setattr":    true,
	"delattr":    true,
	"globals":    true,
	"locals":     true,
	"vars":       true,
	"breakpoint": true,
}

// predeclared returns the symbol table a transform script's thread
// executes against. df is bound by the caller per invocation; everything
// else here is shared, read-only, and safe: there is no load() path to
// anything beyond this set.
func predeclared(df starlark.Value) starlark.StringDict {
	return starlark.StringDict{
		"df":   df,
		"math": math.Module,
		"time": time.Module,
	}
}
