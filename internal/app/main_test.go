package app

import (
	"fmt"
	"os"
	"testing"

	"github.com/bobmcallan/transformd/internal/sandbox"
)

// TestMain lets this package's compiled test binary double as the sandbox
// runner, exactly as cmd/transformd's binary does in production: NewApp's
// sandbox.New re-invokes os.Executable() with sandbox.RunnerArg, and this
// interception must run before the testing package's own flag parsing.
func TestMain(m *testing.M) {
	if len(os.Args) >= 2 && os.Args[1] == sandbox.RunnerArg {
		if err := sandbox.Run(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}
