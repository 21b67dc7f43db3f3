package interfaces

import (
	"context"

	"github.com/bobmcallan/transformd/internal/models"
)

// Sandboxer runs a transform script against a table in isolation.
// JobProcessor depends on this instead of the concrete sandbox package so
// tests can substitute a fake without spawning a real child process.
type Sandboxer interface {
	Execute(ctx context.Context, code string, table *models.Table) *models.ExecutionResult
}
