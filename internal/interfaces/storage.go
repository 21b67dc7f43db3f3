// Package interfaces defines the service contracts shared between
// transformd's storage backends and its orchestration layer.
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/transformd/internal/models"
)

// QueueStore is the durable job queue backing QueueManager. Every status
// transition is a single statement so transitions stay atomic under the
// database's default isolation, and safe under concurrent supervisors.
type QueueStore interface {
	Enqueue(ctx context.Context, job *models.Job) error

	// FetchPending returns up to limit pending jobs ordered by created_at
	// ascending. Read-only — it never changes status.
	FetchPending(ctx context.Context, limit int) ([]*models.Job, error)

	// MarkRunning sets status=running, started_at=now, iff the row is
	// currently pending. Returns false (no error) if another supervisor
	// already claimed it.
	MarkRunning(ctx context.Context, id string) (bool, error)

	MarkCompleted(ctx context.Context, id string, rows int64, logText string) error

	// MarkFailed sets a terminal status drawn from {failed, timeout, killed}.
	MarkFailed(ctx context.Context, id string, kind string, errMsg string, logText string) error

	UpdateProgress(ctx context.Context, id string, rows int64, logText string) error

	GetJob(ctx context.Context, id string) (*models.Job, error)

	// IsCancelled reports whether the job's current status is killed.
	IsCancelled(ctx context.Context, id string) (bool, error)

	// ResetOrphaned recovers jobs left in status=running by a crashed
	// supervisor. policy selects the recovery behavior.
	ResetOrphaned(ctx context.Context, policy OrphanPolicy) (int, error)
}

// OrphanPolicy selects how ResetOrphaned treats jobs found running at
// supervisor startup.
type OrphanPolicy int

const (
	// OrphanMarkFailed marks orphaned running jobs failed with an
	// "orphaned" error message. This is the spec's documented default.
	OrphanMarkFailed OrphanPolicy = iota
	// OrphanRequeue resets orphaned running jobs back to pending so a
	// supervisor picks them up again.
	OrphanRequeue
)

// ScriptStore is the read path for user transformation source. The core
// only ever reads CodeText, and only at job dispatch time.
type ScriptStore interface {
	Get(ctx context.Context, id string) (*models.Script, error)
	Put(ctx context.Context, script *models.Script) error
	Delete(ctx context.Context, id string) error
}

// ColumnSchema describes one column as reported by DataStore.Schema.
type ColumnSchema struct {
	Name     string
	Type     string
	Nullable bool
	Default  string
}

// WriteMode selects how DataStore.WriteTable behaves toward an existing
// destination table.
type WriteMode int

const (
	WriteReplace WriteMode = iota
	WriteAppend
	WriteFail
)

// DataStore is every read and write against externally managed tables,
// plus the integrity checks that close SQL-injection avenues.
type DataStore interface {
	ListTables(ctx context.Context) ([]string, error)
	Schema(ctx context.Context, name string) ([]ColumnSchema, error)
	RowCount(ctx context.Context, name string) (int64, error)
	Preview(ctx context.Context, name string, limit int) (total int64, table *models.Table, err error)
	ReadChunk(ctx context.Context, name string, limit, offset int) (*models.Table, error)
	ReadTable(ctx context.Context, name string) (*models.Table, error)
	WriteTable(ctx context.Context, table *models.Table, name string, mode WriteMode) (rowsWritten int64, err error)
	TableExists(ctx context.Context, name string) (bool, error)
}

// Clock abstracts time.Now for deterministic tests of progress timestamps.
type Clock interface {
	Now() time.Time
}
