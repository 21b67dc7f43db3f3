// Package app wires transformd's components together: configuration,
// logging, the SurrealDB-backed queue and script stores, the pgx-backed
// tabular store, the sandbox, and the job processor and supervisor built
// on top of them.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/interfaces"
	"github.com/bobmcallan/transformd/internal/processor"
	"github.com/bobmcallan/transformd/internal/sandbox"
	"github.com/bobmcallan/transformd/internal/storage/queue"
	"github.com/bobmcallan/transformd/internal/storage/scripts"
	"github.com/bobmcallan/transformd/internal/storage/surrealdb"
	"github.com/bobmcallan/transformd/internal/storage/tabular"
	"github.com/bobmcallan/transformd/internal/supervisor"
)

// App holds every initialized component. It is the shared core used by
// cmd/transformd.
type App struct {
	Config *common.Config
	Logger *common.Logger

	Queue   interfaces.QueueStore
	Scripts interfaces.ScriptStore
	Data    interfaces.DataStore
	Sandbox interfaces.Sandboxer

	Processor  *processor.JobProcessor
	Supervisor *supervisor.WorkerSupervisor

	StartupTime time.Time

	tabularStore *tabular.Store
}

// NewApp loads configuration and connects every storage and execution
// dependency. configPath may be empty, in which case the file named by
// TRANSFORMD_CONFIG is used; with neither, only environment overrides and
// defaults apply.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	startupStart := time.Now()

	if configPath == "" {
		configPath = os.Getenv("TRANSFORMD_CONFIG")
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	db, err := surrealdb.Connect(ctx, logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue store: %w", err)
	}
	queueStore := queue.New(db, logger)
	scriptStore := scripts.New(db, logger)

	tabularStore, err := tabular.New(ctx, logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data store: %w", err)
	}

	sb, err := sandbox.New(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sandbox: %w", err)
	}

	jobProcessor := processor.New(queueStore, scriptStore, tabularStore, sb, logger, config)
	workerSupervisor := supervisor.New(queueStore, jobProcessor, logger, config)

	a := &App{
		Config:       config,
		Logger:       logger,
		Queue:        queueStore,
		Scripts:      scriptStore,
		Data:         tabularStore,
		Sandbox:      sb,
		Processor:    jobProcessor,
		Supervisor:   workerSupervisor,
		StartupTime:  startupStart,
		tabularStore: tabularStore,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("app initialized")
	return a, nil
}

// Run starts the supervisor's poll-and-dispatch loop. It blocks until ctx
// is cancelled and every in-flight job has returned.
func (a *App) Run(ctx context.Context) error {
	return a.Supervisor.Run(ctx, interfaces.OrphanMarkFailed)
}

// Close stops the supervisor and closes the PostgreSQL pool. The SurrealDB
// connection behind the queue and script stores is not closed.
func (a *App) Close() {
	if a.Supervisor != nil {
		a.Supervisor.Stop()
	}
	if a.tabularStore != nil {
		a.tabularStore.Close()
		a.tabularStore = nil
	}
}
