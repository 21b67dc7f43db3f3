// Package surrealdb holds the SurrealDB connection bootstrap shared by the
// queue and scripts stores.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/surrealdb/surrealdb.go"
)

// Connect opens a SurrealDB connection, signs in, selects the configured
// namespace/database, and ensures the tables the queue and scripts stores
// depend on exist (SurrealDB v3 errors on querying an undefined table).
func Connect(ctx context.Context, logger *common.Logger, config *common.Config) (*surrealdb.DB, error) {
	db, err := surrealdb.New(config.Queue.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Queue.Username,
		"pass": config.Queue.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Queue.Namespace, config.Queue.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	tables := []string{"jobs", "scripts", "counters"}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	logger.Info().
		Str("address", config.Queue.Address).
		Str("namespace", config.Queue.Namespace).
		Str("database", config.Queue.Database).
		Msg("SurrealDB queue store initialized")

	return db, nil
}
