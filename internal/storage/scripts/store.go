// Package scripts implements interfaces.ScriptStore using SurrealDB,
// generalizing the teacher's UserStore get/put/delete idiom (including its
// UPSERT-with-retry write path) to the Script entity.
package scripts

import (
	"context"
	"fmt"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/interfaces"
	"github.com/bobmcallan/transformd/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Store implements interfaces.ScriptStore using SurrealDB.
type Store struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// New creates a Store bound to an already-connected SurrealDB client.
func New(db *surrealdb.DB, logger *common.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Get(ctx context.Context, id string) (*models.Script, error) {
	record, err := surrealdb.Select[models.Script](ctx, s.db, surrealmodels.NewRecordID("scripts", id))
	if err != nil {
		return nil, fmt.Errorf("failed to select script: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	return record, nil
}

func (s *Store) Put(ctx context.Context, script *models.Script) error {
	sql := "UPSERT $rid CONTENT $script"
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("scripts", script.ID),
		"script": script,
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.Script](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to put script after retries: %w", lastErr)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := surrealdb.Delete[models.Script](ctx, s.db, surrealmodels.NewRecordID("scripts", id))
	return err
}

var _ interfaces.ScriptStore = (*Store)(nil)
