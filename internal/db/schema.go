package db

import (
	"context"
	_ "embed"

	"powerwatch/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables if they do not exist. Safe to run on every start.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return types.NewAppError(types.ErrCodeStoreWrite, "failed to apply schema", err)
	}
	return nil
}
