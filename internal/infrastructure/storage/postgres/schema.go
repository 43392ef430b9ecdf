package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Apply.
func Schema() string {
	return schema
}

// Apply creates missing tables and indexes. Safe to run on every start.
func Apply(ctx context.Context, pool *Pool) error {
	// Simple protocol so the multi-statement script runs in one round trip.
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return MapError(fmt.Errorf("acquire connection: %w", err), "schema", "")
	}
	defer conn.Release()

	if _, err := conn.Conn().PgConn().Exec(ctx, schema).ReadAll(); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
