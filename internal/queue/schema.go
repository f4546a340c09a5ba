package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes shape. Databases
// created by other versions are rejected rather than migrated in place.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database on disk was created by an
// incompatible version.
var ErrSchemaMismatch = errors.New("database schema mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	ctx = ensureContext(ctx)
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, this build expects %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}
