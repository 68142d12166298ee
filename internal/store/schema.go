package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// migrate applies the schema and records its version. A database written by
// a newer build is refused rather than silently downgraded.
func migrate(ctx context.Context, db *sql.DB) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}

		version, err := readVersion(ctx, tx)
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := tx.ExecContext(ctx, "INSERT INTO metadata(key, value) VALUES('schema_version', ?)", strconv.Itoa(schemaVersion)); err != nil {
				return fmt.Errorf("insert schema version: %w", err)
			}
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case version > schemaVersion:
			return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
		case version < schemaVersion:
			if _, err := tx.ExecContext(ctx, "UPDATE metadata SET value = ? WHERE key = 'schema_version'", strconv.Itoa(schemaVersion)); err != nil {
				return fmt.Errorf("update schema version: %w", err)
			}
		}
		return nil
	})
}

func readVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var raw string
	err := tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version: %w", err)
	}
	return version, nil
}

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
