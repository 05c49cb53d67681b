package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("PAGEDRAFT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PAGEDRAFT_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	require.NoError(t, db.PingContext(ctx), "ping postgres")
	require.NoError(t, resetPublicSchema(ctx, db), "reset schema")

	migrationsDir := filepath.Join("..", "..", "db", "migrations")

	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir), "apply up migrations (pass 1)")
	require.NoError(t, applyDownMigrations(ctx, db, migrationsDir), "apply down migrations")

	_, err = db.ExecContext(ctx, `DELETE FROM schema_migrations`)
	require.NoError(t, err, "clear schema_migrations")

	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir), "apply up migrations (pass 2)")
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

// applyDownMigrations runs the down files newest first.
func applyDownMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	downs, err := migrationFiles(migrationsDir, ".down.sql")
	if err != nil {
		return err
	}

	for i := len(downs) - 1; i >= 0; i-- {
		sqlBytes, err := os.ReadFile(downs[i])
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return err
		}
	}

	return nil
}
