// Package store persists the canonical copies of credentials,
// campaigns, metrics, and sync runs in an embedded SQLite database.
// Every write path is an idempotent upsert on the row's natural key, so
// replays after a crash or a repeated sync never duplicate rows.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit caps the WAL file at 64 MiB.
const walJournalSizeLimit = 67108864

// Store is the SQLite-backed persistence layer. It implements the
// credential, campaign, and sync-run store contracts the token manager
// and orchestrator consume.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	credStmts     credentialStatements
	campaignStmts campaignStatements
	runStmts      syncRunStatements
}

// Statement groups to avoid a flat list of fields.
type credentialStatements struct {
	get, getByKey, listActive, upsert, saveToken, deactivate, touchSynced *sql.Stmt
}

type campaignStatements struct {
	upsert, getID, listByTeamPlatform, upsertMetric, listMetrics *sql.Stmt
}

type syncRunStatements struct {
	insert, finalize, isRunning, listRecent *sql.Stmt
}

// Open creates a Store, opening the database at dbPath, applying
// migrations, and preparing all repeated statements. Use ":memory:"
// for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	// SQLite allows one writer at a time; a single pooled connection
	// serializes writers ahead of the driver's busy handler and keeps
	// ":memory:" databases from being split across connections.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	return s, nil
}

// Close releases prepared statements and the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations. Uses the goose
// v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// prepareStatements prepares every repeated query up front so sync
// loops never pay parse costs per row.
func (s *Store) prepareStatements(ctx context.Context) error {
	prep := func(dst **sql.Stmt, query string) error {
		stmt, err := s.db.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing %.40q: %w", query, err)
		}

		*dst = stmt

		return nil
	}

	for _, p := range []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.credStmts.get, sqlGetCredential},
		{&s.credStmts.getByKey, sqlGetCredentialByKey},
		{&s.credStmts.listActive, sqlListActiveCredentials},
		{&s.credStmts.upsert, sqlUpsertCredential},
		{&s.credStmts.saveToken, sqlSaveOAuthToken},
		{&s.credStmts.deactivate, sqlDeactivateCredential},
		{&s.credStmts.touchSynced, sqlTouchSynced},
		{&s.campaignStmts.upsert, sqlUpsertCampaign},
		{&s.campaignStmts.getID, sqlGetCampaignID},
		{&s.campaignStmts.listByTeamPlatform, sqlListCampaigns},
		{&s.campaignStmts.upsertMetric, sqlUpsertMetric},
		{&s.campaignStmts.listMetrics, sqlListMetrics},
		{&s.runStmts.insert, sqlInsertRun},
		{&s.runStmts.finalize, sqlFinalizeRun},
		{&s.runStmts.isRunning, sqlIsRunning},
		{&s.runStmts.listRecent, sqlListRecentRuns},
	} {
		if err := prep(p.dst, p.query); err != nil {
			return err
		}
	}

	return nil
}
