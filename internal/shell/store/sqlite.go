package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/offerlab/deployman/internal/core/deployment"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// recordID is the fixed primary key of the single deployment record. The
// schema enforces it with a CHECK constraint, so the table never grows past
// one row.
const recordID = 1

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Deployment Record Operations
// =============================================================================

// deploymentRow represents the deployment record row in the database.
type deploymentRow struct {
	RecordID       int     `db:"record_id"`
	BuildID        int     `db:"build_id"`
	Status         string  `db:"status"`
	DeploymentType string  `db:"deployment_type"`
	Parameters     *string `db:"parameters"`
	CreatedAt      string  `db:"created_at"`
	UpdatedAt      string  `db:"updated_at"`
}

func (s *SQLiteStore) GetDeployment(ctx context.Context) (*deployment.Deployment, error) {
	query := `SELECT * FROM deployment_record WHERE record_id = ?`

	var row deploymentRow
	err := s.db.GetContext(ctx, &row, query, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployment", "deployment", "deployment record not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployment", "deployment", err.Error(), err)
	}

	return rowToDeployment(&row)
}

func (s *SQLiteStore) SaveDeployment(ctx context.Context, d *deployment.Deployment) error {
	// Serialize JSON fields
	parametersJSON, err := json.Marshal(d.Definition.Parameters)
	if err != nil {
		return NewStoreError("SaveDeployment", "deployment", "failed to serialize parameters", ErrInvalidData)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO deployment_record (
			record_id, build_id, status, deployment_type, parameters,
			created_at, updated_at
		) VALUES (
			:record_id, :build_id, :status, :deployment_type, :parameters,
			:created_at, :updated_at
		)
		ON CONFLICT(record_id) DO UPDATE SET
			build_id = excluded.build_id,
			status = excluded.status,
			deployment_type = excluded.deployment_type,
			parameters = excluded.parameters,
			updated_at = excluded.updated_at`

	row := map[string]any{
		"record_id":       recordID,
		"build_id":        d.ID,
		"status":          string(d.Status),
		"deployment_type": d.Definition.DeploymentType,
		"parameters":      string(parametersJSON),
		"created_at":      now,
		"updated_at":      now,
	}

	_, err = s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("SaveDeployment", "deployment", err.Error(), err)
	}

	return nil
}

// rowToDeployment converts a database row to a domain deployment.
func rowToDeployment(row *deploymentRow) (*deployment.Deployment, error) {
	var parameters map[string]any
	if row.Parameters != nil && *row.Parameters != "" {
		if err := json.Unmarshal([]byte(*row.Parameters), &parameters); err != nil {
			return nil, NewStoreError("GetDeployment", "deployment", "failed to deserialize parameters", ErrInvalidData)
		}
	}

	return &deployment.Deployment{
		ID:     row.BuildID,
		Status: deployment.Status(row.Status),
		Definition: deployment.Definition{
			DeploymentType: row.DeploymentType,
			Parameters:     parameters,
		},
	}, nil
}
