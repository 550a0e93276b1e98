package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/franckalain/doctorfood/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// DB interface defines the methods our database should implement
type DB interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	SaveScan(ctx context.Context, scan *models.Scan) error
	UpdateScanStatus(ctx context.Context, id, status, errKind, errMsg, foodName string) error
	GetRecentScans(ctx context.Context, limit int) ([]*models.Scan, error)
	Close() error
}

// SQLiteDB implements the DB interface
type SQLiteDB struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(dbPath string, logger *zap.Logger) (*SQLiteDB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One writer at a time keeps sqlite from returning SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}
	logger.Info("database schema initialized", zap.String("path", dbPath))

	return &SQLiteDB{db: db, logger: logger}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *SQLiteDB) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteDB) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteDB) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
	return err
}

// SaveScan saves a scan record to the database
func (s *SQLiteDB) SaveScan(ctx context.Context, scan *models.Scan) error {
	query := `
		INSERT OR REPLACE INTO scans (
			id, status, error_kind, error, food_name, media_type, image_size, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = now
	}
	scan.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		scan.ID, scan.Status, scan.ErrorKind, scan.Error, scan.FoodName,
		scan.MediaType, scan.ImageSize, scan.CreatedAt, scan.UpdatedAt,
	)
	return err
}

// UpdateScanStatus updates the outcome of a scan
func (s *SQLiteDB) UpdateScanStatus(ctx context.Context, id, status, errKind, errMsg, foodName string) error {
	query := `
		UPDATE scans
		SET status = ?, error_kind = ?, error = ?, food_name = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query, status, errKind, errMsg, foodName, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("scan %s not found", id)
	}
	return nil
}

// GetRecentScans retrieves the most recent scans, newest first
func (s *SQLiteDB) GetRecentScans(ctx context.Context, limit int) ([]*models.Scan, error) {
	query := `
		SELECT id, status, error_kind, error, food_name, media_type, image_size, created_at, updated_at
		FROM scans
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.Scan
	for rows.Next() {
		var scan models.Scan
		var createdAt, updatedAt string
		err := rows.Scan(
			&scan.ID, &scan.Status, &scan.ErrorKind, &scan.Error, &scan.FoodName,
			&scan.MediaType, &scan.ImageSize, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, err
		}
		scan.CreatedAt = parseTime(createdAt)
		scan.UpdatedAt = parseTime(updatedAt)
		results = append(results, &scan)
	}
	return results, rows.Err()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

// parseTime reads a DATETIME column in whichever layout the driver handed back.
func parseTime(v string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
