// Package storage persists uploaded drawings and their predictions in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// busyTimeoutMs caps how long a write waits on a locked database. Inserts
// run on the request path, so this stays short.
const busyTimeoutMs = 1000

// ErrNotFound is returned when a prediction id does not exist.
var ErrNotFound = errors.New("prediction not found")

// Config locates the database and upload directory.
type Config struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path" json:"database_path"`
	ImageDir     string `mapstructure:"image_dir" yaml:"image_dir" json:"image_dir"`
	// SaveImages stores the uploaded bytes next to the prediction row.
	SaveImages bool `mapstructure:"save_images" yaml:"save_images" json:"save_images"`
	// RetentionDays drops history rows older than this; 0 keeps everything.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days" json:"retention_days"`
}

// DefaultConfig keeps persistence off with paths under ./data.
func DefaultConfig() Config {
	return Config{
		DatabasePath: filepath.Join("data", "digito.db"),
		ImageDir:     filepath.Join("data", "uploads"),
		SaveImages:   true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RetentionDays < 0 {
		return errors.New("storage retention days must not be negative")
	}
	if c.DatabasePath == "" {
		return errors.New("storage database path is required")
	}
	if c.SaveImages && c.ImageDir == "" {
		return errors.New("storage image directory is required when saving images")
	}
	return nil
}

// Store owns the SQLite handle and the upload directory.
type Store struct {
	db         *sql.DB
	imageDir   string
	saveImages bool
}

// Open creates the database file if needed and migrates the schema.
// ":memory:" opens a private in-memory database.
func Open(cfg Config) (*Store, error) {
	dsn := cfg.DatabasePath
	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout="+strconv.Itoa(busyTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, imageDir: cfg.ImageDir, saveImages: cfg.SaveImages}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL DEFAULT '',
		image_path TEXT NOT NULL DEFAULT '',
		digit INTEGER NOT NULL,
		confidence REAL NOT NULL,
		probabilities TEXT NOT NULL,
		empty INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
	CREATE INDEX IF NOT EXISTS idx_predictions_digit ON predictions(digit);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Predictions returns the prediction repository.
func (s *Store) Predictions() *PredictionRepository {
	return &PredictionRepository{db: s.db}
}

// SavesImages reports whether uploads should be written to disk.
func (s *Store) SavesImages() bool { return s.saveImages && s.imageDir != "" }

// SaveUpload writes data under the image directory with a random name and
// returns the file path. ext may be given with or without the leading dot.
func (s *Store) SaveUpload(data []byte, ext string) (string, error) {
	if s.imageDir == "" {
		return "", errors.New("no image directory configured")
	}
	if err := os.MkdirAll(s.imageDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create image dir: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "png"
	}
	path := filepath.Join(s.imageDir, id.String()+"."+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return path, nil
}

func now() time.Time { return time.Now().UTC() }
