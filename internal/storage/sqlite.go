package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// sqliteDriver is go-sqlite3 with fold(), a Unicode lower(). SQLite's own LIKE and
// lower() fold ASCII only.
const sqliteDriver = "sqlite3_kotae"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

// SQLiteStore implements PassageStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(sqliteDriver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS passages (
		id TEXT PRIMARY KEY,
		category TEXT,
		question TEXT,
		answer TEXT,
		chunk_text TEXT NOT NULL DEFAULT '',
		metadata TEXT
	);
	`
	_, err := db.Exec(schema)
	return err
}

// PutPassage inserts or replaces a passage. Used by seeding tools and tests.
func (s *SQLiteStore) PutPassage(ctx context.Context, p *models.Passage) error {
	var metadataJSON sql.NullString
	if p.Metadata != nil {
		data, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO passages (id, category, question, answer, chunk_text, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, nullString(p.Category), nullString(p.Question), nullString(p.Answer), p.ChunkText, metadataJSON,
	)
	return err
}

// GetPassage returns a passage by id, or (nil, nil) if it does not exist.
func (s *SQLiteStore) GetPassage(ctx context.Context, id string) (*models.Passage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, category, question, answer, chunk_text, metadata
		 FROM passages WHERE id = ?`, id)
	p, err := scanPassage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SearchText returns passages whose chunk_text or answer matches pattern, ignoring case.
func (s *SQLiteStore) SearchText(ctx context.Context, pattern string, limit int) ([]*models.Passage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, question, answer, chunk_text, metadata
		 FROM passages
		 WHERE fold(coalesce(chunk_text, '')) LIKE ? ESCAPE '\'
		    OR fold(coalesce(answer, '')) LIKE ? ESCAPE '\'
		 ORDER BY id LIMIT ?`,
		strings.ToLower(pattern), strings.ToLower(pattern), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Passage
	for rows.Next() {
		p, err := scanPassage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPassages returns the number of stored passages.
func (s *SQLiteStore) CountPassages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&n)
	return n, err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPassage(r rowScanner) (*models.Passage, error) {
	var (
		p                          models.Passage
		category, question, answer sql.NullString
		metadataJSON               sql.NullString
	)
	if err := r.Scan(&p.ID, &category, &question, &answer, &p.ChunkText, &metadataJSON); err != nil {
		return nil, err
	}
	p.Category, p.Question, p.Answer = category.String, question.String, answer.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
