package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hyperjump/kotae/internal/models"
)

// passageRow maps the passage table. Nullable text columns are read through sql.NullString
// because rows written by external ingestion may leave them empty.
type passageRow struct {
	ID        string         `gorm:"column:id"`
	Category  sql.NullString `gorm:"column:category"`
	Question  sql.NullString `gorm:"column:question"`
	Answer    sql.NullString `gorm:"column:answer"`
	ChunkText sql.NullString `gorm:"column:chunk_text"`
	Metadata  []byte         `gorm:"column:metadata"`
}

func (r *passageRow) toPassage() (*models.Passage, error) {
	p := &models.Passage{
		ID:        r.ID,
		Category:  r.Category.String,
		Question:  r.Question.String,
		Answer:    r.Answer.String,
		ChunkText: r.ChunkText.String,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", r.ID, err)
		}
	}
	return p, nil
}

// PostgresStore implements PassageStore on a Postgres table through gorm.
type PostgresStore struct {
	db    *gorm.DB
	table string
}

// PoolConfig holds connection pool limits for PostgresStore.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig returns pool limits suited to a single retrieval service.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour}
}

// NewPostgresStore connects to dsn and reads passages from table. The connection is not
// verified here; use Ping.
func NewPostgresStore(dsn, table string, pool PoolConfig) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	return NewPostgresStoreFromDB(db, table), nil
}

// NewPostgresStoreFromDB wraps an existing gorm handle.
func NewPostgresStoreFromDB(db *gorm.DB, table string) *PostgresStore {
	if table == "" {
		table = "ivf_chunks"
	}
	return &PostgresStore{db: db, table: table}
}

// GetPassage returns a passage by id, or (nil, nil) if it does not exist.
func (s *PostgresStore) GetPassage(ctx context.Context, id string) (*models.Passage, error) {
	var row passageRow
	err := s.db.WithContext(ctx).Table(s.table).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toPassage()
}

// SearchText returns passages whose chunk_text or answer matches pattern using ILIKE.
func (s *PostgresStore) SearchText(ctx context.Context, pattern string, limit int) ([]*models.Passage, error) {
	var rows []passageRow
	err := s.db.WithContext(ctx).
		Table(s.table).
		Where("chunk_text ILIKE ? OR answer ILIKE ?", pattern, pattern).
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.Passage, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toPassage()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// CountPassages returns the number of rows in the passage table.
func (s *PostgresStore) CountPassages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Table(s.table).Count(&n).Error
	return n, err
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
