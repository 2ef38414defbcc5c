package mockservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/eye-check/internal/apiclient"
	"github.com/example/eye-check/internal/result"
)

// ResultRow is the persisted form of an analysis record.
type ResultRow struct {
	ID             string    `gorm:"primaryKey;size:64"`
	Filename       string    `gorm:"column:filename;size:255"`
	MarkedFilename string    `gorm:"column:marked_filename;size:255"`
	EyeCount       int       `gorm:"column:eye_count"`
	SymmetryScore  *float64  `gorm:"column:symmetry_score"`
	Features       string    `gorm:"column:features;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (ResultRow) TableName() string {
	return "analysis_results"
}

// PostgresStore persists records with gorm.
type PostgresStore struct {
	db *gorm.DB
	retrier
}

// NewPostgresStore creates a new store instance.
func NewPostgresStore(db *gorm.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:      db,
		retrier: newRetrier(logger.Named("postgres_store")),
	}
}

// AutoMigrate ensures the schema is available.
func (s *PostgresStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ResultRow{})
}

func (s *PostgresStore) Save(ctx context.Context, rec *result.Record) error {
	row, err := rowFromRecord(rec)
	if err != nil {
		return err
	}
	return s.executeWithRetry(ctx, "store.save", apiclient.RequestIDFrom(ctx), func() error {
		return s.db.WithContext(ctx).Create(row).Error
	})
}

func (s *PostgresStore) List(ctx context.Context) ([]*result.Record, error) {
	var rows []ResultRow
	err := s.executeWithRetry(ctx, "store.list", apiclient.RequestIDFrom(ctx), func() error {
		rows = rows[:0]
		return s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	records := make([]*result.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return s.executeWithRetry(ctx, "store.delete", apiclient.RequestIDFrom(ctx), func() error {
		res := s.db.WithContext(ctx).Delete(&ResultRow{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	return s.executeWithRetry(ctx, "store.delete_all", apiclient.RequestIDFrom(ctx), func() error {
		return s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ResultRow{}).Error
	})
}

func rowFromRecord(rec *result.Record) (*ResultRow, error) {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}
	row := &ResultRow{
		ID:             string(rec.ID),
		Filename:       rec.Filename,
		MarkedFilename: rec.MarkedFilename,
		EyeCount:       rec.EyeCount,
		SymmetryScore:  rec.SymmetryScore,
		Features:       string(features),
	}
	if rec.Timestamp != nil {
		row.CreatedAt = rec.Timestamp.UTC()
	}
	return row, nil
}

func (r *ResultRow) record() (*result.Record, error) {
	rec := &result.Record{
		ID:             result.ID(r.ID),
		Filename:       r.Filename,
		MarkedFilename: r.MarkedFilename,
		EyeCount:       r.EyeCount,
		SymmetryScore:  r.SymmetryScore,
	}
	if r.Features != "" {
		if err := json.Unmarshal([]byte(r.Features), &rec.Features); err != nil {
			return nil, errors.Join(fmt.Errorf("decode features of %s", r.ID), err)
		}
	}
	if !r.CreatedAt.IsZero() {
		ts := r.CreatedAt.UTC()
		rec.Timestamp = &ts
	}
	return rec, nil
}
