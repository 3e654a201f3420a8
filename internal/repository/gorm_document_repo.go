package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRecord is the relational row behind a stored document.
type DocumentRecord struct {
	Key       string         `gorm:"column:store_key;primaryKey;size:191"`
	Body      datatypes.JSON `gorm:"not null"`
	Version   int64          `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName keeps the table name stable.
func (DocumentRecord) TableName() string {
	return "store_documents"
}

type gormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository constructs a repository backed by GORM.
func NewGormDocumentRepository(db *gorm.DB) DocumentRepository {
	return &gormDocumentRepository{db: db}
}

func (r *gormDocumentRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *gormDocumentRepository) Get(ctx context.Context, key string) (StoredDocument, error) {
	var record DocumentRecord
	if err := r.db.WithContext(ctx).Where("store_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StoredDocument{}, ErrDocumentNotFound
		}
		return StoredDocument{}, err
	}
	return record.toDocument(), nil
}

func (r *gormDocumentRepository) Put(ctx context.Context, key string, body []byte, expected string) (StoredDocument, error) {
	want, conditional, err := parseExpected(expected)
	if err != nil {
		return StoredDocument{}, err
	}

	var stored DocumentRecord
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current DocumentRecord
		findErr := tx.Where("store_key = ?", key).First(&current).Error
		exists := findErr == nil
		if findErr != nil && !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		if conditional && current.Version != want {
			return ErrVersionMismatch
		}

		now := time.Now().UTC()
		if !exists {
			stored = DocumentRecord{Key: key, Body: datatypes.JSON(body), Version: 1, UpdatedAt: now}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&stored)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrVersionMismatch
			}
			return nil
		}

		result := tx.Model(&DocumentRecord{}).
			Where("store_key = ? AND version = ?", key, current.Version).
			Updates(map[string]interface{}{
				"body":       datatypes.JSON(body),
				"version":    current.Version + 1,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrVersionMismatch
		}

		stored = DocumentRecord{Key: key, Body: datatypes.JSON(body), Version: current.Version + 1, UpdatedAt: now}
		return nil
	})
	if err != nil {
		return StoredDocument{}, err
	}

	return stored.toDocument(), nil
}

func (r DocumentRecord) toDocument() StoredDocument {
	return StoredDocument{
		Key:       r.Key,
		Body:      []byte(r.Body),
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}
