// Package cache is the client's durable local state: session settings and
// the last known snapshot per event, plus the deleted-ids log.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/judging-portal/internal/models"
)

// DefaultRetention is how long a deletion is remembered.
const DefaultRetention = 7 * 24 * time.Hour

const (
	keyJudgeName    = "judge_name"
	keyRole         = "role"
	keyAccessPhrase = "access_phrase"
	keyEntries      = "entries"
	keyRatings      = "ratings"
	keyJudges       = "judges"
)

// Record is one persisted value.
type Record struct {
	Key       string         `gorm:"primaryKey;column:record_key;size:191"`
	Value     datatypes.JSON `gorm:"type:json"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (Record) TableName() string { return "cache_records" }

// Tombstone is one entry of the deleted-ids log.
type Tombstone struct {
	ID        uint      `gorm:"primaryKey"`
	Scope     string    `gorm:"size:191;uniqueIndex:idx_tombstone_ref"`
	Kind      string    `gorm:"size:16;uniqueIndex:idx_tombstone_ref"`
	Ref       string    `gorm:"size:191;uniqueIndex:idx_tombstone_ref"`
	RemovedAt time.Time `gorm:"index"`
}

// TableName pins the table name.
func (Tombstone) TableName() string { return "tombstones" }

// Cache persists client state in SQLite through gorm.
type Cache struct {
	db        *gorm.DB
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// New migrates the schema and returns a cache. A non-positive retention
// uses DefaultRetention.
func New(db *gorm.DB, retention time.Duration, logger zerolog.Logger) (*Cache, error) {
	if err := db.AutoMigrate(&Record{}, &Tombstone{}); err != nil {
		return nil, err
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Cache{
		db:        db,
		retention: retention,
		logger:    logger.With().Str("component", "cache").Logger(),
		now:       time.Now,
	}, nil
}

// Close releases the underlying connection.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// load decodes the stored value into dest. Missing or unreadable values
// leave dest untouched and report false.
func (c *Cache) load(ctx context.Context, key string, dest interface{}) bool {
	var record Record
	if err := c.db.WithContext(ctx).Where("record_key = ?", key).First(&record).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.logger.Warn().Err(err).Str("key", key).Msg("failed to read cache record")
		}
		return false
	}
	if err := json.Unmarshal(record.Value, dest); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding unreadable cache record")
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return upsert(c.db.WithContext(ctx), Record{Key: key, Value: datatypes.JSON(payload), UpdatedAt: c.now()})
}

func upsert(tx *gorm.DB, record Record) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
}

// JudgeName returns the stored display name, or "".
func (c *Cache) JudgeName(ctx context.Context) string {
	var name string
	c.load(ctx, keyJudgeName, &name)
	return name
}

// SetJudgeName stores the display name.
func (c *Cache) SetJudgeName(ctx context.Context, name string) error {
	return c.store(ctx, keyJudgeName, name)
}

// Role returns the stored role, or "" when none or unknown.
func (c *Cache) Role(ctx context.Context) models.Role {
	var role string
	c.load(ctx, keyRole, &role)
	return models.ParseRole(role)
}

// SetRole stores the role.
func (c *Cache) SetRole(ctx context.Context, role models.Role) error {
	return c.store(ctx, keyRole, string(role))
}

// AccessPhrase returns the stored access phrase, or "".
func (c *Cache) AccessPhrase(ctx context.Context) string {
	var phrase string
	c.load(ctx, keyAccessPhrase, &phrase)
	return phrase
}

// SetAccessPhrase stores the access phrase.
func (c *Cache) SetAccessPhrase(ctx context.Context, phrase string) error {
	return c.store(ctx, keyAccessPhrase, phrase)
}

func scoped(scope, key string) string {
	return scope + "/" + key
}

// Entries returns the stored entries for an event, or an empty list.
func (c *Cache) Entries(ctx context.Context, scope string) []models.Entry {
	entries := []models.Entry{}
	if !c.load(ctx, scoped(scope, keyEntries), &entries) || entries == nil {
		return []models.Entry{}
	}
	return entries
}

// Ratings returns the stored ratings for an event, or an empty list.
func (c *Cache) Ratings(ctx context.Context, scope string) []models.Rating {
	ratings := []models.Rating{}
	if !c.load(ctx, scoped(scope, keyRatings), &ratings) || ratings == nil {
		return []models.Rating{}
	}
	return ratings
}

// Judges returns the stored judge roster for an event, or an empty list.
func (c *Cache) Judges(ctx context.Context, scope string) []string {
	judges := []string{}
	if !c.load(ctx, scoped(scope, keyJudges), &judges) || judges == nil {
		return []string{}
	}
	return judges
}

// LoadSnapshot reads each part of an event's snapshot independently.
func (c *Cache) LoadSnapshot(ctx context.Context, scope string) models.Snapshot {
	return models.Snapshot{
		Entries: c.Entries(ctx, scope),
		Ratings: c.Ratings(ctx, scope),
		Judges:  c.Judges(ctx, scope),
	}
}

// SaveSnapshot rewrites an event's snapshot in one transaction.
func (c *Cache) SaveSnapshot(ctx context.Context, scope string, snapshot models.Snapshot) error {
	doc := snapshot.Document(0)
	values := map[string]interface{}{
		keyEntries: doc.Teams,
		keyRatings: doc.Ratings,
		keyJudges:  doc.Judges,
	}

	now := c.now()
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			payload, err := json.Marshal(value)
			if err != nil {
				return err
			}
			if err := upsert(tx, Record{Key: scoped(scope, key), Value: datatypes.JSON(payload), UpdatedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
}
