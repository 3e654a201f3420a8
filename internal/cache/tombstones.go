package cache

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/noah-isme/judging-portal/internal/models"
)

// RecordDeletion remembers that an id was deliberately removed.
func (c *Cache) RecordDeletion(ctx context.Context, scope, kind, ref string) error {
	if kind != models.TombstoneJudge && kind != models.TombstoneEntry {
		return fmt.Errorf("unknown tombstone kind %q", kind)
	}
	row := Tombstone{Scope: scope, Kind: kind, Ref: ref, RemovedAt: c.now()}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "kind"}, {Name: "ref"}},
		DoUpdates: clause.AssignmentColumns([]string{"removed_at"}),
	}).Create(&row).Error
}

// ForgetDeletion drops a deletion, used when the removal is rolled back.
func (c *Cache) ForgetDeletion(ctx context.Context, scope, kind, ref string) error {
	return c.db.WithContext(ctx).
		Where("scope = ? AND kind = ? AND ref = ?", scope, kind, ref).
		Delete(&Tombstone{}).Error
}

// Prune deletes log rows older than the retention window.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.retention)
	result := c.db.WithContext(ctx).Where("removed_at < ?", cutoff).Delete(&Tombstone{})
	return result.RowsAffected, result.Error
}

// Tombstones prunes expired rows and returns the live deletions of an event.
func (c *Cache) Tombstones(ctx context.Context, scope string) (models.Tombstones, error) {
	if _, err := c.Prune(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to prune tombstones")
	}

	var rows []Tombstone
	if err := c.db.WithContext(ctx).Where("scope = ?", scope).Find(&rows).Error; err != nil {
		return models.NewTombstones(nil, nil), err
	}

	var judges, entries []string
	for _, row := range rows {
		switch row.Kind {
		case models.TombstoneJudge:
			judges = append(judges, row.Ref)
		case models.TombstoneEntry:
			entries = append(entries, row.Ref)
		}
	}
	return models.NewTombstones(judges, entries), nil
}
