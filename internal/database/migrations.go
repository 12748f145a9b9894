package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/contribution-line/backend/internal/contributions"
	"github.com/contribution-line/backend/internal/presentations"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizePresentationIDLists = "2026-09-02_normalize_presentation_id_lists"
	migrationStripProviderPrefixes        = "2026-09-14_strip_owner_provider_prefixes"
	legacyProviderPrefix                  = "google:"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizePresentationIDLists, apply: normalizePresentationIDLists},
		{name: migrationStripProviderPrefixes, apply: stripOwnerProviderPrefixes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(migration.apply); err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before the column gained its default may hold NULL or blank lists.
func normalizePresentationIDLists(db *gorm.DB) error {
	return db.Model(&presentations.PresentationView{}).
		Where("contribution_ids IS NULL OR trim(contribution_ids) = ''").
		Update("contribution_ids", "[]").Error
}

// Owner ids recorded before canonical id resolution kept the provider prefix.
func stripOwnerProviderPrefixes(db *gorm.DB) error {
	expression := gorm.Expr("substr(owner_id, ?)", len(legacyProviderPrefix)+1)
	pattern := legacyProviderPrefix + "%"
	if err := db.Model(&contributions.Contribution{}).Unscoped().
		Where("owner_id LIKE ?", pattern).
		Update("owner_id", expression).Error; err != nil {
		return err
	}
	return db.Model(&presentations.PresentationView{}).
		Where("owner_id LIKE ?", pattern).
		Update("owner_id", expression).Error
}
