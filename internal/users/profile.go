package users

import (
	"context"
	"errors"

	"github.com/contribution-line/backend/internal/apperror"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opGetProfile    = "users.get_profile"
	opUpdateProfile = "users.update_profile"
	maxProfileValue = 190

	// ProfileFieldName is the user's display name.
	ProfileFieldName = "name"
	// ProfileFieldCurrentRole is the user's current job title.
	ProfileFieldCurrentRole = "current_role"
	// ProfileFieldCurrentCompany is the user's current employer.
	ProfileFieldCurrentCompany = "current_company"
)

// GetProfile returns the user's profile. Users who never saved a field get an empty profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	if s == nil || s.db == nil {
		s.logError(opGetProfile, reasonMissingDatabase, errMissingDatabase)
		return Profile{}, apperror.Storage(opGetProfile, reasonMissingDatabase, errMissingDatabase)
	}
	owner := normalize(userID)
	if owner == "" {
		return Profile{}, apperror.Validation(opGetProfile, "invalid_user", "user is required")
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", owner).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{UserID: owner}, nil
	}
	if err != nil {
		s.logError(opGetProfile, "query_failed", err, zap.String("user_id", owner))
		return Profile{}, apperror.Storage(opGetProfile, "query_failed", err)
	}
	return profile, nil
}

// UpdateProfileField sets one profile field and returns the updated profile. A nil or blank
// value clears the field. The row is created on first update.
func (s *Service) UpdateProfileField(ctx context.Context, userID, field string, value *string) (Profile, error) {
	if s == nil || s.db == nil {
		s.logError(opUpdateProfile, reasonMissingDatabase, errMissingDatabase)
		return Profile{}, apperror.Storage(opUpdateProfile, reasonMissingDatabase, errMissingDatabase)
	}
	owner := normalize(userID)
	if owner == "" {
		return Profile{}, apperror.Validation(opUpdateProfile, "invalid_user", "user is required")
	}

	var stored *string
	if value != nil {
		if trimmed := normalize(*value); trimmed != "" {
			if len(trimmed) > maxProfileValue {
				return Profile{}, apperror.Validation(opUpdateProfile, "value_too_long", "profile value is too long")
			}
			stored = &trimmed
		}
	}

	now := s.now().UTC()
	row := Profile{UserID: owner, CreatedAt: now, UpdatedAt: now}
	switch normalize(field) {
	case ProfileFieldName:
		row.Name = stored
	case ProfileFieldCurrentRole:
		row.CurrentRole = stored
	case ProfileFieldCurrentCompany:
		row.CurrentCompany = stored
	default:
		return Profile{}, apperror.Validation(opUpdateProfile, "invalid_field", "unknown profile field")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{normalize(field), "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		s.logError(opUpdateProfile, "upsert_failed", err, zap.String("user_id", owner), zap.String("field", field))
		return Profile{}, apperror.Storage(opUpdateProfile, "upsert_failed", err)
	}
	return s.GetProfile(ctx, owner)
}
