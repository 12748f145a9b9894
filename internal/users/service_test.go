package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/contribution-line/backend/internal/apperror"
	"github.com/contribution-line/backend/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Identity{}, &Profile{}))

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
		},
	})
	require.NoError(t, err)
	return service, db
}

func TestResolveCanonicalUserIDStripsProviderPrefix(t *testing.T) {
	service, db := newTestService(t)

	claims := auth.SessionClaims{
		UserID:          "google:12345",
		UserEmail:       "user@example.com",
		UserDisplayName: "Example User",
	}
	userID, err := service.ResolveCanonicalUserID(context.Background(), claims)
	require.NoError(t, err)
	require.Equal(t, "12345", userID)

	userID, err = service.ResolveCanonicalUserID(context.Background(), claims)
	require.NoError(t, err)
	require.Equal(t, "12345", userID)

	var count int64
	require.NoError(t, db.Model(&Identity{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestResolveCanonicalUserIDFallsBackToSubjectAndEmail(t *testing.T) {
	service, _ := newTestService(t)

	userID, err := service.ResolveCanonicalUserID(context.Background(), auth.SessionClaims{UserID: "plain-user"})
	require.NoError(t, err)
	require.Equal(t, "plain-user", userID)

	userID, err = service.ResolveCanonicalUserID(context.Background(), auth.SessionClaims{UserEmail: "only@example.com"})
	require.NoError(t, err)
	require.Equal(t, "only@example.com", userID)

	_, err = service.ResolveCanonicalUserID(context.Background(), auth.SessionClaims{})
	require.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestGetProfileWithoutRowIsEmpty(t *testing.T) {
	service, _ := newTestService(t)

	profile, err := service.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", profile.UserID)
	require.Nil(t, profile.Name)
	require.Nil(t, profile.CurrentRole)
	require.Nil(t, profile.CurrentCompany)
}

func TestUpdateProfileFieldSetsAndClearsOneField(t *testing.T) {
	service, _ := newTestService(t)
	role := " Staff Engineer "
	company := "Acme"

	profile, err := service.UpdateProfileField(context.Background(), "user-1", ProfileFieldCurrentRole, &role)
	require.NoError(t, err)
	require.NotNil(t, profile.CurrentRole)
	require.Equal(t, "Staff Engineer", *profile.CurrentRole)

	profile, err = service.UpdateProfileField(context.Background(), "user-1", ProfileFieldCurrentCompany, &company)
	require.NoError(t, err)
	require.Equal(t, "Acme", *profile.CurrentCompany)
	require.Equal(t, "Staff Engineer", *profile.CurrentRole)

	profile, err = service.UpdateProfileField(context.Background(), "user-1", ProfileFieldCurrentRole, nil)
	require.NoError(t, err)
	require.Nil(t, profile.CurrentRole)
	require.Equal(t, "Acme", *profile.CurrentCompany)

	other, err := service.GetProfile(context.Background(), "user-2")
	require.NoError(t, err)
	require.Nil(t, other.CurrentCompany)
}

func TestUpdateProfileFieldRejectsUnknownField(t *testing.T) {
	service, db := newTestService(t)
	value := "x"

	_, err := service.UpdateProfileField(context.Background(), "user-1", "user_id", &value)
	require.ErrorIs(t, err, apperror.ErrValidation)

	var count int64
	require.NoError(t, db.Model(&Profile{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	require.ErrorIs(t, err, apperror.ErrStorage)
}
