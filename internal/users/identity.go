package users

import (
	"strings"
	"time"
)

// Identity maps a provider-specific login onto a canonical user id.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index"`
	Email       string    `gorm:"column:user_email;size:320"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

// Profile holds the small set of self-described fields shown alongside a user's contributions.
// Every field is optional; a user without a row has an empty profile.
type Profile struct {
	UserID         string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Name           *string   `gorm:"column:name;size:190"`
	CurrentRole    *string   `gorm:"column:current_role;size:190"`
	CurrentCompany *string   `gorm:"column:current_company;size:190"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
