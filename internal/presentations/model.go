package presentations

import "time"

// DefaultDisplayName is shown for snapshots created without a name.
const DefaultDisplayName = "Contribution Presentation"

// PresentationView persists a frozen selection of contribution ids. Rows are insert-only.
type PresentationView struct {
	ID              string    `gorm:"column:id;primaryKey;size:64;not null"`
	OwnerID         string    `gorm:"column:owner_id;size:190;not null;index:idx_presentation_views_owner_created,priority:1"`
	Name            *string   `gorm:"column:name;size:190"`
	ContributionIDs string    `gorm:"column:contribution_ids;type:text;not null;default:'[]'"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;index:idx_presentation_views_owner_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (PresentationView) TableName() string {
	return "presentation_views"
}

// DisplayName returns the stored name or the default title.
func (v PresentationView) DisplayName() string {
	if v.Name == nil || *v.Name == "" {
		return DefaultDisplayName
	}
	return *v.Name
}

// ResolvedSnapshot is the public, read-only view of a presentation.
type ResolvedSnapshot struct {
	ID            string
	Name          string
	CreatedAt     time.Time
	Contributions []ExpandedContribution
}

// ExpandedContribution is a contribution with its evidence links and file metadata attached.
// File bytes are never part of this shape.
type ExpandedContribution struct {
	ID               int64
	Title            string
	WhatHappened     string
	WhyItMattered    string
	OutcomeImpact    string
	ContributionDate string
	Categories       []string
	EvidenceLinks    []EvidenceLinkView
	Files            []FileView
}

// EvidenceLinkView is the public projection of an evidence link.
type EvidenceLinkView struct {
	URL   string
	Label string
}

// FileView is the public projection of a file attachment.
type FileView struct {
	ID       int64
	FileName string
	MimeType string
}

// SnapshotSummary describes one of the owner's presentations.
type SnapshotSummary struct {
	ID        string
	Name      string
	ItemCount int
	CreatedAt time.Time
}
