package contributions

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	maxIdentifierLength = 190
	maxTitleLength      = 255
	maxLabelLength      = 255
	maxURLLength        = 2048
	maxFileNameLength   = 255
	dateLayout          = "2006-01-02"
)

var (
	// ErrInvalidOwnerID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("contributions: invalid owner id")
	// ErrInvalidCategory indicates a category outside the fixed vocabulary.
	ErrInvalidCategory = errors.New("contributions: invalid category")
	// ErrInvalidDate indicates a malformed or future contribution date.
	ErrInvalidDate = errors.New("contributions: invalid contribution date")
	// ErrInvalidURL indicates an evidence link that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("contributions: invalid evidence url")
)

// Category is one tag from the fixed contribution vocabulary.
type Category string

const (
	CategoryCoreRole          Category = "Core Role / Job Performance"
	CategoryLeadership        Category = "Leadership / Ownership"
	CategoryCollaboration     Category = "Cross-Team Collaboration"
	CategoryProblemSolving    Category = "Problem Solving / Innovation"
	CategoryStakeholderImpact Category = "Client / Stakeholder Impact"
	CategoryProcess           Category = "Process Improvement / Efficiency"
	CategoryMentoring         Category = "Mentoring / Knowledge Sharing"
)

var categoryVocabulary = map[Category]struct{}{
	CategoryCoreRole:          {},
	CategoryLeadership:        {},
	CategoryCollaboration:     {},
	CategoryProblemSolving:    {},
	CategoryStakeholderImpact: {},
	CategoryProcess:           {},
	CategoryMentoring:         {},
}

// NewCategorySet validates raw tags against the vocabulary. Duplicates collapse onto their
// first occurrence so the stored sequence behaves as a set.
func NewCategorySet(rawInput []string) ([]Category, error) {
	seen := make(map[Category]struct{}, len(rawInput))
	categories := make([]Category, 0, len(rawInput))
	for _, raw := range rawInput {
		category := Category(strings.TrimSpace(raw))
		if _, ok := categoryVocabulary[category]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		categories = append(categories, category)
	}
	return categories, nil
}

// EncodeCategories serializes categories into the compact JSON column format.
func EncodeCategories(categories []Category) string {
	values := make([]string, 0, len(categories))
	for _, category := range categories {
		values = append(values, string(category))
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// DecodeCategories parses the stored JSON column. Malformed data yields an empty slice.
func DecodeCategories(stored string) []string {
	var values []string
	if err := json.Unmarshal([]byte(stored), &values); err != nil || values == nil {
		return []string{}
	}
	return values
}

// OwnerID represents a validated owner identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxIdentifierLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

// ContributionDate is a calendar date in YYYY-MM-DD form.
type ContributionDate string

// NewContributionDate validates the layout and rejects dates after today.
func NewContributionDate(rawInput string, today time.Time) (ContributionDate, error) {
	trimmed := strings.TrimSpace(rawInput)
	parsed, err := time.Parse(dateLayout, trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: use YYYY-MM-DD", ErrInvalidDate)
	}
	if parsed.Format(dateLayout) > today.Format(dateLayout) {
		return "", fmt.Errorf("%w: in the future", ErrInvalidDate)
	}
	return ContributionDate(parsed.Format(dateLayout)), nil
}

// String returns the date in YYYY-MM-DD form.
func (d ContributionDate) String() string {
	return string(d)
}

// NewEvidenceURL accepts absolute http and https URLs only.
func NewEvidenceURL(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" || len(trimmed) > maxURLLength {
		return "", fmt.Errorf("%w: empty or too long", ErrInvalidURL)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: absolute http(s) url required", ErrInvalidURL)
	}
	return parsed.String(), nil
}

// Contribution is a single logged work achievement.
type Contribution struct {
	ID               int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID          string         `gorm:"column:owner_id;size:190;not null;index:idx_contributions_owner_date,priority:1"`
	Title            string         `gorm:"column:title;size:255;not null"`
	WhatHappened     string         `gorm:"column:what_happened;type:text;not null"`
	WhyItMattered    string         `gorm:"column:why_it_mattered;type:text;not null"`
	OutcomeImpact    string         `gorm:"column:outcome_impact;type:text;not null;default:''"`
	CategoriesJSON   string         `gorm:"column:categories;type:text;not null;default:'[]'"`
	ContributionDate string         `gorm:"column:contribution_date;size:10;not null;index:idx_contributions_owner_date,priority:2"`
	CreatedAt        time.Time      `gorm:"column:created_at;not null"`
	DeletedAt        gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Contribution) TableName() string {
	return "contributions"
}

// Categories decodes the stored category column.
func (c Contribution) Categories() []string {
	return DecodeCategories(c.CategoriesJSON)
}

// EvidenceLink references supporting material for a contribution.
type EvidenceLink struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ContributionID int64  `gorm:"column:contribution_id;not null;index"`
	URL            string `gorm:"column:url;size:2048;not null"`
	Label          string `gorm:"column:label;size:255;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (EvidenceLink) TableName() string {
	return "evidence_links"
}

// FileAttachment stores an uploaded file together with its metadata.
type FileAttachment struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ContributionID int64  `gorm:"column:contribution_id;not null;index"`
	FileName       string `gorm:"column:file_name;size:255;not null"`
	MimeType       string `gorm:"column:mime_type;size:100;not null"`
	SizeBytes      int64  `gorm:"column:size_bytes;not null;default:0"`
	FileData       []byte `gorm:"column:file_data;type:blob;not null"`
}

// TableName provides the explicit table binding for GORM.
func (FileAttachment) TableName() string {
	return "files"
}

// FileMetadata is the byte-free projection of FileAttachment.
type FileMetadata struct {
	ID             int64
	ContributionID int64
	FileName       string
	MimeType       string
}

// MetadataColumns lists the columns FileMetadata is loaded from.
var MetadataColumns = []string{"id", "contribution_id", "file_name", "mime_type"}

// ContributionInput describes a new contribution submitted by its owner.
type ContributionInput struct {
	Title            string
	WhatHappened     string
	WhyItMattered    string
	OutcomeImpact    string
	ContributionDate string
	Categories       []string
	EvidenceLink     *EvidenceLinkInput
	File             *FileInput
}

// EvidenceLinkInput describes an evidence link to attach.
type EvidenceLinkInput struct {
	URL   string
	Label string
}

// FileInput describes an uploaded file to attach.
type FileInput struct {
	FileName string
	Data     []byte
}
