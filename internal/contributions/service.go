package contributions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/contribution-line/backend/internal/apperror"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew          = "contributions.service.new"
	opCreateContribution  = "contributions.create"
	opListTimeline        = "contributions.list_timeline"
	opAddEvidenceLink     = "contributions.add_evidence_link"
	opAttachFile          = "contributions.attach_file"
	opOpenFile            = "contributions.open_file"
	opDeleteContribution  = "contributions.delete"
	fieldOwnerID          = "owner_id"
	fieldContributionID   = "contribution_id"
	queryOwnedID          = "id = ? AND owner_id = ?"
	orderTimeline         = "contribution_date DESC, id DESC"
	reasonMissingDatabase = "missing_database"
	reasonInvalidOwner    = "invalid_owner"
	reasonNotFound        = "not_found"
	reasonQueryFailed     = "query_failed"
	reasonInsertFailed    = "insert_failed"

	// DefaultMaxFileBytes bounds attachments when the configuration supplies no bound.
	DefaultMaxFileBytes int64 = 5 << 20
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	allowedMimeTypes = []string{"application/pdf", "image/png", "image/jpeg"}
)

// ServiceConfig describes the dependencies of the contribution store.
type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	Logger       *zap.Logger
	MaxFileBytes int64
}

// Service owns contribution rows and their evidence links and files.
type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	logger       *zap.Logger
	maxFileBytes int64
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperror.New(opServiceNew, reasonMissingDatabase, apperror.ErrStorage, "database handle is required", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	maxFileBytes := cfg.MaxFileBytes
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	return &Service{
		db:           cfg.Database,
		clock:        clock,
		logger:       logger,
		maxFileBytes: maxFileBytes,
	}, nil
}

// CreateContribution validates the input and stores the contribution together with its optional
// evidence link and file in one transaction.
func (s *Service) CreateContribution(ctx context.Context, ownerID string, input ContributionInput) (Contribution, error) {
	owner, err := s.requireReady(opCreateContribution, ownerID)
	if err != nil {
		return Contribution{}, err
	}

	title := strings.TrimSpace(input.Title)
	whatHappened := strings.TrimSpace(input.WhatHappened)
	whyItMattered := strings.TrimSpace(input.WhyItMattered)
	if title == "" || whatHappened == "" || whyItMattered == "" {
		return Contribution{}, apperror.Validation(opCreateContribution, "missing_fields", "title, what happened and why it mattered are required")
	}
	if len(title) > maxTitleLength {
		return Contribution{}, apperror.Validation(opCreateContribution, "title_too_long", "title is too long")
	}
	date, err := NewContributionDate(input.ContributionDate, s.clock().UTC())
	if err != nil {
		return Contribution{}, apperror.Validation(opCreateContribution, "invalid_date", err.Error())
	}
	categories, err := NewCategorySet(input.Categories)
	if err != nil {
		return Contribution{}, apperror.Validation(opCreateContribution, "invalid_category", err.Error())
	}

	var link *EvidenceLink
	if input.EvidenceLink != nil {
		validated, linkErr := newEvidenceLink(opCreateContribution, *input.EvidenceLink)
		if linkErr != nil {
			return Contribution{}, linkErr
		}
		link = &validated
	}
	var file *FileAttachment
	if input.File != nil {
		validated, fileErr := s.newFileAttachment(opCreateContribution, *input.File)
		if fileErr != nil {
			return Contribution{}, fileErr
		}
		file = &validated
	}

	contribution := Contribution{
		OwnerID:          owner.String(),
		Title:            title,
		WhatHappened:     whatHappened,
		WhyItMattered:    whyItMattered,
		OutcomeImpact:    strings.TrimSpace(input.OutcomeImpact),
		CategoriesJSON:   EncodeCategories(categories),
		ContributionDate: date.String(),
		CreatedAt:        s.clock().UTC(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&contribution).Error; err != nil {
			return err
		}
		if link != nil {
			link.ContributionID = contribution.ID
			if err := tx.Create(link).Error; err != nil {
				return err
			}
		}
		if file != nil {
			file.ContributionID = contribution.ID
			if err := tx.Create(file).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateContribution, reasonInsertFailed, txErr, zap.String(fieldOwnerID, owner.String()))
		return Contribution{}, apperror.Storage(opCreateContribution, reasonInsertFailed, txErr)
	}
	return contribution, nil
}

// ListTimeline returns the owner's contributions, most recent event first.
func (s *Service) ListTimeline(ctx context.Context, ownerID string) ([]Contribution, error) {
	owner, err := s.requireReady(opListTimeline, ownerID)
	if err != nil {
		return nil, err
	}

	var timeline []Contribution
	if err := s.db.WithContext(ctx).
		Where(fieldOwnerID+" = ?", owner.String()).
		Order(orderTimeline).
		Find(&timeline).Error; err != nil {
		s.logError(opListTimeline, reasonQueryFailed, err, zap.String(fieldOwnerID, owner.String()))
		return nil, apperror.Storage(opListTimeline, reasonQueryFailed, err)
	}
	return timeline, nil
}

// AddEvidenceLink attaches a link to one of the owner's contributions.
func (s *Service) AddEvidenceLink(ctx context.Context, ownerID string, contributionID int64, input EvidenceLinkInput) (EvidenceLink, error) {
	owner, err := s.requireReady(opAddEvidenceLink, ownerID)
	if err != nil {
		return EvidenceLink{}, err
	}
	link, err := newEvidenceLink(opAddEvidenceLink, input)
	if err != nil {
		return EvidenceLink{}, err
	}
	if err := s.requireOwned(ctx, opAddEvidenceLink, owner, contributionID); err != nil {
		return EvidenceLink{}, err
	}

	link.ContributionID = contributionID
	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		s.logError(opAddEvidenceLink, reasonInsertFailed, err, zap.Int64(fieldContributionID, contributionID))
		return EvidenceLink{}, apperror.Storage(opAddEvidenceLink, reasonInsertFailed, err)
	}
	return link, nil
}

// AttachFile stores an uploaded file against one of the owner's contributions.
func (s *Service) AttachFile(ctx context.Context, ownerID string, contributionID int64, input FileInput) (FileMetadata, error) {
	owner, err := s.requireReady(opAttachFile, ownerID)
	if err != nil {
		return FileMetadata{}, err
	}
	file, err := s.newFileAttachment(opAttachFile, input)
	if err != nil {
		return FileMetadata{}, err
	}
	if err := s.requireOwned(ctx, opAttachFile, owner, contributionID); err != nil {
		return FileMetadata{}, err
	}

	file.ContributionID = contributionID
	if err := s.db.WithContext(ctx).Create(&file).Error; err != nil {
		s.logError(opAttachFile, reasonInsertFailed, err, zap.Int64(fieldContributionID, contributionID))
		return FileMetadata{}, apperror.Storage(opAttachFile, reasonInsertFailed, err)
	}
	return FileMetadata{
		ID:             file.ID,
		ContributionID: file.ContributionID,
		FileName:       file.FileName,
		MimeType:       file.MimeType,
	}, nil
}

// OpenFile returns a file including its bytes. Only the owner of the parent contribution may
// read it.
func (s *Service) OpenFile(ctx context.Context, ownerID string, fileID int64) (FileAttachment, error) {
	owner, err := s.requireReady(opOpenFile, ownerID)
	if err != nil {
		return FileAttachment{}, err
	}

	var file FileAttachment
	err = s.db.WithContext(ctx).
		Joins("JOIN contributions ON contributions.id = files.contribution_id").
		Where("files.id = ? AND contributions.owner_id = ? AND contributions.deleted_at IS NULL", fileID, owner.String()).
		Take(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FileAttachment{}, apperror.NotFound(opOpenFile, reasonNotFound, "file not found")
	}
	if err != nil {
		s.logError(opOpenFile, reasonQueryFailed, err, zap.Int64("file_id", fileID))
		return FileAttachment{}, apperror.Storage(opOpenFile, reasonQueryFailed, err)
	}
	return file, nil
}

// DeleteContribution soft-deletes one of the owner's contributions. Presentations referencing it
// stop showing it on their next read.
func (s *Service) DeleteContribution(ctx context.Context, ownerID string, contributionID int64) error {
	owner, err := s.requireReady(opDeleteContribution, ownerID)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).
		Where(queryOwnedID, contributionID, owner.String()).
		Delete(&Contribution{})
	if result.Error != nil {
		s.logError(opDeleteContribution, "delete_failed", result.Error, zap.Int64(fieldContributionID, contributionID))
		return apperror.Storage(opDeleteContribution, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound(opDeleteContribution, reasonNotFound, "contribution not found")
	}
	return nil
}

func (s *Service) requireReady(operation, ownerID string) (OwnerID, error) {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return "", apperror.Storage(operation, reasonMissingDatabase, errMissingDatabase)
	}
	owner, err := NewOwnerID(ownerID)
	if err != nil {
		return "", apperror.Validation(operation, reasonInvalidOwner, "owner is required")
	}
	return owner, nil
}

// requireOwned hides foreign contributions behind not-found so ids cannot be probed.
func (s *Service) requireOwned(ctx context.Context, operation string, owner OwnerID, contributionID int64) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Contribution{}).
		Where(queryOwnedID, contributionID, owner.String()).
		Count(&count).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.Int64(fieldContributionID, contributionID))
		return apperror.Storage(operation, reasonQueryFailed, err)
	}
	if count == 0 {
		return apperror.NotFound(operation, reasonNotFound, "contribution not found")
	}
	return nil
}

func newEvidenceLink(operation string, input EvidenceLinkInput) (EvidenceLink, error) {
	validURL, err := NewEvidenceURL(input.URL)
	if err != nil {
		return EvidenceLink{}, apperror.Validation(operation, "invalid_url", err.Error())
	}
	label := strings.TrimSpace(input.Label)
	if len(label) > maxLabelLength {
		return EvidenceLink{}, apperror.Validation(operation, "label_too_long", "label is too long")
	}
	return EvidenceLink{URL: validURL, Label: label}, nil
}

func (s *Service) newFileAttachment(operation string, input FileInput) (FileAttachment, error) {
	name := strings.TrimSpace(input.FileName)
	if name == "" || len(name) > maxFileNameLength {
		return FileAttachment{}, apperror.Validation(operation, "invalid_file_name", "file name is required")
	}
	if len(input.Data) == 0 {
		return FileAttachment{}, apperror.Validation(operation, "empty_file", "file is empty")
	}
	if int64(len(input.Data)) > s.maxFileBytes {
		return FileAttachment{}, apperror.Validation(operation, "file_too_large", "file exceeds the size limit")
	}
	detected := mimetype.Detect(input.Data)
	mimeType := ""
	for _, allowed := range allowedMimeTypes {
		if detected.Is(allowed) {
			mimeType = allowed
			break
		}
	}
	if mimeType == "" {
		return FileAttachment{}, apperror.Validation(operation, "unsupported_mime_type", "only PDF, PNG and JPEG files are accepted")
	}
	return FileAttachment{
		FileName:  name,
		MimeType:  mimeType,
		SizeBytes: int64(len(input.Data)),
		FileData:  input.Data,
	}, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("contributions service error", attrs...)
}
