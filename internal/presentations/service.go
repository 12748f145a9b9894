package presentations

import (
	"context"
	"errors"
	"time"

	"github.com/contribution-line/backend/internal/apperror"
	"github.com/contribution-line/backend/internal/contributions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew          = "presentations.service.new"
	opCreateSnapshot      = "presentations.create_snapshot"
	opListSnapshots       = "presentations.list_snapshots"
	fieldOwnerID          = "owner_id"
	fieldSnapshotID       = "snapshot_id"
	queryOwnedIDsIn       = "id IN ? AND owner_id = ?"
	reasonMissingDatabase = "missing_database"
	reasonInvalidOwner    = "invalid_owner"
	reasonQueryFailed     = "query_failed"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errForeignSelection  = errors.New("selection contains contributions the owner cannot share")
	noOpLogger           = zap.NewNop()
)

// ServiceConfig describes the dependencies of the presentation service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service captures contribution selections as snapshots and resolves them for public display.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperror.New(opServiceNew, reasonMissingDatabase, apperror.ErrStorage, "database handle is required", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperror.New(opServiceNew, "missing_id_provider", apperror.ErrStorage, "id provider is required", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateSnapshot persists the owner's selection and returns the new snapshot id.
// Duplicate ids are dropped, keeping first-occurrence order. Every id must name a live
// contribution owned by ownerID.
func (s *Service) CreateSnapshot(ctx context.Context, ownerID string, contributionIDs []int64, name *string) (string, error) {
	if s == nil || s.db == nil || s.idProvider == nil {
		s.logError(opCreateSnapshot, reasonMissingDatabase, errMissingDatabase)
		return "", apperror.Storage(opCreateSnapshot, reasonMissingDatabase, errMissingDatabase)
	}
	owner, err := contributions.NewOwnerID(ownerID)
	if err != nil {
		return "", apperror.Validation(opCreateSnapshot, reasonInvalidOwner, "owner is required")
	}

	selection, err := normalizeSelection(contributionIDs)
	if err != nil {
		return "", apperror.Validation(opCreateSnapshot, "invalid_selection", err.Error())
	}
	storedName, err := normalizeName(name)
	if err != nil {
		return "", apperror.Validation(opCreateSnapshot, "invalid_name", err.Error())
	}
	encoded, err := encodeIDList(selection)
	if err != nil {
		s.logError(opCreateSnapshot, "encode_failed", err, zap.String(fieldOwnerID, owner.String()))
		return "", apperror.Storage(opCreateSnapshot, "encode_failed", err)
	}
	snapshotID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateSnapshot, "id_generation_failed", err, zap.String(fieldOwnerID, owner.String()))
		return "", apperror.Storage(opCreateSnapshot, "id_generation_failed", err)
	}

	view := PresentationView{
		ID:              snapshotID,
		OwnerID:         owner.String(),
		Name:            storedName,
		ContributionIDs: encoded,
		CreatedAt:       s.clock().UTC(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned int64
		if err := tx.Model(&contributions.Contribution{}).
			Where(queryOwnedIDsIn, selection, owner.String()).
			Count(&owned).Error; err != nil {
			s.logError(opCreateSnapshot, "membership_query_failed", err, zap.String(fieldOwnerID, owner.String()))
			return apperror.Storage(opCreateSnapshot, "membership_query_failed", err)
		}
		if owned != int64(len(selection)) {
			s.loggerOrDefault().Warn("presentation selection rejected",
				zap.String(fieldOwnerID, owner.String()),
				zap.Int("selected", len(selection)),
				zap.Int64("owned", owned))
			return apperror.New(opCreateSnapshot, "forbidden", apperror.ErrForbidden,
				"you can only present your own contributions", errForeignSelection)
		}
		if err := tx.Create(&view).Error; err != nil {
			s.logError(opCreateSnapshot, "insert_failed", err, zap.String(fieldOwnerID, owner.String()))
			return apperror.Storage(opCreateSnapshot, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		var serviceErr *apperror.ServiceError
		if errors.As(txErr, &serviceErr) {
			return "", serviceErr
		}
		s.logError(opCreateSnapshot, "transaction_failed", txErr, zap.String(fieldOwnerID, owner.String()))
		return "", apperror.Storage(opCreateSnapshot, "transaction_failed", txErr)
	}

	s.loggerOrDefault().Info("presentation created",
		zap.String(fieldSnapshotID, view.ID),
		zap.String(fieldOwnerID, owner.String()),
		zap.Int("items", len(selection)))
	return view.ID, nil
}

// ListSnapshots returns the owner's presentations, newest first.
func (s *Service) ListSnapshots(ctx context.Context, ownerID string) ([]SnapshotSummary, error) {
	if s == nil || s.db == nil {
		s.logError(opListSnapshots, reasonMissingDatabase, errMissingDatabase)
		return nil, apperror.Storage(opListSnapshots, reasonMissingDatabase, errMissingDatabase)
	}
	owner, err := contributions.NewOwnerID(ownerID)
	if err != nil {
		return nil, apperror.Validation(opListSnapshots, reasonInvalidOwner, "owner is required")
	}

	var views []PresentationView
	if err := s.db.WithContext(ctx).
		Where(fieldOwnerID+" = ?", owner.String()).
		Order("created_at DESC, id DESC").
		Find(&views).Error; err != nil {
		s.logError(opListSnapshots, reasonQueryFailed, err, zap.String(fieldOwnerID, owner.String()))
		return nil, apperror.Storage(opListSnapshots, reasonQueryFailed, err)
	}

	summaries := make([]SnapshotSummary, 0, len(views))
	for _, view := range views {
		ids, _ := decodeIDList(view.ContributionIDs)
		summaries = append(summaries, SnapshotSummary{
			ID:        view.ID,
			Name:      view.DisplayName(),
			ItemCount: len(ids),
			CreatedAt: view.CreatedAt,
		})
	}
	return summaries, nil
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
	s.loggerOrDefault().Error("presentations service error", attrs...)
}
