package presentations

import (
	"context"
	"errors"
	"strings"

	"github.com/contribution-line/backend/internal/apperror"
	"github.com/contribution-line/backend/internal/contributions"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	opResolveSnapshot    = "presentations.resolve_snapshot"
	queryIDEquals        = "id = ?"
	queryIDIn            = "id IN ?"
	queryContributionIn  = "contribution_id IN ?"
	orderDisplay         = "contribution_date DESC, id DESC"
	orderChildren        = "id ASC"
	notFoundMessage      = "presentation not found"
	reasonNotFound       = "not_found"
	reasonSnapshotLookup = "snapshot_lookup_failed"
)

// ResolveSnapshot expands a snapshot into its public view. Membership comes from the frozen id
// list; content, links and files are read live. Contributions that no longer exist are omitted.
// Contributions are ordered by contribution date, most recent first, independent of selection
// order.
func (s *Service) ResolveSnapshot(ctx context.Context, snapshotID string) (ResolvedSnapshot, error) {
	if s == nil || s.db == nil {
		s.logError(opResolveSnapshot, reasonMissingDatabase, errMissingDatabase)
		return ResolvedSnapshot{}, apperror.Storage(opResolveSnapshot, reasonMissingDatabase, errMissingDatabase)
	}
	trimmedID := strings.TrimSpace(snapshotID)
	if trimmedID == "" {
		return ResolvedSnapshot{}, apperror.NotFound(opResolveSnapshot, reasonNotFound, notFoundMessage)
	}

	db := s.db.WithContext(ctx)

	var view PresentationView
	err := db.Where(queryIDEquals, trimmedID).Take(&view).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ResolvedSnapshot{}, apperror.NotFound(opResolveSnapshot, reasonNotFound, notFoundMessage)
	}
	if err != nil {
		s.logError(opResolveSnapshot, reasonSnapshotLookup, err, zap.String(fieldSnapshotID, trimmedID))
		return ResolvedSnapshot{}, apperror.Storage(opResolveSnapshot, reasonSnapshotLookup, err)
	}

	resolved := ResolvedSnapshot{
		ID:            view.ID,
		Name:          view.DisplayName(),
		CreatedAt:     view.CreatedAt,
		Contributions: []ExpandedContribution{},
	}

	ids, ok := decodeIDList(view.ContributionIDs)
	if !ok {
		s.loggerOrDefault().Warn("presentation id list unreadable, treating as empty",
			zap.String(fieldSnapshotID, view.ID))
	}
	if len(ids) == 0 {
		return resolved, nil
	}

	var rows []contributions.Contribution
	if err := db.Where(queryIDIn, ids).Order(orderDisplay).Find(&rows).Error; err != nil {
		s.logError(opResolveSnapshot, "contribution_query_failed", err, zap.String(fieldSnapshotID, view.ID))
		return ResolvedSnapshot{}, apperror.Storage(opResolveSnapshot, "contribution_query_failed", err)
	}
	if len(rows) == 0 {
		return resolved, nil
	}

	resolvedIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		resolvedIDs = append(resolvedIDs, row.ID)
	}

	linksByContribution, filesByContribution, err := s.loadChildren(ctx, resolvedIDs)
	if err != nil {
		s.logError(opResolveSnapshot, "children_query_failed", err, zap.String(fieldSnapshotID, view.ID))
		return ResolvedSnapshot{}, apperror.Storage(opResolveSnapshot, "children_query_failed", err)
	}

	resolved.Contributions = make([]ExpandedContribution, 0, len(rows))
	for _, row := range rows {
		links := linksByContribution[row.ID]
		if links == nil {
			links = []EvidenceLinkView{}
		}
		files := filesByContribution[row.ID]
		if files == nil {
			files = []FileView{}
		}
		resolved.Contributions = append(resolved.Contributions, ExpandedContribution{
			ID:               row.ID,
			Title:            row.Title,
			WhatHappened:     row.WhatHappened,
			WhyItMattered:    row.WhyItMattered,
			OutcomeImpact:    row.OutcomeImpact,
			ContributionDate: row.ContributionDate,
			Categories:       row.Categories(),
			EvidenceLinks:    links,
			Files:            files,
		})
	}
	return resolved, nil
}

// loadChildren fetches links and file metadata for the whole id set with one query each.
// The two queries are independent and run concurrently.
func (s *Service) loadChildren(ctx context.Context, contributionIDs []int64) (map[int64][]EvidenceLinkView, map[int64][]FileView, error) {
	var links []contributions.EvidenceLink
	var files []contributions.FileMetadata

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Where(queryContributionIn, contributionIDs).
			Order(orderChildren).
			Find(&links).Error
	})
	group.Go(func() error {
		return s.db.WithContext(groupCtx).
			Model(&contributions.FileAttachment{}).
			Select(contributions.MetadataColumns).
			Where(queryContributionIn, contributionIDs).
			Order(orderChildren).
			Find(&files).Error
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	linksByContribution := make(map[int64][]EvidenceLinkView, len(contributionIDs))
	for _, link := range links {
		linksByContribution[link.ContributionID] = append(linksByContribution[link.ContributionID], EvidenceLinkView{
			URL:   link.URL,
			Label: link.Label,
		})
	}
	filesByContribution := make(map[int64][]FileView, len(contributionIDs))
	for _, file := range files {
		filesByContribution[file.ContributionID] = append(filesByContribution[file.ContributionID], FileView{
			ID:       file.ID,
			FileName: file.FileName,
			MimeType: file.MimeType,
		})
	}
	return linksByContribution, filesByContribution, nil
}
