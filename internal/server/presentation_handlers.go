package server

import (
	"net/http"
	"time"

	"github.com/contribution-line/backend/internal/presentations"
	"github.com/gin-gonic/gin"
)

type createPresentationRequest struct {
	ContributionIDs []int64 `json:"contribution_ids"`
	Name            *string `json:"name"`
}

type presentationResponse struct {
	Status        string                     `json:"status"`
	ID            string                     `json:"id"`
	Name          string                     `json:"name"`
	CreatedAt     string                     `json:"created_at"`
	Contributions []expandedContributionBody `json:"contributions"`
}

type expandedContributionBody struct {
	ID               int64              `json:"id"`
	Title            string             `json:"title"`
	WhatHappened     string             `json:"what_happened"`
	WhyItMattered    string             `json:"why_it_mattered"`
	OutcomeImpact    string             `json:"outcome_impact"`
	ContributionDate string             `json:"contribution_date"`
	Categories       []string           `json:"categories"`
	EvidenceLinks    []evidenceLinkBody `json:"evidence_links"`
	Files            []fileBody         `json:"files"`
}

type evidenceLinkBody struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

type fileBody struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

type presentationSummaryBody struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ItemCount int    `json:"item_count"`
	CreatedAt string `json:"created_at"`
}

func (h *httpHandler) handleCreatePresentation(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var request createPresentationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "presentations.create_snapshot.invalid_body", "contribution_ids must be a list of contribution ids")
		return
	}

	snapshotID, err := h.presentations.CreateSnapshot(c.Request.Context(), userID, request.ContributionIDs, request.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status":  statusSuccess,
		"id":      snapshotID,
		"message": "Presentation view created successfully",
	})
}

func (h *httpHandler) handleListPresentations(c *gin.Context) {
	summaries, err := h.presentations.ListSnapshots(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	body := make([]presentationSummaryBody, 0, len(summaries))
	for _, summary := range summaries {
		body = append(body, presentationSummaryBody{
			ID:        summary.ID,
			Name:      summary.Name,
			ItemCount: summary.ItemCount,
			CreatedAt: summary.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "presentations": body})
}

func (h *httpHandler) handleResolvePresentation(c *gin.Context) {
	h.resolvePresentation(c, c.Param("id"))
}

func (h *httpHandler) handleResolvePresentationQuery(c *gin.Context) {
	h.resolvePresentation(c, c.Query("id"))
}

func (h *httpHandler) resolvePresentation(c *gin.Context, snapshotID string) {
	resolved, err := h.presentations.ResolveSnapshot(c.Request.Context(), snapshotID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPresentationResponse(resolved))
}

func newPresentationResponse(resolved presentations.ResolvedSnapshot) presentationResponse {
	response := presentationResponse{
		Status:        statusSuccess,
		ID:            resolved.ID,
		Name:          resolved.Name,
		CreatedAt:     resolved.CreatedAt.UTC().Format(time.RFC3339),
		Contributions: make([]expandedContributionBody, 0, len(resolved.Contributions)),
	}
	for _, contribution := range resolved.Contributions {
		links := make([]evidenceLinkBody, 0, len(contribution.EvidenceLinks))
		for _, link := range contribution.EvidenceLinks {
			links = append(links, evidenceLinkBody{URL: link.URL, Label: link.Label})
		}
		files := make([]fileBody, 0, len(contribution.Files))
		for _, file := range contribution.Files {
			files = append(files, fileBody{ID: file.ID, FileName: file.FileName, MimeType: file.MimeType})
		}
		response.Contributions = append(response.Contributions, expandedContributionBody{
			ID:               contribution.ID,
			Title:            contribution.Title,
			WhatHappened:     contribution.WhatHappened,
			WhyItMattered:    contribution.WhyItMattered,
			OutcomeImpact:    contribution.OutcomeImpact,
			ContributionDate: contribution.ContributionDate,
			Categories:       contribution.Categories,
			EvidenceLinks:    links,
			Files:            files,
		})
	}
	return response
}
