package server

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/contribution-line/backend/internal/contributions"
	"github.com/gin-gonic/gin"
)

const multipartFileField = "file"

var errUploadTooLarge = errors.New("uploaded file exceeds the size limit")

type createContributionRequest struct {
	Title            string               `json:"title" form:"title"`
	WhatHappened     string               `json:"what_happened" form:"what_happened"`
	WhyItMattered    string               `json:"why_it_mattered" form:"why_it_mattered"`
	OutcomeImpact    string               `json:"outcome_impact" form:"outcome_impact"`
	ContributionDate string               `json:"contribution_date" form:"contribution_date"`
	Categories       []string             `json:"categories" form:"categories"`
	EvidenceLink     *evidenceLinkRequest `json:"evidence_link" form:"-"`
	EvidenceURL      string               `json:"-" form:"evidence_url"`
	EvidenceLabel    string               `json:"-" form:"evidence_label"`
}

type evidenceLinkRequest struct {
	URL   string `json:"url" form:"url" binding:"required"`
	Label string `json:"label" form:"label"`
}

type contributionBody struct {
	ID               int64    `json:"id"`
	Title            string   `json:"title"`
	WhatHappened     string   `json:"what_happened"`
	WhyItMattered    string   `json:"why_it_mattered"`
	OutcomeImpact    string   `json:"outcome_impact"`
	ContributionDate string   `json:"contribution_date"`
	Categories       []string `json:"categories"`
	CreatedAt        string   `json:"created_at"`
}

func newContributionBody(contribution contributions.Contribution) contributionBody {
	return contributionBody{
		ID:               contribution.ID,
		Title:            contribution.Title,
		WhatHappened:     contribution.WhatHappened,
		WhyItMattered:    contribution.WhyItMattered,
		OutcomeImpact:    contribution.OutcomeImpact,
		ContributionDate: contribution.ContributionDate,
		Categories:       contribution.Categories(),
		CreatedAt:        contribution.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *httpHandler) handleListContributions(c *gin.Context) {
	timeline, err := h.contributions.ListTimeline(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	body := make([]contributionBody, 0, len(timeline))
	for _, contribution := range timeline {
		body = append(body, newContributionBody(contribution))
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSuccess, "contributions": body})
}

// handleCreateContribution accepts JSON or a multipart form; the form variant may carry a file.
func (h *httpHandler) handleCreateContribution(c *gin.Context) {
	var request createContributionRequest
	if err := c.ShouldBind(&request); err != nil {
		writeBadRequest(c, "contributions.create.invalid_body", "invalid contribution payload")
		return
	}

	input := contributions.ContributionInput{
		Title:            request.Title,
		WhatHappened:     request.WhatHappened,
		WhyItMattered:    request.WhyItMattered,
		OutcomeImpact:    request.OutcomeImpact,
		ContributionDate: request.ContributionDate,
		Categories:       request.Categories,
	}
	switch {
	case request.EvidenceLink != nil:
		input.EvidenceLink = &contributions.EvidenceLinkInput{URL: request.EvidenceLink.URL, Label: request.EvidenceLink.Label}
	case strings.TrimSpace(request.EvidenceURL) != "":
		input.EvidenceLink = &contributions.EvidenceLinkInput{URL: request.EvidenceURL, Label: request.EvidenceLabel}
	}

	if fileHeader, err := c.FormFile(multipartFileField); err == nil {
		fileInput, readErr := h.readUpload(fileHeader)
		if readErr != nil {
			writeBadRequest(c, "contributions.create.invalid_file", readErr.Error())
			return
		}
		input.File = &fileInput
	}

	created, err := h.contributions.CreateContribution(c.Request.Context(), c.GetString(userIDContextKey), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status":       statusSuccess,
		"message":      "Contribution added successfully",
		"contribution": newContributionBody(created),
	})
}

func (h *httpHandler) handleDeleteContribution(c *gin.Context) {
	contributionID, ok := parsePathID(c)
	if !ok {
		return
	}
	if err := h.contributions.DeleteContribution(c.Request.Context(), c.GetString(userIDContextKey), contributionID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusSuccess})
}

func (h *httpHandler) handleAddEvidenceLink(c *gin.Context) {
	contributionID, ok := parsePathID(c)
	if !ok {
		return
	}
	var request evidenceLinkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "contributions.add_link.invalid_body", "url is required")
		return
	}

	link, err := h.contributions.AddEvidenceLink(c.Request.Context(), c.GetString(userIDContextKey), contributionID,
		contributions.EvidenceLinkInput{URL: request.URL, Label: request.Label})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status": statusSuccess,
		"link":   gin.H{"id": link.ID, "url": link.URL, "label": link.Label},
	})
}

func (h *httpHandler) handleAttachFile(c *gin.Context) {
	contributionID, ok := parsePathID(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile(multipartFileField)
	if err != nil {
		writeBadRequest(c, "contributions.attach_file.missing_file", "a file is required")
		return
	}
	input, err := h.readUpload(fileHeader)
	if err != nil {
		writeBadRequest(c, "contributions.attach_file.invalid_file", err.Error())
		return
	}

	metadata, err := h.contributions.AttachFile(c.Request.Context(), c.GetString(userIDContextKey), contributionID, input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status": statusSuccess,
		"file":   fileBody{ID: metadata.ID, FileName: metadata.FileName, MimeType: metadata.MimeType},
	})
}

func (h *httpHandler) handleOpenFile(c *gin.Context) {
	fileID, ok := parsePathID(c)
	if !ok {
		return
	}
	file, err := h.contributions.OpenFile(c.Request.Context(), c.GetString(userIDContextKey), fileID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", mimeAttachment(file.FileName))
	c.Data(http.StatusOK, file.MimeType, file.FileData)
}

func (h *httpHandler) readUpload(header *multipart.FileHeader) (contributions.FileInput, error) {
	if header.Size > h.maxUploadBytes {
		return contributions.FileInput{}, errUploadTooLarge
	}
	file, err := header.Open()
	if err != nil {
		return contributions.FileInput{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return contributions.FileInput{}, err
	}
	if int64(len(data)) > h.maxUploadBytes {
		return contributions.FileInput{}, errUploadTooLarge
	}
	return contributions.FileInput{FileName: header.Filename, Data: data}, nil
}

func parsePathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(c, "request.invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func mimeAttachment(fileName string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": fileName})
}
