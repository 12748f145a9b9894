package server

import (
	"net/http"

	"github.com/contribution-line/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type updateProfileRequest struct {
	Field string  `json:"field" binding:"required"`
	Value *string `json:"value"`
}

type profileResponse struct {
	Status         string `json:"status"`
	Name           string `json:"name"`
	CurrentRole    string `json:"current_role"`
	CurrentCompany string `json:"current_company"`
}

func newProfileResponse(profile users.Profile) profileResponse {
	return profileResponse{
		Status:         statusSuccess,
		Name:           valueOrEmpty(profile.Name),
		CurrentRole:    valueOrEmpty(profile.CurrentRole),
		CurrentCompany: valueOrEmpty(profile.CurrentCompany),
	}
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.profiles.GetProfile(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(profile))
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	var request updateProfileRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, "users.update_profile.invalid_body", "field is required")
		return
	}
	profile, err := h.profiles.UpdateProfileField(c.Request.Context(), c.GetString(userIDContextKey), request.Field, request.Value)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(profile))
}

func valueOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
