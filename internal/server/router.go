package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/contribution-line/backend/internal/apperror"
	"github.com/contribution-line/backend/internal/auth"
	"github.com/contribution-line/backend/internal/contributions"
	"github.com/contribution-line/backend/internal/presentations"
	"github.com/contribution-line/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey      = "contribution_line_user_id"
	statusSuccess         = "success"
	statusError           = "error"
	defaultUploadOverhead = 1 << 20
)

var (
	errMissingSessionValidator     = errors.New("session validator dependency required")
	errMissingUserResolver         = errors.New("user resolver dependency required")
	errMissingContributionsService = errors.New("contributions service dependency required")
	errMissingPresentationsService = errors.New("presentations service dependency required")
	errMissingProfileService       = errors.New("profile service dependency required")
)

// SessionValidator authenticates a request from its session cookie or bearer header.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// UserResolver maps validated session claims onto a canonical user id.
type UserResolver interface {
	ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error)
}

// Dependencies bundles everything the HTTP handler needs.
type Dependencies struct {
	SessionValidator     SessionValidator
	UserResolver         UserResolver
	ContributionsService *contributions.Service
	PresentationsService *presentations.Service
	ProfileService       *users.Service
	Logger               *zap.Logger
	AllowedOrigins       []string
	MaxUploadBytes       int64
}

// NewHTTPHandler builds the gin engine serving the contribution line API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.UserResolver == nil {
		return nil, errMissingUserResolver
	}
	if deps.ContributionsService == nil {
		return nil, errMissingContributionsService
	}
	if deps.PresentationsService == nil {
		return nil, errMissingPresentationsService
	}
	if deps.ProfileService == nil {
		return nil, errMissingProfileService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = contributions.DefaultMaxFileBytes
	}

	router := gin.New()
	router.MaxMultipartMemory = maxUpload + defaultUploadOverhead
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:       deps.SessionValidator,
		users:          deps.UserResolver,
		contributions:  deps.ContributionsService,
		presentations:  deps.PresentationsService,
		profiles:       deps.ProfileService,
		logger:         logger,
		maxUploadBytes: maxUpload,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/presentations/:id", handler.handleResolvePresentation)
	router.GET("/presentation", handler.handleResolvePresentationQuery)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/presentations", handler.handleCreatePresentation)
	protected.GET("/presentations", handler.handleListPresentations)
	protected.GET("/contributions", handler.handleListContributions)
	protected.POST("/contributions", handler.handleCreateContribution)
	protected.DELETE("/contributions/:id", handler.handleDeleteContribution)
	protected.POST("/contributions/:id/links", handler.handleAddEvidenceLink)
	protected.POST("/contributions/:id/files", handler.handleAttachFile)
	protected.GET("/files/:id", handler.handleOpenFile)
	protected.GET("/profile", handler.handleGetProfile)
	protected.PATCH("/profile", handler.handleUpdateProfile)

	return router, nil
}

type httpHandler struct {
	sessions       SessionValidator
	users          UserResolver
	contributions  *contributions.Service
	presentations  *presentations.Service
	profiles       *users.Service
	logger         *zap.Logger
	maxUploadBytes int64
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		fields := []zap.Field{zap.Error(err), zap.String("path", c.FullPath())}
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", fields...)
		} else {
			h.logger.Warn("session validation failed", fields...)
		}
		abortUnauthorized(c)
		return
	}

	userID, err := h.users.ResolveCanonicalUserID(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, users.ErrInvalidIdentity) {
			h.logger.Warn("session identity rejected", zap.Error(err))
			abortUnauthorized(c)
			return
		}
		h.writeError(c, err)
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
		Status:  statusError,
		Message: "unauthorized, please log in",
		Code:    "auth.unauthorized",
	})
}

// writeError maps service failures onto the JSON error envelope.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
	}

	response := errorResponse{
		Status:  statusError,
		Message: "an internal error occurred, please try again later",
		Code:    "internal_error",
	}
	var serviceErr *apperror.ServiceError
	if errors.As(err, &serviceErr) {
		response.Message = serviceErr.Message()
		response.Code = serviceErr.Code()
	} else {
		h.logger.Error("unclassified request failure", zap.Error(err), zap.String("path", c.FullPath()))
	}
	c.AbortWithStatusJSON(status, response)
}

func writeBadRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Status:  statusError,
		Message: message,
		Code:    code,
	})
}
