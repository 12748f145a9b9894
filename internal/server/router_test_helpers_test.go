package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contribution-line/backend/internal/auth"
	"github.com/contribution-line/backend/internal/contributions"
	"github.com/contribution-line/backend/internal/presentations"
	"github.com/contribution-line/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "router-test-secret"
	testCookieName    = "app_session"
	testOrigin        = "http://localhost:3000"
)

var testNow = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	db      *gorm.DB
	issuer  *auth.SessionIssuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&contributions.Contribution{},
		&contributions.EvidenceLink{},
		&contributions.FileAttachment{},
		&presentations.PresentationView{},
		&users.Identity{},
		&users.Profile{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	clock := func() time.Time { return testNow }
	contributionsService, err := contributions.NewService(contributions.ServiceConfig{Database: db, Clock: clock, MaxFileBytes: 1024})
	if err != nil {
		t.Fatalf("failed to build contributions service: %v", err)
	}
	presentationsService, err := presentations.NewService(presentations.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: presentations.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build presentations service: %v", err)
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator:     validator,
		UserResolver:         usersService,
		ContributionsService: contributionsService,
		PresentationsService: presentationsService,
		ProfileService:       usersService,
		Logger:               zap.NewNop(),
		AllowedOrigins:       []string{testOrigin},
		MaxUploadBytes:       1024,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testServer{handler: handler, db: db, issuer: issuer}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.issuer.Issue(context.Background(), auth.SessionSubject{UserID: userID})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		request.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) seedContribution(t *testing.T, ownerID, title, date string) int64 {
	t.Helper()
	row := contributions.Contribution{
		OwnerID:          ownerID,
		Title:            title,
		WhatHappened:     "what",
		WhyItMattered:    "why",
		CategoriesJSON:   "[]",
		ContributionDate: date,
		CreatedAt:        testNow,
	}
	if err := s.db.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed contribution: %v", err)
	}
	return row.ID
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}
