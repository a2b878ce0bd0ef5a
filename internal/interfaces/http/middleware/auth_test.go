package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fulfillment/backend/internal/infrastructure/auth"
	"github.com/fulfillment/backend/internal/infrastructure/config"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"github.com/fulfillment/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

type seenIdentity struct {
	actor    string
	role     string
	ctxActor string
}

func authRouter(cfg ActorAuthConfig) (*gin.Engine, *seenIdentity) {
	seen := &seenIdentity{}
	router := gin.New()
	router.Use(RequestID(), ActorAuth(cfg))
	handler := func(c *gin.Context) {
		seen.actor = GetActor(c)
		seen.role = GetRole(c)
		seen.ctxActor = logger.GetActor(c.Request.Context())
		c.Status(http.StatusOK)
	}
	router.GET("/health", handler)
	router.GET("/api/v1/notifications", handler)
	return router, seen
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestActorAuth_Disabled(t *testing.T) {
	router, seen := authRouter(ActorAuthConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?role=Staff", nil)
	req.Header.Set(ActorHeader, " picker-3 ")
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "picker-3", seen.actor)
	assert.Equal(t, "picker-3", seen.ctxActor)
	assert.Equal(t, "staff", seen.role)
}

func TestActorAuth_Enabled(t *testing.T) {
	tokens := auth.NewTokenService(config.AuthConfig{Enabled: true, JWTSecret: testSecret, Issuer: "fulfillment"})
	cfg := ActorAuthConfig{Enabled: true, Tokens: tokens, SkipPaths: []string{"/health"}}

	t.Run("bearer token sets actor and role", func(t *testing.T) {
		router, seen := authRouter(cfg)
		token, err := tokens.Issue(auth.IssueInput{Actor: "staff-9", Role: "Staff"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(ActorHeader, "spoofed")
		w := serve(router, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "staff-9", seen.actor)
		assert.Equal(t, "staff-9", seen.ctxActor)
		assert.Equal(t, "staff", seen.role)
	})

	t.Run("query token for event streams", func(t *testing.T) {
		router, seen := authRouter(cfg)
		token, err := tokens.Issue(auth.IssueInput{Actor: "staff-4"})
		require.NoError(t, err)

		w := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/notifications?access_token="+token, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "staff-4", seen.actor)
		assert.Equal(t, auth.DefaultRole, seen.role)
	})

	t.Run("missing token", func(t *testing.T) {
		router, _ := authRouter(cfg)
		w := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		errInfo := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeUnauthorized, errInfo.Code)
		assert.NotEmpty(t, errInfo.RequestID)
	})

	t.Run("malformed header", func(t *testing.T) {
		router, _ := authRouter(cfg)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		req.Header.Set("Authorization", "Basic abc")
		w := serve(router, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		router, _ := authRouter(cfg)
		past := time.Now().Add(-2 * time.Hour)
		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "staff-1",
				Issuer:    "fulfillment",
				IssuedAt:  jwt.NewNumericDate(past),
				ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
			},
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		w := serve(router, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenExpired, decodeError(t, w).Code)
	})

	t.Run("skip path", func(t *testing.T) {
		router, seen := authRouter(cfg)
		w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, seen.actor)
	})
}
