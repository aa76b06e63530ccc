package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/satoshishop/backend/pkg/auth"
	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/enums"
	"github.com/satoshishop/backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "satoshishop-test",
		ExpirationMinutes: 15,
	}
}

func mintToken(t *testing.T, cfg config.JWTConfig, now time.Time, role enums.StaffRole) (string, uuid.UUID) {
	t.Helper()
	staffID := uuid.New()
	token, err := auth.MintAccessToken(cfg, now, auth.AccessTokenPayload{
		StaffID: staffID,
		Email:   "staff@example.com",
		Role:    role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, staffID
}

func TestAuthSeedsContext(t *testing.T) {
	cfg := testJWTConfig()
	token, staffID := mintToken(t, cfg, time.Now(), enums.StaffRoleManager)

	var gotStaffID uuid.UUID
	var gotRole enums.StaffRole
	var gotEmail string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStaffID = StaffIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		gotEmail = EmailFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()

	Auth(cfg, testLogger())(next).ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotStaffID != staffID {
		t.Fatalf("expected staff id %s got %s", staffID, gotStaffID)
	}
	if gotRole != enums.StaffRoleManager {
		t.Fatalf("expected manager role got %s", gotRole)
	}
	if gotEmail != "staff@example.com" {
		t.Fatalf("unexpected email %s", gotEmail)
	}
}

func TestAuthMissingHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run without credentials")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	resp := httptest.NewRecorder()

	Auth(testJWTConfig(), testLogger())(next).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	token, _ := mintToken(t, cfg, time.Now().Add(-time.Hour), enums.StaffRoleAdmin)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run with an expired token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()

	Auth(cfg, testLogger())(next).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthWrongSecret(t *testing.T) {
	minted := testJWTConfig()
	token, _ := mintToken(t, minted, time.Now(), enums.StaffRoleAdmin)

	serving := minted
	serving.Secret = "a-different-secret"

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run with a forged token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()

	Auth(serving, testLogger())(next).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
