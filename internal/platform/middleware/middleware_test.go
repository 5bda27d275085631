package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_HonorsInboundHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-123", seen)
}

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	handler := Recovery(discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestContentTypeJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// GETs are not held to the content type check.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Content-Type", "text/xml")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type staticValidator struct {
	claims *JWTClaims
	err    error
}

func (v staticValidator) ValidateToken(string) (*JWTClaims, error) {
	return v.claims, v.err
}

func TestRequireAuth_MissingToken(t *testing.T) {
	handler := RequireAuth(staticValidator{}, discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	validator := staticValidator{err: errors.New("bad signature")}
	handler := RequireAuth(validator, discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_SetsSubjectAndClient(t *testing.T) {
	validator := staticValidator{claims: &JWTClaims{Subject: "alice", ClientID: "cli"}}
	var subject, clientID string
	handler := RequireAuth(validator, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = GetSubject(r.Context())
		clientID = GetClientID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "alice", subject)
	assert.Equal(t, "cli", clientID)
}

func TestGetSubject_Empty(t *testing.T) {
	assert.Empty(t, GetSubject(t.Context()))
	assert.Empty(t, GetClientID(t.Context()))
	assert.Empty(t, GetRequestID(t.Context()))
}
