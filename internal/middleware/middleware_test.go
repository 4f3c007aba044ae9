package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/pixelmart/internal/auth"
	"github.com/baharkarakas/pixelmart/internal/logger"
	"github.com/baharkarakas/pixelmart/internal/models"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := UserID(r.Context())
		w.Header().Set("X-User", uid)
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	tm := auth.NewTokenManager("pixelmart", "a", "r", time.Minute, time.Hour)
	access, refresh, _, err := tm.GeneratePair("u1", models.RoleUser)
	require.NoError(t, err)

	cases := []struct {
		name, env, header string
		status            int
		user              string
	}{
		{"missing header", "dev", "", http.StatusUnauthorized, ""},
		{"not bearer", "dev", "Basic abc", http.StatusUnauthorized, ""},
		{"access token", "prod", "Bearer " + access, http.StatusNoContent, "u1"},
		{"lowercase scheme", "prod", "bearer " + access, http.StatusNoContent, "u1"},
		{"refresh token", "prod", "Bearer " + refresh, http.StatusUnauthorized, ""},
		{"dev token in dev", "dev", "Bearer dev-u9", http.StatusNoContent, "u9"},
		{"dev token in prod", "prod", "Bearer dev-u9", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAuthMiddleware(tm, tc.env).Auth(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := serve(h, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.user, rec.Header().Get("X-User"))
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleAdmin)(okHandler())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec = serve(h, req.WithContext(WithUser(req.Context(), "u1", models.RoleUser)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(h, req.WithContext(WithUser(req.Context(), "u1", models.RoleAdmin)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitPerClient(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h := RateLimitWithClock(2, clk)(okHandler())

	from := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		return serve(h, req).Code
	}
	assert.Equal(t, http.StatusNoContent, from("10.0.0.1:1"))
	assert.Equal(t, http.StatusNoContent, from("10.0.0.1:2"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1:3"))
	assert.Equal(t, http.StatusNoContent, from("10.0.0.2:1"), "other clients have their own bucket")

	clk.Advance(time.Second)
	assert.Equal(t, http.StatusNoContent, from("10.0.0.1:4"))
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := serve(h, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRecover(t *testing.T) {
	h := Recover(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}
