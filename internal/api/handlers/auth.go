// internal/api/handlers/auth.go
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/api/httpx"
	"github.com/baharkarakas/pixelmart/internal/auth"
	"github.com/baharkarakas/pixelmart/internal/models"
)

// AuthHandler issues tokens for local development and refreshes tokens issued
// by the account service. Real sign-in lives with the account service.
type AuthHandler struct {
	TM     *auth.TokenManager
	AppEnv string
	Log    *slog.Logger
}

func NewAuthHandler(tm *auth.TokenManager, appEnv string, log *slog.Logger) *AuthHandler {
	return &AuthHandler{TM: tm, AppEnv: appEnv, Log: log}
}

type devTokenReq struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// DevToken mints a token pair for any user id. Only available when APP_ENV=dev.
func (h *AuthHandler) DevToken(w http.ResponseWriter, r *http.Request) {
	if h.AppEnv != "dev" {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not available", nil)
		return
	}
	var req devTokenReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	if req.UserID == "" {
		httpx.WriteErr(w, r, h.Log, errors.BadRequestf("user_id is required"))
		return
	}
	switch req.Role {
	case "":
		req.Role = models.RoleUser
	case models.RoleUser, models.RoleAdmin:
	default:
		httpx.WriteErr(w, r, h.Log, errors.BadRequestf("unknown role %q", req.Role))
		return
	}
	h.issue(w, r, req.UserID, req.Role)
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	claims, err := h.TM.ParseRefresh(req.RefreshToken)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token", nil)
		return
	}
	h.issue(w, r, claims.UserID, claims.Role)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, userID, role string) {
	access, refresh, exp, err := h.TM.GeneratePair(userID, role)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(exp).Truncate(time.Second) / time.Second),
	})
}
