package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/api/httpx"
	"github.com/baharkarakas/pixelmart/internal/middleware"
	"github.com/baharkarakas/pixelmart/internal/services"
)

const maxWebhookBody = 1 << 16

type CheckoutHandler struct {
	Checkout *services.CheckoutService
	Settle   *services.SettlementService
	// SignatureHeader names the header carrying the provider's signature.
	SignatureHeader string
	Log             *slog.Logger
}

// Create starts a checkout for the caller's cart.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _, err := caller(r)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	var req services.CheckoutRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	res, err := h.Checkout.Checkout(r.Context(), uid, req)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

type verifyDiscountReq struct {
	Code string `json:"code"`
}

func (h *CheckoutHandler) VerifyDiscount(w http.ResponseWriter, r *http.Request) {
	var req verifyDiscountReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	d, err := h.Checkout.VerifyDiscount(r.Context(), req.Code)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

// Webhook receives provider notifications. The body is read raw because the
// signature covers the exact bytes. Any non-2xx answer makes the provider
// redeliver, so only storage failures return 500.
func (h *CheckoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteErr(w, r, h.Log, errors.BadRequestf("reading webhook body: %v", err))
		return
	}
	sig := r.Header.Get(h.SignatureHeader)
	if err := h.Settle.HandleWebhook(r.Context(), payload, sig); err != nil {
		if errors.Is(err, errors.Unauthorized) {
			h.Log.WarnContext(r.Context(), "webhook rejected",
				"request_id", middleware.RequestIDFrom(r.Context()), "err", err)
		}
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
