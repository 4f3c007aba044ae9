package handlers

import (
	"log/slog"
	"net/http"

	"github.com/baharkarakas/pixelmart/internal/api/httpx"
	"github.com/baharkarakas/pixelmart/internal/services"
)

type ImageHandler struct {
	Items *services.ItemService
	Log   *slog.Logger
}

type idsReq struct {
	IDs []string `json:"ids"`
}

type visibilityReq struct {
	IDs      []string `json:"ids"`
	IsPublic bool     `json:"isPublic"`
}

type countResp struct {
	Updated int64 `json:"updated"`
}

func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _, err := caller(r)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	items, err := h.Items.ListOwned(r.Context(), uid)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// Prices takes a JSON array of {id, price}.
func (h *ImageHandler) Prices(w http.ResponseWriter, r *http.Request) {
	uid, _, err := caller(r)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	var req []services.PriceUpdate
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	items, err := h.Items.UpdatePrices(r.Context(), uid, req)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *ImageHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	uid, _, err := caller(r)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	var req visibilityReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	n, err := h.Items.SetVisibility(r.Context(), uid, req.IDs, req.IsPublic)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, countResp{Updated: n})
}

func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _, err := caller(r)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	var req idsReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	n, err := h.Items.Delete(r.Context(), uid, req.IDs)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, countResp{Updated: n})
}
