package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/pixelmart/internal/api/httpx"
	"github.com/baharkarakas/pixelmart/internal/models"
	"github.com/baharkarakas/pixelmart/internal/services"
)

type SettlementHandler struct {
	Queries    *services.SettlementQueries
	Reconciler *services.Reconciler
	Log        *slog.Logger
}

// settlementView adds the derived state to the stored record.
type settlementView struct {
	models.Settlement
	State models.SettlementState `json:"state"`
}

func view(s models.Settlement) settlementView {
	return settlementView{Settlement: s, State: s.State()}
}

func views(in []models.Settlement) []settlementView {
	out := make([]settlementView, len(in))
	for i, s := range in {
		out[i] = view(s)
	}
	return out
}

// List serves GET /settlements?role=buyer|seller&limit=&offset=.
func (h *SettlementHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _, err := caller(r)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	list, err := h.Queries.ForUser(r.Context(), uid, r.URL.Query().Get("role"), limit, offset)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, views(list))
}

func (h *SettlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, role, err := caller(r)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	rec, err := h.Queries.Get(r.Context(), uid, role, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view(rec))
}

// ---------- admin ----------

func (h *SettlementHandler) Outstanding(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	list, err := h.Reconciler.ListOutstanding(r.Context(), limit)
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, views(list))
}

func (h *SettlementHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reconciler.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteErr(w, r, h.Log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
