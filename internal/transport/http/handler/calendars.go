package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/checkcalendar-api/internal/application/activity"
	"github.com/checkcalendar-api/internal/domain"
	"github.com/checkcalendar-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// CalendarHandler serves the authenticated account's activities.
type CalendarHandler struct {
	svc activity.Service
}

func NewCalendarHandler(svc activity.Service) *CalendarHandler { return &CalendarHandler{svc: svc} }

func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	items, err := h.svc.List(r.Context(), p.AccountID)
	if err != nil {
		slog.Error("list activities", "account_id", p.AccountID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch activities")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var req domain.CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := h.svc.Create(r.Context(), p.AccountID, req)
	if err != nil {
		h.fail(w, "create activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *CalendarHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var req domain.ToggleCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := h.svc.ToggleCheck(r.Context(), p.AccountID, chi.URLParam(r, "id"), req.Date)
	if err != nil {
		h.fail(w, "toggle check", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if err := h.svc.Delete(r.Context(), p.AccountID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete activity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Report accepts an optional ?date=YYYY-MM-DD naming the caller's current day.
func (h *CalendarHandler) Report(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	today := time.Now().UTC()
	if q := r.URL.Query().Get("date"); q != "" {
		d, err := time.Parse(domain.DateLayout, q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		today = d
	}
	rep, err := h.svc.Report(r.Context(), p.AccountID, chi.URLParam(r, "id"), today)
	if err != nil {
		h.fail(w, "activity report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *CalendarHandler) Export(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	res, err := h.svc.Export(r.Context(), p.AccountID, r.URL.Query().Get("format"))
	if err != nil {
		h.fail(w, "export activities", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CalendarHandler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op, "err", err)
		writeError(w, status, "Failed to process request.")
		return
	}
	writeError(w, status, err.Error())
}
