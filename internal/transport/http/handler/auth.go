package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/checkcalendar-api/internal/application/auth"
	"github.com/checkcalendar-api/internal/domain"
	"github.com/checkcalendar-api/internal/transport/http/middleware"
)

// AuthHandler serves the email one-time-passcode login endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.RequestCodeInput
	// An unreadable body counts as an empty address so the attempt still
	// passes through the request limiter.
	_ = json.NewDecoder(r.Body).Decode(&req)
	err := h.svc.RequestCode(r.Context(), req.Email, middleware.ClientIP(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP sent successfully"})
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Too many attempts. Please wait 15 minutes.")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "A valid email address is required")
	case errors.Is(err, domain.ErrDeliveryTimeout):
		writeError(w, http.StatusInternalServerError, "Email service timed out. Please try again.")
	case errors.Is(err, domain.ErrDeliveryFailure):
		writeError(w, http.StatusInternalServerError, "Failed to send verification email.")
	default:
		slog.Error("request otp", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to process request.")
	}
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}
	res, err := h.svc.VerifyCode(r.Context(), req.Email, req.OTP)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, TokenEnvelope{Token: res.Token, Email: res.Email})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "Email and OTP are required")
	case errors.Is(err, domain.ErrInvalidOrExpired):
		writeError(w, http.StatusBadRequest, "Invalid or expired code")
	default:
		slog.Error("verify otp", "err", err)
		writeError(w, http.StatusInternalServerError, "Server error during verification.")
	}
}
