package auth

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ayush/scrollable/internal/apperr"
	"github.com/ayush/scrollable/internal/httpx"
	"github.com/ayush/scrollable/internal/models"
)

// Handler holds auth-related HTTP handlers.
type Handler struct {
	svc *Service
	log logrus.FieldLogger
}

func NewHandler(svc *Service, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register creates a new user and returns it with a token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	resp, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Success(w, http.StatusCreated, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	resp, err := h.svc.Authenticate(r.Context(), req)
	if err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Success(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), IdentityFromContext(r.Context())); err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Logged out successfully")
}

// Me returns the currently authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		httpx.Fail(w, r, h.log, apperr.Unauthorized("No token provided"))
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"user": user})
}
