package posts

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ayush/scrollable/internal/auth"
	"github.com/ayush/scrollable/internal/httpx"
	"github.com/ayush/scrollable/internal/models"
)

// Handler holds post HTTP handlers.
type Handler struct {
	svc *Service
	log logrus.FieldLogger
}

func NewHandler(svc *Service, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the post endpoints. optional and required are the two
// authentication middlewares.
func (h *Handler) Routes(optional, required func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.With(optional).Get("/", h.List)
	r.With(optional).Get("/{id}", h.Get)
	r.Group(func(r chi.Router) {
		r.Use(required)
		r.Post("/", h.Create)
		r.Put("/{id}/like", h.Like)
		r.Post("/{id}/comment", h.Comment)
		r.Delete("/{id}", h.Delete)
	})
	return r
}

// queryInt returns 0 for a missing or non-numeric value so NormalizePage
// can substitute the default.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

// List returns one page of the feed.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListPosts(r.Context(), queryInt(r, "page"), queryInt(r, "limit"), auth.UserID(r.Context()))
	if err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Success(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.GetPost(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()))
	if err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"post": post})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePostRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	post, err := h.svc.CreatePost(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]any{"post": post})
}

func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.ToggleLike(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()))
	if err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"post": post})
}

func (h *Handler) Comment(w http.ResponseWriter, r *http.Request) {
	var req models.CommentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	post, err := h.svc.AddComment(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()), req.Text)
	if err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"post": post})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePost(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context())); err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Message(w, http.StatusOK, "Post deleted successfully")
}
