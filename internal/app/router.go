package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ayush/scrollable/internal/auth"
	"github.com/ayush/scrollable/internal/config"
	"github.com/ayush/scrollable/internal/httpx"
	"github.com/ayush/scrollable/internal/logging"
	"github.com/ayush/scrollable/internal/media"
	"github.com/ayush/scrollable/internal/middleware"
	"github.com/ayush/scrollable/internal/posts"
	"github.com/ayush/scrollable/internal/telemetry"
)

// Health is the body of the health endpoints.
type Health struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, Health{
		Status:    "ok",
		Message:   "server is running",
		Timestamp: time.Now().UTC(),
	})
}

// NewRouter builds the HTTP surface over already-connected backends.
func NewRouter(cfg *config.Config, log *logrus.Logger, b Backends) http.Handler {
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpire)
	authn := middleware.NewAuthenticator(tokens, b.Revoker, b.Store, log)

	authHandler := auth.NewHandler(auth.NewService(b.Store, tokens, b.Revoker, log), log)
	ingestor := media.NewIngestor(b.Files, media.Options{
		PublicURL: cfg.MediaPublicURL,
		Bucket:    b.Bucket,
		Folder:    cfg.MediaFolder,
		Timeout:   cfg.UploadTimeout,
	}, log)
	postSvc := posts.NewService(b.Store, b.Store, b.Events, log).WithMedia(ingestor)
	postHandler := posts.NewHandler(postSvc, log)
	mediaHandler := media.NewHandler(ingestor, cfg.MaxUploadBytes, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.ClientURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", health)

	api := func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.With(authn.RequireAuth).Post("/logout", authHandler.Logout)
			r.With(authn.RequireAuth).Get("/me", authHandler.Me)
		})

		r.Mount("/posts", postHandler.Routes(authn.OptionalAuth, authn.RequireAuth))

		r.With(authn.RequireAuth).Post("/upload", mediaHandler.Upload)
	}
	if cfg.APIPrefix == "" {
		r.Group(api)
	} else {
		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Get("/health", health)
			api(r)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusNotFound, "Route not found")
	})

	return otelhttp.NewHandler(r, telemetry.ServiceName)
}
