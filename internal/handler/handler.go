// Package handler serves the JSON API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/mathtutor/internal/diagnostic"
	"github.com/pavelanni/mathtutor/internal/grading"
	appI18n "github.com/pavelanni/mathtutor/internal/i18n"
	"github.com/pavelanni/mathtutor/internal/model"
	"github.com/pavelanni/mathtutor/internal/store"
)

// DefaultMaxUploadBytes caps multipart submissions when Config leaves it unset.
const DefaultMaxUploadBytes = 10 << 20

// Config holds HTTP-layer settings.
type Config struct {
	SecureCookies  bool
	MaxUploadBytes int64
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store      *store.Store
	grading    *grading.Service
	diagnostic *diagnostic.Engine
	config     Config
}

// New creates a new Handler.
func New(s *store.Store, g *grading.Service, d *diagnostic.Engine, cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{store: s, grading: g, diagnostic: d, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/auth/me", h.handleMe)

			r.Post("/diagnostic/start", h.handleStartDiagnostic)
			r.Post("/diagnostic/submit/{testID}", h.handleSubmitDiagnostic)
			r.Get("/diagnostic/result/{studentID}", h.handleDiagnosticResult)
			r.Get("/diagnostic/test/{testID}", h.handleGetDiagnosticTest)

			r.Get("/exercises", h.handleListExercises)
			r.Get("/exercises/{exerciseID}", h.handleGetExercise)

			r.Post("/submissions/{exerciseID}", h.handleSubmit)
			r.Get("/submissions/user/{userID}", h.handleListSubmissions)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
				r.Get("/diagnostic/questions", h.handleDiagnosticQuestions)
				r.Get("/progress/{userID}", h.handleProgress)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleListUsers)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
			})
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	n := h.diagnostic.BankSize()
	resp := map[string]any{
		"status":               "ok",
		"diagnostic_questions": n,
		"message":              appI18n.Tp(r.Context(), "QuestionsAvailable", n),
	}
	status := http.StatusOK
	if err := h.store.Ping(); err != nil {
		resp["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleListExercises(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	level := model.Level(r.URL.Query().Get("level"))
	if level == "" && user.Role == model.UserRoleStudent {
		// Students without an explicit level see what their diagnostic recommends.
		if res, err := h.diagnostic.LatestResult(r.Context(), user.Username); err == nil {
			level = res.LevelRecommendation
		}
	}

	exercises, err := h.store.ListExercises(r.Context(), level)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if user.Role == model.UserRoleStudent {
		for i := range exercises {
			exercises[i].Solution = ""
		}
	}
	writeJSON(w, http.StatusOK, exercises)
}

func (h *Handler) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	ex, err := h.store.GetExercise(r.Context(), chi.URLParam(r, "exerciseID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if model.UserFromContext(r.Context()).Role == model.UserRoleStudent {
		ex.Solution = ""
	}
	writeJSON(w, http.StatusOK, ex)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.grading.Progress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
