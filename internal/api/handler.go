package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/mnemo/internal/memory"
	"go.uber.org/zap"
)

// Handler exposes the memory service's operations over HTTP.
type Handler struct {
	svc    *memory.Service
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *memory.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Route("/memories", func(r chi.Router) {
			r.Post("/episodic", h.storeEpisodic)
			r.Post("/semantic", h.storeSemantic)
			r.Post("/strategies", h.storeStrategy)
			r.Post("/retrieve", h.retrieve)
			r.Post("/consolidate", h.consolidate)
			r.Post("/forget", h.forget)
			r.Get("/stats", h.stats)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/{id}", h.createSession)
			r.Post("/{id}/attend", h.attend)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "mnemo"})
}

func (h *Handler) storeEpisodic(w http.ResponseWriter, r *http.Request) {
	var in memory.EpisodeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.svc.StoreEpisodic(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"episode_id": id})
}

func (h *Handler) storeSemantic(w http.ResponseWriter, r *http.Request) {
	var in memory.ConceptInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.svc.StoreSemantic(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"concept_id": id})
}

func (h *Handler) storeStrategy(w http.ResponseWriter, r *http.Request) {
	var in memory.StrategyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.svc.StoreStrategy(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"strategy_id": id})
}

type retrieveRequest struct {
	Query          string `json:"query"`
	Limit          int    `json:"limit"`
	Kind           string `json:"kind,omitempty"`
	TimeWindowMins int    `json:"time_window_minutes,omitempty"`
}

func (h *Handler) retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	opts := memory.RetrieveOptions{
		Limit:      req.Limit,
		Kind:       memory.Kind(req.Kind),
		TimeWindow: time.Duration(req.TimeWindowMins) * time.Minute,
	}
	results, err := h.svc.Retrieve(r.Context(), req.Query, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if results == nil {
		results = []memory.ScoredItem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handler) consolidate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Consolidate(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type forgetRequest struct {
	Threshold float64 `json:"threshold,omitempty"`
}

func (h *Handler) forget(w http.ResponseWriter, r *http.Request) {
	var req forgetRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	writeJSON(w, http.StatusOK, h.svc.Forget(req.Threshold))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Statistics())
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusCreated, h.svc.CreateSession(id))
}

type attendRequest struct {
	ItemRef string   `json:"item_ref"`
	Weight  *float64 `json:"weight,omitempty"`
}

func (h *Handler) attend(w http.ResponseWriter, r *http.Request) {
	var req attendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	weight := 1.0
	if req.Weight != nil {
		weight = *req.Weight
	}

	session, err := h.svc.Attend(chi.URLParam(r, "id"), req.ItemRef, weight)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// writeServiceError maps the memory error taxonomy onto HTTP statuses:
// invalid input is the caller's fault, an embedding failure is a bad
// upstream, anything else is ours.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var contentErr *memory.ContentError
	if errors.As(err, &contentErr) {
		writeError(w, http.StatusBadRequest, contentErr.Error())
		return
	}
	var embErr *memory.EmbeddingError
	if errors.As(err, &embErr) {
		h.logger.Warn("embedding collaborator failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "embedding provider unavailable")
		return
	}
	h.logger.Error("memory operation failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
