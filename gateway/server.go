// Package gateway exposes the comment engine over HTTP. It is a thin
// boundary: request validation, bearer-token auth for moderator routes,
// per-client rate limiting and the SSE event stream. All semantics live
// behind services.ICommentService.
package gateway

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"comment-hub/auth"
	"comment-hub/errors"
	"comment-hub/services"
)

// ModeratorAccount is a statically configured moderator login. The hash is
// an argon2id encoded string produced by auth.HashPassword.
type ModeratorAccount struct {
	ID           string
	Name         string
	PasswordHash string
	Roles        []string
}

type Server struct {
	log        *slog.Logger
	service    services.ICommentService
	tokens     *auth.TokenManager
	validate   *validator.Validate
	limiter    *limiterPool
	moderators map[string]ModeratorAccount
	registry   *prometheus.Registry
}

func NewServer(log *slog.Logger, svc services.ICommentService, tokens *auth.TokenManager,
	moderators []ModeratorAccount, rps float64, burst int, registry *prometheus.Registry) *Server {
	byName := make(map[string]ModeratorAccount, len(moderators))
	for _, m := range moderators {
		byName[m.Name] = m
	}
	return &Server{
		log:        log,
		service:    svc,
		tokens:     tokens,
		validate:   validator.New(),
		limiter:    newLimiterPool(rps, burst),
		moderators: byName,
		registry:   registry,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public reader surface.
	api.HandleFunc("/threads", s.handleListThreads).Methods(http.MethodGet)
	api.HandleFunc("/threads/{id}/tree", s.handleCommentTree).Methods(http.MethodGet)
	api.HandleFunc("/threads/{id}/events", s.handleEventStream).Methods(http.MethodGet)
	api.HandleFunc("/comments", s.handleListComments).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)

	// Public writer surface, rate limited per client address.
	api.Handle("/comments", s.rateLimit(http.HandlerFunc(s.handleSubmitComment))).Methods(http.MethodPost)
	api.Handle("/comments/{id}", s.rateLimit(http.HandlerFunc(s.handleSelfDelete))).Methods(http.MethodDelete)
	api.Handle("/auth/token", s.rateLimit(http.HandlerFunc(s.handleToken))).Methods(http.MethodPost)

	// Moderator surface.
	mod := api.NewRoute().Subrouter()
	mod.Use(s.requireModerator)
	mod.HandleFunc("/threads", s.handleCreateThread).Methods(http.MethodPost)
	mod.HandleFunc("/threads/{id}", s.handleDeleteThread).Methods(http.MethodDelete)
	mod.HandleFunc("/threads/{id}/lock", s.handleSetLock).Methods(http.MethodPut)
	mod.HandleFunc("/moderation/{id}", s.handleModerate).Methods(http.MethodPost)
	mod.HandleFunc("/moderation/bulk", s.handleBulkModerate).Methods(http.MethodPost)
	mod.HandleFunc("/moderation/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the engine's sentinel errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var transition *errors.InvalidTransitionError
	if stderrors.As(err, &transition) {
		ids := make([]string, 0, len(transition.Offending))
		for _, id := range transition.Offending {
			ids = append(ids, id.String())
		}
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error":         errors.ErrInvalidTransition.Error(),
			"offending_ids": ids,
		})
		return
	}

	switch {
	case stderrors.Is(err, errors.ErrThreadNotFound),
		stderrors.Is(err, errors.ErrCommentNotFound),
		stderrors.Is(err, errors.ErrParentNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case stderrors.Is(err, errors.ErrDuplicateThread),
		stderrors.Is(err, errors.ErrThreadLocked),
		stderrors.Is(err, errors.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	case stderrors.Is(err, errors.ErrEmptyBody),
		stderrors.Is(err, errors.ErrBodyTooLong),
		stderrors.Is(err, errors.ErrInvalidPagination),
		stderrors.Is(err, errors.ErrThreadTooDeep):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case stderrors.Is(err, errors.ErrLockTimeout):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.log.Error("unhandled error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
