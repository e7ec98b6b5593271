package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/playfab-session/internal/domain"
	"github.com/playfab-session/internal/service"
	"github.com/playfab-session/internal/session"
	"github.com/playfab-session/internal/websocket"
)

var (
	errLoginFailed        = errors.New("login failed")
	errNameNotAvailable   = errors.New("display name not available")
	errProfileNotUpdated  = errors.New("profile not updated")
	errStatNotUpdated     = errors.New("statistic not updated")
	errStatNotRead        = errors.New("statistic could not be read")
	errUserDataNotUpdated = errors.New("user data not updated")
	errJournalDisabled    = errors.New("event journal is disabled")
)

// Journal reads the persisted event journal and profile snapshots
type Journal interface {
	ListEvents(ctx context.Context, sessionID string, limit int) ([]domain.SessionEvent, error)
	GetProfile(ctx context.Context, playerID string) (*domain.PlayerSnapshot, error)
}

// ReadyCheck reports whether a dependency can serve requests
type ReadyCheck func(ctx context.Context) error

// Handler exposes the player service to the conversational host
type Handler struct {
	service *service.PlayerService
	hub     *websocket.Hub
	journal Journal
	checks  map[string]ReadyCheck
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc *service.PlayerService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: svc,
		hub:     hub,
		checks:  make(map[string]ReadyCheck),
		logger:  logger,
	}
}

// SetJournal enables the journal routes
func (h *Handler) SetJournal(j Journal) {
	h.journal = j
}

// AddReadyCheck registers a dependency checked by /ready
func (h *Handler) AddReadyCheck(name string, check ReadyCheck) {
	h.checks[name] = check
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", h.StartSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.EndSession)
			r.Post("/login", h.Login)
			r.Put("/profile", h.UpdateProfile)
			r.Get("/stats/{statName}", h.GetStat)
			r.Put("/stats/{statName}", h.UpdateStat)
			r.Get("/leaderboards/{statName}", h.GetLeaderboard)
			r.Get("/userdata", h.GetUserData)
			r.Put("/userdata", h.UpdateUserData)
			r.Get("/events", h.ListEvents)
		})

		r.Post("/stats/batch", h.SubmitStatBatch)
		r.Get("/players/{playerID}", h.GetPlayer)
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

// writeServiceError maps domain errors to status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingSessionID), errors.Is(err, domain.ErrMissingUserID):
		h.writeError(w, http.StatusBadRequest, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrNotLoggedIn):
		h.writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, domain.ErrLeaderboardUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrLeaderboardUnavailable)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// sessionView is the public shape of a conversation. The session ticket is never exposed.
type sessionView struct {
	SessionID          string             `json:"session_id"`
	UserID             string             `json:"user_id"`
	Locale             string             `json:"locale,omitempty"`
	LoggedIn           bool               `json:"logged_in"`
	LoginStatus        domain.LoginStatus `json:"login_status"`
	PlayerID           string             `json:"player_id,omitempty"`
	Profile            domain.ProfileInfo `json:"profile"`
	DisplayNameUpdated *bool              `json:"display_name_updated,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func viewOf(conv *session.Conversation) sessionView {
	return sessionView{
		SessionID:          conv.SessionID,
		UserID:             conv.UserID,
		Locale:             conv.Locale,
		LoggedIn:           conv.State.LoggedIn(),
		LoginStatus:        conv.State.LoginStatus,
		PlayerID:           conv.State.PlayerID,
		Profile:            conv.State.Profile,
		DisplayNameUpdated: conv.State.IsDisplayNameUpdated,
		CreatedAt:          conv.CreatedAt,
		UpdatedAt:          conv.UpdatedAt,
	}
}

// resume loads the conversation named in the URL and writes the error response if it cannot
func (h *Handler) resume(w http.ResponseWriter, r *http.Request) (*session.Conversation, bool) {
	conv, err := h.service.Resume(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeServiceError(w, "resume", err)
		return nil, false
	}
	return conv, true
}

// resumeLoggedIn is resume for operations that need a session ticket
func (h *Handler) resumeLoggedIn(w http.ResponseWriter, r *http.Request) (*session.Conversation, bool) {
	conv, ok := h.resume(w, r)
	if !ok {
		return nil, false
	}
	if !conv.State.LoggedIn() {
		h.writeError(w, http.StatusUnauthorized, domain.ErrNotLoggedIn)
		return nil, false
	}
	return conv, true
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, conv *session.Conversation) bool {
	if err := h.service.Save(r.Context(), conv); err != nil {
		h.writeServiceError(w, "save", err)
		return false
	}
	return true
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"total_connections": h.hub.TotalConnections()}
	if statName := r.URL.Query().Get("stat_name"); statName != "" {
		data["subscribers"] = h.hub.SubscriberCount(statName)
	}
	h.writeSuccess(w, data)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck runs every registered dependency check
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    map[string]any{"status": "not ready", "failed": failed},
			Error:   "dependencies unavailable",
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

type startSessionRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Locale    string `json:"locale"`
}

// StartSession begins a conversation turn, logging in when auto login is enabled
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	conv, err := h.service.Start(r.Context(), req.SessionID, req.UserID, req.Locale)
	if err != nil {
		h.writeServiceError(w, "start session", err)
		return
	}
	h.writeSuccess(w, viewOf(conv))
}

// GetSession returns the state of a conversation
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.resume(w, r)
	if !ok {
		return
	}
	h.writeSuccess(w, viewOf(conv))
}

// EndSession removes a conversation
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeServiceError(w, "end session", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// Login logs the conversation in. It is a no-op for a conversation that already is.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.resume(w, r)
	if !ok {
		return
	}

	h.service.Login(r.Context(), conv)
	if !h.save(w, r, conv) {
		return
	}
	if !conv.State.LoggedIn() {
		h.writeJSON(w, http.StatusBadGateway, APIResponse{
			Success: false,
			Data:    viewOf(conv),
			Error:   errLoginFailed.Error(),
		})
		return
	}
	h.writeSuccess(w, viewOf(conv))
}

type updateProfileRequest struct {
	DisplayName     string `json:"display_name"`
	AvatarURL       string `json:"avatar_url"`
	ExtendedProfile any    `json:"extended_profile"`
}

// UpdateProfile applies a display name and avatar to the logged in player
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	profile := domain.ProfileInfo{
		DisplayName:     strings.TrimSpace(req.DisplayName),
		AvatarURL:       strings.TrimSpace(req.AvatarURL),
		ExtendedProfile: req.ExtendedProfile,
	}
	if profile.IsEmpty() {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	conv, ok := h.resumeLoggedIn(w, r)
	if !ok {
		return
	}

	result := h.service.ApplyProfile(r.Context(), conv, profile)
	if !h.save(w, r, conv) {
		return
	}
	if !result.Updated {
		status, err := http.StatusBadGateway, errProfileNotUpdated
		if result.NameTaken {
			status, err = http.StatusConflict, errNameNotAvailable
		}
		h.writeJSON(w, status, APIResponse{Success: false, Data: viewOf(conv), Error: err.Error()})
		return
	}
	h.writeSuccess(w, viewOf(conv))
}

// GetStat returns a statistic of the logged in player
func (h *Handler) GetStat(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.resumeLoggedIn(w, r)
	if !ok {
		return
	}
	statName := chi.URLParam(r, "statName")

	value, err := h.service.GetStat(r.Context(), conv, statName)
	switch {
	case errors.Is(err, domain.ErrStatNotFound):
		h.writeError(w, http.StatusNotFound, domain.ErrStatNotFound)
		return
	case err != nil:
		h.logger.Error("failed to get statistic", "session_id", conv.SessionID, "stat_name", statName, "error", err)
		h.writeError(w, http.StatusBadGateway, errStatNotRead)
		return
	}
	h.writeSuccess(w, map[string]any{"stat_name": statName, "value": value})
}

type updateStatRequest struct {
	Value *int `json:"value"`
}

// UpdateStat sets a statistic of the logged in player
func (h *Handler) UpdateStat(w http.ResponseWriter, r *http.Request) {
	var req updateStatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	conv, ok := h.resumeLoggedIn(w, r)
	if !ok {
		return
	}
	statName := chi.URLParam(r, "statName")

	if !h.service.UpdateStat(r.Context(), conv, statName, *req.Value) {
		h.writeError(w, http.StatusBadGateway, errStatNotUpdated)
		return
	}
	h.writeSuccess(w, map[string]any{"stat_name": statName, "value": *req.Value})
}

// SubmitStatBatch applies stat submissions for many conversations
func (h *Handler) SubmitStatBatch(w http.ResponseWriter, r *http.Request) {
	var batch domain.BatchStatSubmission
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil || len(batch.Stats) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.service.SubmitStatBatch(r.Context(), batch); err != nil {
		h.writeServiceError(w, "submit stat batch", err)
		return
	}

	h.writeSuccess(w, map[string]any{
		"status":   "accepted",
		"received": len(batch.Stats),
	})
}

// GetLeaderboard returns the aggregated leaderboard around the logged in player.
// A failed aggregation is reported as 503, never as an empty leaderboard.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.resumeLoggedIn(w, r)
	if !ok {
		return
	}

	entries, err := h.service.GetLeaderboard(r.Context(), conv, chi.URLParam(r, "statName"))
	if err != nil {
		h.writeServiceError(w, "get leaderboard", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetUserData reads user data records. Keys are comma separated; player_id reads another player.
func (h *Handler) GetUserData(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.resumeLoggedIn(w, r)
	if !ok {
		return
	}

	var keys []string
	for _, k := range strings.Split(r.URL.Query().Get("keys"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	data, err := h.service.GetUserData(r.Context(), conv, keys, r.URL.Query().Get("player_id"))
	if err != nil {
		h.logger.Warn("failed to get user data", "session_id", conv.SessionID, "error", err)
		h.writeError(w, http.StatusBadGateway, errors.New("user data unavailable"))
		return
	}
	h.writeSuccess(w, data)
}

type updateUserDataRequest struct {
	Data       map[string]any            `json:"data"`
	Permission domain.UserDataPermission `json:"permission"`
}

// UpdateUserData stores user data records for the logged in player
func (h *Handler) UpdateUserData(w http.ResponseWriter, r *http.Request) {
	var req updateUserDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Data) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	switch req.Permission {
	case "", domain.UserDataPublic, domain.UserDataPrivate:
	default:
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	conv, ok := h.resumeLoggedIn(w, r)
	if !ok {
		return
	}

	if !h.service.UpdateUserData(r.Context(), conv, req.Data, req.Permission) {
		h.writeError(w, http.StatusBadGateway, errUserDataNotUpdated)
		return
	}
	h.writeSuccess(w, map[string]any{"status": "updated", "keys": len(req.Data)})
}

// ListEvents returns the journaled events of a conversation, newest first
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.writeError(w, http.StatusNotImplemented, errJournalDisabled)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	events, err := h.journal.ListEvents(r.Context(), chi.URLParam(r, "sessionID"), limit)
	if err != nil {
		h.writeServiceError(w, "list events", err)
		return
	}
	h.writeSuccess(w, events)
}

// GetPlayer returns the last profile snapshot of a player
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.writeError(w, http.StatusNotImplemented, errJournalDisabled)
		return
	}

	snapshot, err := h.journal.GetProfile(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		h.writeServiceError(w, "get player", err)
		return
	}
	h.writeSuccess(w, snapshot)
}
