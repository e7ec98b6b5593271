package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/playfab-session/internal/config"
	"github.com/playfab-session/internal/domain"
	"github.com/playfab-session/internal/playfab"
	"github.com/playfab-session/internal/service"
	"github.com/playfab-session/internal/session"
	"github.com/playfab-session/internal/websocket"
)

// stubCaller answers operations from a fixed table; missing operations fail
type stubCaller map[string]func() (any, error)

func (s stubCaller) Call(_ context.Context, operation, _ string, _ any) (*playfab.Response, error) {
	fn, ok := s[operation]
	if !ok {
		return nil, fmt.Errorf("unexpected operation %s", operation)
	}
	data, err := fn()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &playfab.Response{Code: 200, Status: playfab.StatusOK, Data: raw}, nil
}

type stubJournal struct {
	events []domain.SessionEvent
}

func (j *stubJournal) ListEvents(_ context.Context, sessionID string, limit int) ([]domain.SessionEvent, error) {
	return j.events, nil
}

func (j *stubJournal) GetProfile(_ context.Context, playerID string) (*domain.PlayerSnapshot, error) {
	if playerID != "P1" {
		return nil, domain.ErrPlayerNotFound
	}
	return &domain.PlayerSnapshot{PlayerID: "P1", DisplayName: "Ace"}, nil
}

func newTestServer(t *testing.T, caller stubCaller) (*Handler, *session.MemoryStore, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig()
	store := session.NewMemoryStore(0)

	svc := service.NewPlayerService(playfab.NewClient(caller, "TITLE"), store, &cfg.Login, &cfg.Leaderboard, logger)
	hub := websocket.NewHub(logger)
	h := NewHandler(svc, hub, logger)
	return h, store, h.Router()
}

func do(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func seedLoggedIn(t *testing.T, store *session.MemoryStore, sessionID string) {
	t.Helper()
	conv := session.NewConversation(sessionID, "user-1", "")
	conv.State.SessionTicket = "ticket"
	conv.State.PlayerID = "P1"
	conv.State.LoginStatus = domain.LoginStatusExistingUser
	if err := store.Put(context.Background(), conv); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestStartSession(t *testing.T) {
	_, _, router := newTestServer(t, stubCaller{
		playfab.OpLoginWithCustomID: func() (any, error) {
			return playfab.LoginResult{PlayFabID: "P1", SessionTicket: "secret-ticket"}, nil
		},
	})

	rec, resp := do(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{
		"session_id": "s1",
		"user_id":    "user-1",
	})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("secret-ticket")) {
		t.Fatalf("session ticket leaked: %s", rec.Body.String())
	}
	data := resp.Data.(map[string]any)
	if data["login_status"] != string(domain.LoginStatusExistingUser) || data["player_id"] != "P1" {
		t.Fatalf("session = %v", data)
	}

	rec, _ = do(t, router, http.MethodGet, "/api/v1/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session status = %d", rec.Code)
	}

	rec, _ = do(t, router, http.MethodDelete, "/api/v1/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec, _ = do(t, router, http.MethodGet, "/api/v1/sessions/s1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted session status = %d, want 404", rec.Code)
	}
}

func TestStartSessionValidation(t *testing.T) {
	_, _, router := newTestServer(t, stubCaller{})

	rec, _ := do(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{"session_id": "s1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoginFailureIsBadGateway(t *testing.T) {
	_, store, router := newTestServer(t, stubCaller{
		playfab.OpLoginWithCustomID: func() (any, error) { return nil, errors.New("unreachable") },
	})
	if err := store.Put(context.Background(), session.NewConversation("s1", "user-1", "")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, resp := do(t, router, http.MethodPost, "/api/v1/sessions/s1/login", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if data := resp.Data.(map[string]any); data["login_status"] != string(domain.LoginStatusError) {
		t.Fatalf("session = %v", data)
	}
}

func TestLeaderboardUnavailable(t *testing.T) {
	_, store, router := newTestServer(t, stubCaller{
		playfab.OpGetLeaderboard: func() (any, error) {
			return map[string]any{"Leaderboard": []any{}}, nil
		},
		playfab.OpGetLeaderboardAroundPlayer: func() (any, error) {
			return nil, &playfab.APIError{Code: 503, Status: "ServiceUnavailable"}
		},
	})
	seedLoggedIn(t, store, "s1")

	rec, resp := do(t, router, http.MethodGet, "/api/v1/sessions/s1/leaderboards/wins", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp.Success || resp.Data != nil {
		t.Fatalf("response = %+v, want an error without entries", resp)
	}
}

func TestLeaderboard(t *testing.T) {
	_, store, router := newTestServer(t, stubCaller{
		playfab.OpGetLeaderboard: func() (any, error) {
			return map[string]any{"Leaderboard": []playfab.PlayerLeaderboardEntry{
				{PlayFabID: "A", DisplayName: "Ann", Position: 0, StatValue: 10},
			}}, nil
		},
		playfab.OpGetLeaderboardAroundPlayer: func() (any, error) {
			return map[string]any{"Leaderboard": []playfab.PlayerLeaderboardEntry{
				{PlayFabID: "P1", DisplayName: "Me", Position: 4, StatValue: 3},
			}}, nil
		},
	})
	seedLoggedIn(t, store, "s1")

	rec, resp := do(t, router, http.MethodGet, "/api/v1/sessions/s1/leaderboards/wins", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	entries := resp.Data.([]any)
	if len(entries) != 2 {
		t.Fatalf("entries = %v", entries)
	}
	if me := entries[1].(map[string]any); me["is_current_player"] != true {
		t.Fatalf("current player entry = %v", me)
	}
}

func TestOperationsRequireLogin(t *testing.T) {
	_, store, router := newTestServer(t, stubCaller{})
	if err := store.Put(context.Background(), session.NewConversation("s1", "user-1", "")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/sessions/s1/leaderboards/wins", nil},
		{http.MethodGet, "/api/v1/sessions/s1/stats/wins", nil},
		{http.MethodPut, "/api/v1/sessions/s1/stats/wins", map[string]int{"value": 1}},
		{http.MethodPut, "/api/v1/sessions/s1/profile", map[string]string{"display_name": "Ace"}},
		{http.MethodGet, "/api/v1/sessions/s1/userdata?keys=a", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec, _ := do(t, router, tt.method, tt.path, tt.body)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestUpdateProfileNameConflict(t *testing.T) {
	_, store, router := newTestServer(t, stubCaller{
		playfab.OpUpdateUserTitleDisplayName: func() (any, error) {
			return nil, &playfab.APIError{Code: 400, Status: "BadRequest", Name: playfab.ErrorNameNotAvailable}
		},
	})
	seedLoggedIn(t, store, "s1")

	rec, _ := do(t, router, http.MethodPut, "/api/v1/sessions/s1/profile", map[string]string{"display_name": "Ace"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	conv, err := store.Get(context.Background(), "s1")
	if err != nil || conv == nil {
		t.Fatalf("get: %v", err)
	}
	if flag := conv.State.IsDisplayNameUpdated; flag == nil || *flag {
		t.Fatalf("stored display name flag = %v, want false", flag)
	}
}

func TestUpdateProfileTransportFailureAfterConflict(t *testing.T) {
	_, store, router := newTestServer(t, stubCaller{
		playfab.OpUpdateUserTitleDisplayName: func() (any, error) { return nil, errors.New("connection reset") },
	})

	// Login retries ran out and left the flag false.
	conv := session.NewConversation("s1", "user-1", "")
	conv.State.SessionTicket = "ticket"
	conv.State.PlayerID = "P1"
	conv.State.LoginStatus = domain.LoginStatusNewUser
	conv.State.SetDisplayNameUpdated(false)
	if err := store.Put(context.Background(), conv); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, resp := do(t, router, http.MethodPut, "/api/v1/sessions/s1/profile", map[string]string{"display_name": "Ace"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if resp.Error != errProfileNotUpdated.Error() {
		t.Fatalf("error = %q, want %q", resp.Error, errProfileNotUpdated)
	}
}

func TestStats(t *testing.T) {
	_, store, router := newTestServer(t, stubCaller{
		playfab.OpUpdatePlayerStatistics: func() (any, error) { return struct{}{}, nil },
		playfab.OpGetPlayerStatistics: func() (any, error) {
			return map[string]any{"Statistics": []playfab.StatisticValue{{StatisticName: "wins", Value: 4}}}, nil
		},
	})
	seedLoggedIn(t, store, "s1")

	rec, _ := do(t, router, http.MethodPut, "/api/v1/sessions/s1/stats/wins", map[string]int{"value": 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	rec, _ = do(t, router, http.MethodPut, "/api/v1/sessions/s1/stats/wins", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("update without value status = %d, want 400", rec.Code)
	}

	rec, resp := do(t, router, http.MethodGet, "/api/v1/sessions/s1/stats/wins", nil)
	if rec.Code != http.StatusOK || resp.Data.(map[string]any)["value"] != float64(4) {
		t.Fatalf("get status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, router, http.MethodGet, "/api/v1/sessions/s1/stats/losses", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown stat status = %d, want 404", rec.Code)
	}

	rec, _ = do(t, router, http.MethodPost, "/api/v1/stats/batch", map[string]any{"stats": []any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch status = %d, want 400", rec.Code)
	}
	rec, resp = do(t, router, http.MethodPost, "/api/v1/stats/batch", domain.BatchStatSubmission{
		Stats: []domain.StatSubmission{{SessionID: "s1", StatName: "wins", Value: 5}},
	})
	if rec.Code != http.StatusOK || resp.Data.(map[string]any)["received"] != float64(1) {
		t.Fatalf("batch status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestGetStatBackendFailure(t *testing.T) {
	_, store, router := newTestServer(t, stubCaller{
		playfab.OpGetPlayerStatistics: func() (any, error) { return nil, errors.New("connection reset") },
	})
	seedLoggedIn(t, store, "s1")

	rec, _ := do(t, router, http.MethodGet, "/api/v1/sessions/s1/stats/wins", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestJournalRoutes(t *testing.T) {
	h, _, router := newTestServer(t, stubCaller{})

	rec, _ := do(t, router, http.MethodGet, "/api/v1/players/P1", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status without journal = %d, want 501", rec.Code)
	}

	h.SetJournal(&stubJournal{events: []domain.SessionEvent{{ID: "e1", Type: domain.EventLogin}}})
	router = h.Router()

	rec, _ = do(t, router, http.MethodGet, "/api/v1/players/P1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("player status = %d", rec.Code)
	}
	rec, _ = do(t, router, http.MethodGet, "/api/v1/players/P2", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown player status = %d, want 404", rec.Code)
	}
	rec, resp := do(t, router, http.MethodGet, "/api/v1/sessions/s1/events?limit=10", nil)
	if rec.Code != http.StatusOK || len(resp.Data.([]any)) != 1 {
		t.Fatalf("events status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestReadyCheck(t *testing.T) {
	h, _, router := newTestServer(t, stubCaller{})

	rec, _ := do(t, router, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	h.AddReadyCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec, resp := do(t, router, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	failed := resp.Data.(map[string]any)["failed"].(map[string]any)
	if failed["redis"] != "connection refused" {
		t.Fatalf("failed = %v", failed)
	}
}
