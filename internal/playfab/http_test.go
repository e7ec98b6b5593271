package playfab

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playfab-session/internal/config"
)

type capturedRequest struct {
	path   string
	header http.Header
	body   map[string]any
}

func newBackend(t *testing.T, status int, reply string) (*Client, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		captured = append(captured, capturedRequest{path: r.URL.Path, header: r.Header.Clone(), body: body})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(server.Close)

	cfg := &config.PlayFabConfig{
		TitleID:            "TITLE",
		DeveloperSecretKey: "secret",
		BaseURL:            server.URL + "/",
		Timeout:            time.Second,
	}
	caller := NewHTTPCaller(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewClient(caller, cfg.TitleID), &captured
}

func TestLoginWithCustomID(t *testing.T) {
	client, captured := newBackend(t, http.StatusOK, `{
		"code": 200,
		"status": "OK",
		"data": {"PlayFabId": "P1", "SessionTicket": "T1", "NewlyCreated": true}
	}`)

	result, raw, err := client.LoginWithCustomID(context.Background(), LoginWithCustomIDRequest{
		CustomID:      "user-1",
		CreateAccount: true,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.PlayFabID != "P1" || result.SessionTicket != "T1" || !result.NewlyCreated {
		t.Fatalf("result = %+v", result)
	}
	if len(raw) == 0 {
		t.Fatalf("expected raw payload")
	}

	req := (*captured)[0]
	if req.path != "/"+OpLoginWithCustomID {
		t.Fatalf("path = %q", req.path)
	}
	if req.body["TitleId"] != "TITLE" || req.body["CustomId"] != "user-1" {
		t.Fatalf("body = %v", req.body)
	}
	if req.header.Get("X-PlayFabSDK") == "" {
		t.Fatalf("missing SDK header")
	}
	if req.header.Get("X-Authorization") != "" {
		t.Fatalf("login must not send a session ticket")
	}
	if req.header.Get("X-SecretKey") != "" {
		t.Fatalf("client operations must not send the secret key")
	}
}

func TestCallHeaders(t *testing.T) {
	client, captured := newBackend(t, http.StatusOK, `{"code":200,"status":"OK","data":{}}`)

	if err := client.UpdateAvatarURL(context.Background(), "ticket-1", "https://img"); err != nil {
		t.Fatalf("update avatar: %v", err)
	}
	if got := (*captured)[0].header.Get("X-Authorization"); got != "ticket-1" {
		t.Fatalf("X-Authorization = %q, want ticket-1", got)
	}

	if _, err := client.caller.Call(context.Background(), "Server/GetUserData", "", map[string]string{}); err != nil {
		t.Fatalf("server call: %v", err)
	}
	if got := (*captured)[1].header.Get("X-SecretKey"); got != "secret" {
		t.Fatalf("X-SecretKey = %q, want secret", got)
	}
}

func TestCallNameNotAvailable(t *testing.T) {
	client, _ := newBackend(t, http.StatusBadRequest, `{
		"code": 400,
		"status": "BadRequest",
		"error": "NameNotAvailable",
		"errorCode": 1058,
		"errorMessage": "Name not available"
	}`)

	_, err := client.UpdateDisplayName(context.Background(), "ticket-1", "Ace")
	if !IsNameNotAvailable(err) {
		t.Fatalf("err = %v, want name not available", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode != 1058 || apiErr.Code != 400 {
		t.Fatalf("api error = %+v", apiErr)
	}
}

func TestCallStatusOnlyError(t *testing.T) {
	client, _ := newBackend(t, http.StatusServiceUnavailable, `upstream unavailable`)

	err := client.UpdateAvatarURL(context.Background(), "ticket-1", "https://img")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != http.StatusServiceUnavailable || apiErr.Name != "" {
		t.Fatalf("api error = %+v", apiErr)
	}
	if IsNameNotAvailable(err) {
		t.Fatalf("status-only error reported as name conflict")
	}
}

func TestNonOKEnvelope(t *testing.T) {
	client, _ := newBackend(t, http.StatusOK, `{"code":200,"status":"Pending"}`)

	err := client.UpdateAvatarURL(context.Background(), "ticket-1", "https://img")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != "Pending" {
		t.Fatalf("err = %v, want envelope status error", err)
	}
}

func TestGetLeaderboardDefaultsStartPosition(t *testing.T) {
	client, captured := newBackend(t, http.StatusOK, `{
		"code": 200,
		"status": "OK",
		"data": {"Leaderboard": [
			{"PlayFabId": "A", "DisplayName": "Ace", "Position": 0, "StatValue": 90},
			{"PlayFabId": "B", "Position": 1, "StatValue": 80}
		]}
	}`)

	rows, err := client.GetLeaderboard(context.Background(), "ticket-1", LeaderboardRequest{StatisticName: "wins", MaxResultsCount: 2})
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	if len(rows) != 2 || rows[0].DisplayName != "Ace" || rows[1].StatValue != 80 {
		t.Fatalf("rows = %+v", rows)
	}
	if start, ok := (*captured)[0].body["StartPosition"]; !ok || start != float64(0) {
		t.Fatalf("StartPosition = %v, want 0", start)
	}

	if _, err := client.GetLeaderboardAroundPlayer(context.Background(), "ticket-1", LeaderboardRequest{StatisticName: "wins", MaxResultsCount: 2}); err != nil {
		t.Fatalf("get around player: %v", err)
	}
	if _, ok := (*captured)[1].body["StartPosition"]; ok {
		t.Fatalf("around player request must not carry StartPosition")
	}
}

func TestGetUserDataPlayerID(t *testing.T) {
	client, captured := newBackend(t, http.StatusOK, `{
		"code": 200,
		"status": "OK",
		"data": {"Data": {"avatar": {"Value": "\"fox\""}}}
	}`)

	data, err := client.GetUserData(context.Background(), "ticket-1", []string{"avatar"}, "P2")
	if err != nil {
		t.Fatalf("get user data: %v", err)
	}
	if data["avatar"].Value != `"fox"` {
		t.Fatalf("data = %+v", data)
	}
	if (*captured)[0].body["PlayFabId"] != "P2" {
		t.Fatalf("body = %v", (*captured)[0].body)
	}
}
