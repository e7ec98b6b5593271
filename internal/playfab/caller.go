// Package playfab talks to the player backend. Every backend operation goes through
// a Caller, which returns the backend's success envelope or an *APIError.
package playfab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// StatusOK is the envelope status of a successful call
const StatusOK = "OK"

// ErrorNameNotAvailable is returned by display name updates when the name is taken
const ErrorNameNotAvailable = "NameNotAvailable"

// Backend operations
const (
	OpLoginWithCustomID          = "Client/LoginWithCustomID"
	OpUpdateUserTitleDisplayName = "Client/UpdateUserTitleDisplayName"
	OpUpdateAvatarURL            = "Client/UpdateAvatarUrl"
	OpUpdatePlayerStatistics     = "Client/UpdatePlayerStatistics"
	OpGetPlayerStatistics        = "Client/GetPlayerStatistics"
	OpGetLeaderboard             = "Client/GetLeaderboard"
	OpGetLeaderboardAroundPlayer = "Client/GetLeaderboardAroundPlayer"
	OpUpdateUserData             = "Client/UpdateUserData"
	OpGetUserData                = "Client/GetUserData"
)

// Caller invokes a named backend operation. A non-nil error is either a transport
// failure or an *APIError describing the rejection.
type Caller interface {
	Call(ctx context.Context, operation, sessionTicket string, request any) (*Response, error)
}

// Response is the backend success envelope
type Response struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// APIError is the backend failure envelope
type APIError struct {
	Code         int                 `json:"code"`
	Status       string              `json:"status"`
	Name         string              `json:"error"`
	ErrorCode    int                 `json:"errorCode"`
	ErrorMessage string              `json:"errorMessage"`
	ErrorDetails map[string][]string `json:"errorDetails,omitempty"`
}

func (e *APIError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("playfab: status %s (%d)", e.Status, e.Code)
	}
	return fmt.Sprintf("playfab: %s (%d): %s", e.Name, e.ErrorCode, e.ErrorMessage)
}

// IsNameNotAvailable reports whether err is a display name conflict
func IsNameNotAvailable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Name == ErrorNameNotAvailable
}

// invoke calls operation and decodes the data payload of a successful response into out.
// It returns the raw data so callers can keep the untouched payload.
func invoke(ctx context.Context, caller Caller, operation, ticket string, request, out any) (json.RawMessage, error) {
	resp, err := caller.Call(ctx, operation, ticket, request)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Status != StatusOK {
		apiErr := &APIError{}
		if resp != nil {
			apiErr.Code = resp.Code
			apiErr.Status = resp.Status
		}
		return nil, apiErr
	}

	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return nil, fmt.Errorf("decoding %s response: %w", operation, err)
		}
	}
	return resp.Data, nil
}
