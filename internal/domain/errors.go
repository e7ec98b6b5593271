package domain

import "errors"

// Domain errors
var (
	ErrSessionNotFound        = errors.New("session not found")
	ErrPlayerNotFound         = errors.New("player not found")
	ErrStatNotFound           = errors.New("statistic not found")
	ErrMissingSessionID       = errors.New("session id is missing")
	ErrMissingUserID          = errors.New("user id is missing")
	ErrNotLoggedIn            = errors.New("session is not logged in")
	ErrLeaderboardUnavailable = errors.New("leaderboard unavailable")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInternalError          = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrPlayerNotFound)
}
