package playfab

import (
	"context"
	"encoding/json"

	"github.com/playfab-session/internal/domain"
)

// LoginWithCustomIDRequest asserts a player identity by a stable external id
type LoginWithCustomIDRequest struct {
	TitleID               string                    `json:"TitleId"`
	CustomID              string                    `json:"CustomId"`
	CreateAccount         bool                      `json:"CreateAccount"`
	CustomTags            map[string]string         `json:"CustomTags,omitempty"`
	InfoRequestParameters *domain.InfoRequestParams `json:"InfoRequestParameters,omitempty"`
}

// LoginResult is the data payload of a successful login
type LoginResult struct {
	PlayFabID         string             `json:"PlayFabId"`
	SessionTicket     string             `json:"SessionTicket"`
	NewlyCreated      bool               `json:"NewlyCreated"`
	InfoResultPayload *CombinedInfoResult `json:"InfoResultPayload,omitempty"`
}

// CombinedInfoResult holds the facets requested through InfoRequestParams
type CombinedInfoResult struct {
	PlayerProfile *domain.PlayerProfile            `json:"PlayerProfile,omitempty"`
	UserData      map[string]domain.UserDataRecord `json:"UserData,omitempty"`
}

// StatisticUpdate sets one player statistic
type StatisticUpdate struct {
	StatisticName string            `json:"StatisticName"`
	Value         int               `json:"Value"`
	CustomTags    map[string]string `json:"CustomTags,omitempty"`
}

// StatisticValue is a player statistic as returned by the backend
type StatisticValue struct {
	StatisticName string `json:"StatisticName"`
	Value         int    `json:"Value"`
	Version       int    `json:"Version"`
}

// LeaderboardRequest fetches a leaderboard slice. StartPosition is only honoured by the
// top slice operation.
type LeaderboardRequest struct {
	StatisticName      string                     `json:"StatisticName"`
	MaxResultsCount    int                        `json:"MaxResultsCount"`
	StartPosition      *int                       `json:"StartPosition,omitempty"`
	ProfileConstraints *domain.ProfileConstraints `json:"ProfileConstraints,omitempty"`
}

// PlayerLeaderboardEntry is a single row of a leaderboard slice
type PlayerLeaderboardEntry struct {
	PlayFabID   string                `json:"PlayFabId"`
	DisplayName string                `json:"DisplayName,omitempty"`
	Position    int                   `json:"Position"`
	StatValue   int                   `json:"StatValue"`
	Profile     *domain.PlayerProfile `json:"Profile,omitempty"`
}

type leaderboardResult struct {
	Leaderboard []PlayerLeaderboardEntry `json:"Leaderboard"`
}

// Client wraps a Caller with typed backend operations
type Client struct {
	caller  Caller
	titleID string
}

// NewClient creates a typed client on top of caller
func NewClient(caller Caller, titleID string) *Client {
	return &Client{caller: caller, titleID: titleID}
}

// TitleID returns the backend title the client is bound to
func (c *Client) TitleID() string {
	return c.titleID
}

// LoginWithCustomID logs a player in, creating the account when requested.
// The raw data payload is returned alongside the decoded result.
func (c *Client) LoginWithCustomID(ctx context.Context, req LoginWithCustomIDRequest) (*LoginResult, json.RawMessage, error) {
	if req.TitleID == "" {
		req.TitleID = c.titleID
	}
	var result LoginResult
	raw, err := invoke(ctx, c.caller, OpLoginWithCustomID, "", req, &result)
	if err != nil {
		return nil, nil, err
	}
	return &result, raw, nil
}

// UpdateDisplayName sets the title display name and returns the name the backend stored
func (c *Client) UpdateDisplayName(ctx context.Context, ticket, displayName string) (string, error) {
	var result struct {
		DisplayName string `json:"DisplayName"`
	}
	req := map[string]string{"DisplayName": displayName}
	if _, err := invoke(ctx, c.caller, OpUpdateUserTitleDisplayName, ticket, req, &result); err != nil {
		return "", err
	}
	return result.DisplayName, nil
}

// UpdateAvatarURL sets the player avatar image URL
func (c *Client) UpdateAvatarURL(ctx context.Context, ticket, imageURL string) error {
	req := map[string]string{"ImageUrl": imageURL}
	_, err := invoke(ctx, c.caller, OpUpdateAvatarURL, ticket, req, nil)
	return err
}

// UpdatePlayerStatistics sets one or more statistics for the logged in player
func (c *Client) UpdatePlayerStatistics(ctx context.Context, ticket string, stats []StatisticUpdate) error {
	req := map[string]any{"Statistics": stats}
	_, err := invoke(ctx, c.caller, OpUpdatePlayerStatistics, ticket, req, nil)
	return err
}

// GetPlayerStatistics returns the named statistics of the logged in player
func (c *Client) GetPlayerStatistics(ctx context.Context, ticket string, names []string) ([]StatisticValue, error) {
	var result struct {
		Statistics []StatisticValue `json:"Statistics"`
	}
	req := map[string]any{"StatisticNames": names}
	if _, err := invoke(ctx, c.caller, OpGetPlayerStatistics, ticket, req, &result); err != nil {
		return nil, err
	}
	return result.Statistics, nil
}

// GetLeaderboard returns the slice of the leaderboard starting at req.StartPosition
func (c *Client) GetLeaderboard(ctx context.Context, ticket string, req LeaderboardRequest) ([]PlayerLeaderboardEntry, error) {
	if req.StartPosition == nil {
		start := 0
		req.StartPosition = &start
	}
	var result leaderboardResult
	if _, err := invoke(ctx, c.caller, OpGetLeaderboard, ticket, req, &result); err != nil {
		return nil, err
	}
	return result.Leaderboard, nil
}

// GetLeaderboardAroundPlayer returns the slice of the leaderboard centred on the logged in player
func (c *Client) GetLeaderboardAroundPlayer(ctx context.Context, ticket string, req LeaderboardRequest) ([]PlayerLeaderboardEntry, error) {
	req.StartPosition = nil
	var result leaderboardResult
	if _, err := invoke(ctx, c.caller, OpGetLeaderboardAroundPlayer, ticket, req, &result); err != nil {
		return nil, err
	}
	return result.Leaderboard, nil
}

// UpdateUserData writes already stringified user data records
func (c *Client) UpdateUserData(ctx context.Context, ticket string, data map[string]string, permission domain.UserDataPermission) error {
	req := map[string]any{
		"Data":       data,
		"Permission": permission,
	}
	_, err := invoke(ctx, c.caller, OpUpdateUserData, ticket, req, nil)
	return err
}

// GetUserData reads user data records. An empty playerID reads the logged in player.
func (c *Client) GetUserData(ctx context.Context, ticket string, keys []string, playerID string) (map[string]domain.UserDataRecord, error) {
	req := map[string]any{"Keys": keys}
	if playerID != "" {
		req["PlayFabId"] = playerID
	}
	var result struct {
		Data map[string]domain.UserDataRecord `json:"Data"`
	}
	if _, err := invoke(ctx, c.caller, OpGetUserData, ticket, req, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}
