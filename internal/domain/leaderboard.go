package domain

import (
	"time"
)

// ProfileConstraints selects which profile properties the backend returns with
// leaderboard entries and login payloads
type ProfileConstraints struct {
	ShowAvatarURL                     bool `json:"ShowAvatarUrl" yaml:"show_avatar_url"`
	ShowBannedUntil                   bool `json:"ShowBannedUntil" yaml:"show_banned_until"`
	ShowCampaignAttributions          bool `json:"ShowCampaignAttributions" yaml:"show_campaign_attributions"`
	ShowContactEmailAddresses         bool `json:"ShowContactEmailAddresses" yaml:"show_contact_email_addresses"`
	ShowCreated                       bool `json:"ShowCreated" yaml:"show_created"`
	ShowDisplayName                   bool `json:"ShowDisplayName" yaml:"show_display_name"`
	ShowExperimentVariants            bool `json:"ShowExperimentVariants" yaml:"show_experiment_variants"`
	ShowLastLogin                     bool `json:"ShowLastLogin" yaml:"show_last_login"`
	ShowLinkedAccounts                bool `json:"ShowLinkedAccounts" yaml:"show_linked_accounts"`
	ShowLocations                     bool `json:"ShowLocations" yaml:"show_locations"`
	ShowMemberships                   bool `json:"ShowMemberships" yaml:"show_memberships"`
	ShowOrigination                   bool `json:"ShowOrigination" yaml:"show_origination"`
	ShowPushNotificationRegistrations bool `json:"ShowPushNotificationRegistrations" yaml:"show_push_notification_registrations"`
	ShowStatistics                    bool `json:"ShowStatistics" yaml:"show_statistics"`
	ShowTags                          bool `json:"ShowTags" yaml:"show_tags"`
	ShowTotalValueToDateInUsd         bool `json:"ShowTotalValueToDateInUsd" yaml:"show_total_value_to_date_in_usd"`
	ShowValuesToDate                  bool `json:"ShowValuesToDate" yaml:"show_values_to_date"`
}

// InfoRequestParams lists the combined-info facets fetched eagerly with the login response
type InfoRequestParams struct {
	GetCharacterInventories bool                `json:"GetCharacterInventories" yaml:"get_character_inventories"`
	GetCharacterList        bool                `json:"GetCharacterList" yaml:"get_character_list"`
	GetPlayerProfile        bool                `json:"GetPlayerProfile" yaml:"get_player_profile"`
	GetPlayerStatistics     bool                `json:"GetPlayerStatistics" yaml:"get_player_statistics"`
	GetTitleData            bool                `json:"GetTitleData" yaml:"get_title_data"`
	GetUserAccountInfo      bool                `json:"GetUserAccountInfo" yaml:"get_user_account_info"`
	GetUserData             bool                `json:"GetUserData" yaml:"get_user_data"`
	GetUserInventory        bool                `json:"GetUserInventory" yaml:"get_user_inventory"`
	GetUserReadOnlyData     bool                `json:"GetUserReadOnlyData" yaml:"get_user_read_only_data"`
	GetUserVirtualCurrency  bool                `json:"GetUserVirtualCurrency" yaml:"get_user_virtual_currency"`
	PlayerStatisticNames    []string            `json:"PlayerStatisticNames,omitempty" yaml:"player_statistic_names"`
	ProfileConstraints      *ProfileConstraints `json:"ProfileConstraints,omitempty" yaml:"profile_constraints"`
	TitleDataKeys           []string            `json:"TitleDataKeys,omitempty" yaml:"title_data_keys"`
	UserDataKeys            []string            `json:"UserDataKeys,omitempty" yaml:"user_data_keys"`
	UserReadOnlyDataKeys    []string            `json:"UserReadOnlyDataKeys,omitempty" yaml:"user_read_only_data_keys"`
}

// LeaderboardEntry represents a single entry in an aggregated leaderboard
type LeaderboardEntry struct {
	PlayerID        string         `json:"player_id"`
	DisplayName     string         `json:"display_name,omitempty"`
	Position        int            `json:"position"`
	StatValue       int            `json:"stat_value"`
	Profile         *PlayerProfile `json:"profile,omitempty"`
	IsCurrentPlayer bool           `json:"is_current_player"`
	UserData        map[string]any `json:"user_data,omitempty"`
}

// StatSubmission represents a request to set a player statistic within a session
type StatSubmission struct {
	SessionID string `json:"session_id"`
	StatName  string `json:"stat_name"`
	Value     int    `json:"value"`
}

// BatchStatSubmission represents multiple stat submissions
type BatchStatSubmission struct {
	Stats []StatSubmission `json:"stats"`
}

// StatUpdate is broadcast to realtime subscribers after a statistic changes
type StatUpdate struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name,omitempty"`
	StatName    string `json:"stat_name"`
	Value       int    `json:"value"`
}

// SessionEventType names what happened in a session
type SessionEventType string

const (
	EventLogin          SessionEventType = "login"
	EventProfileUpdate  SessionEventType = "profile_update"
	EventStatUpdate     SessionEventType = "stat_update"
	EventUserDataUpdate SessionEventType = "user_data_update"
)

// SessionEvent is an auditable record of a backend side effect triggered by a session
type SessionEvent struct {
	ID        string           `json:"id"`
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id"`
	PlayerID  string           `json:"player_id,omitempty"`
	Data      map[string]any   `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
