package domain

import "time"

// LoginStatus is the outcome of the session login. The zero value means login has not run.
type LoginStatus string

const (
	LoginStatusUnset        LoginStatus = ""
	LoginStatusNewUser      LoginStatus = "newUser"
	LoginStatusExistingUser LoginStatus = "existingUser"
	LoginStatusError        LoginStatus = "error"
)

// ProfileInfo is the player profile as seen by the conversational host
type ProfileInfo struct {
	DisplayName     string `json:"display_name,omitempty"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	ExtendedProfile any    `json:"extended_profile,omitempty"`
}

// IsEmpty reports whether the profile carries nothing the backend can store as profile fields
func (p ProfileInfo) IsEmpty() bool {
	return p.DisplayName == "" && p.AvatarURL == ""
}

// PlayerProfile is the profile facet the backend embeds in login and leaderboard payloads
type PlayerProfile struct {
	PlayerID    string `json:"PlayerId,omitempty"`
	DisplayName string `json:"DisplayName,omitempty"`
	AvatarURL   string `json:"AvatarUrl,omitempty"`
}

// UserDataPermission controls who can read a user data record
type UserDataPermission string

const (
	UserDataPrivate UserDataPermission = "Private"
	UserDataPublic  UserDataPermission = "Public"
)

// UserDataRecord is a single stored user data value, owned by the backend
type UserDataRecord struct {
	LastUpdated time.Time          `json:"LastUpdated"`
	Permission  UserDataPermission `json:"Permission,omitempty"`
	Value       string             `json:"Value,omitempty"`
}

// PlayerSnapshot is the last known profile of a player, persisted for reporting
type PlayerSnapshot struct {
	PlayerID    string      `json:"player_id"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name,omitempty"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
	LoginStatus LoginStatus `json:"login_status"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
