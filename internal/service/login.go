package service

import (
	"context"

	"github.com/playfab-session/internal/domain"
	"github.com/playfab-session/internal/playfab"
	"github.com/playfab-session/internal/session"
	"github.com/playfab-session/internal/userdata"
)

// Login establishes the player identity for the conversation. It does nothing when
// the conversation already holds a session ticket. Failures are logged and leave the
// login status at error; they are never returned.
func (s *PlayerService) Login(ctx context.Context, conv *session.Conversation) {
	state := conv.State
	if state.LoggedIn() {
		return
	}

	params := s.login.InfoRequestParameters
	req := playfab.LoginWithCustomIDRequest{
		CustomID:              conv.UserID,
		CreateAccount:         true,
		CustomTags:            map[string]string{"sessionId": conv.SessionID},
		InfoRequestParameters: &params,
	}

	result, raw, err := s.api.LoginWithCustomID(ctx, req)
	if err != nil {
		s.logger.Error("login failed",
			"session_id", conv.SessionID,
			"user_id", conv.UserID,
			"error", err,
		)
		state.LoginStatus = domain.LoginStatusError
		return
	}

	state.LoginInfo = raw
	state.SessionTicket = result.SessionTicket
	state.PlayerID = result.PlayFabID

	if result.NewlyCreated {
		s.setupNewPlayer(ctx, conv)
	} else {
		s.loadExistingPlayer(ctx, conv, result)
	}

	s.logger.Info("player logged in",
		"session_id", conv.SessionID,
		"player_id", state.PlayerID,
		"login_status", state.LoginStatus,
	)
	s.record(ctx, conv, domain.EventLogin, map[string]any{
		"login_status": string(state.LoginStatus),
		"display_name": state.Profile.DisplayName,
	})
}

// setupNewPlayer names a newly created player, retrying while the backend reports the
// candidate display name as taken
func (s *PlayerService) setupNewPlayer(ctx context.Context, conv *session.Conversation) {
	state := conv.State
	state.LoginStatus = domain.LoginStatusNewUser

	if s.newProfile == nil {
		return
	}

	profile, err := s.newProfile(ctx, conv)
	if err != nil {
		s.logger.Warn("new profile supplier failed", "session_id", conv.SessionID, "error", err)
		return
	}
	s.UpdateProfile(ctx, conv, profile)

	retries := 0
	for ; retries < s.login.MaxNewProfileRetries && !state.DisplayNameUpdated(); retries++ {
		candidate, err := s.newProfile(ctx, conv)
		if err != nil {
			s.logger.Warn("new profile supplier failed", "session_id", conv.SessionID, "retry", retries+1, "error", err)
			return
		}
		s.UpdateProfile(ctx, conv, domain.ProfileInfo{DisplayName: candidate.DisplayName})
	}

	if !state.DisplayNameUpdated() {
		s.logger.Warn("display name not set for new player",
			"session_id", conv.SessionID,
			"player_id", state.PlayerID,
			"retries", retries,
		)
	}
}

// loadExistingPlayer builds the session profile from the login payload, fetching the
// extended profile only when the payload does not already carry it
func (s *PlayerService) loadExistingPlayer(ctx context.Context, conv *session.Conversation, result *playfab.LoginResult) {
	state := conv.State
	state.LoginStatus = domain.LoginStatusExistingUser

	var profile domain.ProfileInfo
	var embedded map[string]domain.UserDataRecord
	if info := result.InfoResultPayload; info != nil {
		if info.PlayerProfile != nil {
			profile.DisplayName = info.PlayerProfile.DisplayName
			profile.AvatarURL = info.PlayerProfile.AvatarURL
		}
		embedded = info.UserData
	}

	if key := s.login.ExtendedProfileKey; key != "" {
		var data map[string]any
		if _, ok := embedded[key]; ok {
			data = userdata.Parse(embedded)
		} else {
			fetched, err := s.GetUserData(ctx, conv, []string{key}, "")
			if err != nil {
				s.logger.Warn("failed to load extended profile", "session_id", conv.SessionID, "error", err)
			}
			data = fetched
		}

		// A missing record leaves the extended profile unset.
		if v, ok := data[key]; ok && v != nil {
			profile.ExtendedProfile = v
		}
	}

	state.Profile = profile
}
