package service

import (
	"context"
	"sync"

	"github.com/playfab-session/internal/domain"
	"github.com/playfab-session/internal/playfab"
	"github.com/playfab-session/internal/session"
)

type profileOutcome struct {
	displayName string
	err         error
}

// ProfileResult is the outcome of a single profile update
type ProfileResult struct {
	// Updated is true when at least one field was accepted
	Updated bool
	// NameTaken is true when this update's display name was rejected as taken
	NameTaken bool
}

// UpdateProfile applies the display name and avatar of profile to the backend and
// reports whether at least one of them was accepted. See ApplyProfile.
func (s *PlayerService) UpdateProfile(ctx context.Context, conv *session.Conversation, profile domain.ProfileInfo) bool {
	return s.ApplyProfile(ctx, conv, profile).Updated
}

// ApplyProfile applies the display name and avatar of profile to the backend.
// Both updates are issued together and each one is judged on its own; the profile is
// stored in the session when at least one of them succeeds. A name conflict sets the
// display name flag to false, any other failure leaves it as it was.
func (s *PlayerService) ApplyProfile(ctx context.Context, conv *session.Conversation, profile domain.ProfileInfo) ProfileResult {
	var result ProfileResult
	if profile.IsEmpty() {
		return result
	}
	state := conv.State
	ticket := state.SessionTicket

	var nameResult, avatarResult *profileOutcome
	var wg sync.WaitGroup

	if profile.DisplayName != "" {
		nameResult = &profileOutcome{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			nameResult.displayName, nameResult.err = s.api.UpdateDisplayName(ctx, ticket, profile.DisplayName)
		}()
	}

	if profile.AvatarURL != "" {
		avatarResult = &profileOutcome{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			avatarResult.err = s.api.UpdateAvatarURL(ctx, ticket, profile.AvatarURL)
		}()
	}

	wg.Wait()

	succeeded := 0

	if nameResult != nil {
		switch {
		case nameResult.err == nil:
			succeeded++
			if nameResult.displayName != "" {
				profile.DisplayName = nameResult.displayName
			}
			state.SetDisplayNameUpdated(true)
		case playfab.IsNameNotAvailable(nameResult.err):
			result.NameTaken = true
			state.SetDisplayNameUpdated(false)
			s.logger.Info("display name not available",
				"session_id", conv.SessionID,
				"display_name", profile.DisplayName,
			)
		default:
			s.logger.Warn("failed to update display name", "session_id", conv.SessionID, "error", nameResult.err)
		}
	}

	if avatarResult != nil {
		if avatarResult.err == nil {
			succeeded++
		} else {
			s.logger.Warn("failed to update avatar url", "session_id", conv.SessionID, "error", avatarResult.err)
		}
	}

	if succeeded == 0 {
		return result
	}

	state.Profile = mergeProfile(state.Profile, profile)

	if profile.ExtendedProfile != nil && s.login.ExtendedProfileKey != "" {
		data := map[string]any{s.login.ExtendedProfileKey: profile.ExtendedProfile}
		s.UpdateUserData(ctx, conv, data, domain.UserDataPublic)
	}

	s.record(ctx, conv, domain.EventProfileUpdate, map[string]any{
		"display_name": state.Profile.DisplayName,
		"avatar_url":   state.Profile.AvatarURL,
	})
	result.Updated = true
	return result
}

// mergeProfile overlays the fields set in next onto current
func mergeProfile(current, next domain.ProfileInfo) domain.ProfileInfo {
	merged := current
	if next.DisplayName != "" {
		merged.DisplayName = next.DisplayName
	}
	if next.AvatarURL != "" {
		merged.AvatarURL = next.AvatarURL
	}
	if next.ExtendedProfile != nil {
		merged.ExtendedProfile = next.ExtendedProfile
	}
	return merged
}
