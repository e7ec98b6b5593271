package service

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/playfab-session/internal/domain"
	"github.com/playfab-session/internal/session"
)

var namePrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

// RandomNames is the default new profile supplier. Every call yields a fresh candidate
// so display name conflicts can be retried.
func RandomNames(_ context.Context, _ *session.Conversation) (domain.ProfileInfo, error) {
	prefix := namePrefixes[rand.Intn(len(namePrefixes))]
	return domain.ProfileInfo{
		DisplayName: fmt.Sprintf("%s%d", prefix, 100+rand.Intn(9900)),
	}, nil
}
