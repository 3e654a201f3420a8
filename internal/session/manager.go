package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-portal/internal/models"
)

// RoleStore persists the chosen role across restarts.
type RoleStore interface {
	Role(ctx context.Context) models.Role
	SetRole(ctx context.Context, role models.Role) error
}

// Manager resolves the session role using the stored role as a fallback.
type Manager struct {
	store  RoleStore
	logger zerolog.Logger
}

// NewManager constructs a session manager.
func NewManager(store RoleStore, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// Resolve derives the role and persists it when it came from an explicit
// preference. A failed write is logged; the derived role is still returned.
func (m *Manager) Resolve(ctx context.Context, in Input) Result {
	if in.StoredRole == "" && m.store != nil {
		in.StoredRole = m.store.Role(ctx)
	}

	result := Derive(in)
	if result.Persist && m.store != nil {
		if err := m.store.SetRole(ctx, result.Role); err != nil {
			m.logger.Warn().Err(err).Str("role", string(result.Role)).Msg("failed to persist role")
		}
	}

	m.logger.Debug().
		Str("role", string(result.Role)).
		Str("preferred", string(in.PreferredRole)).
		Str("stored", string(in.StoredRole)).
		Bool("persist", result.Persist).
		Msg("session role derived")
	return result
}
