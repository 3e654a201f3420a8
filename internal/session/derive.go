// Package session derives the acting role of a user for an event.
package session

import (
	"github.com/noah-isme/judging-portal/internal/models"
)

// Capabilities lists the roles an identity is structurally eligible to hold.
type Capabilities struct {
	Organizer  bool `json:"organizer"`
	Judge      bool `json:"judge"`
	Contestant bool `json:"contestant"`
	Viewer     bool `json:"viewer"`
}

// Has reports whether the role is among the capabilities.
func (c Capabilities) Has(role models.Role) bool {
	switch role {
	case models.RoleOrganizer:
		return c.Organizer
	case models.RoleJudge:
		return c.Judge
	case models.RoleContestant:
		return c.Contestant
	case models.RoleViewer:
		return c.Viewer
	default:
		return false
	}
}

// Roles returns the held roles in hierarchy order.
func (c Capabilities) Roles() []models.Role {
	roles := make([]models.Role, 0, len(models.RoleHierarchy))
	for _, role := range models.RoleHierarchy {
		if c.Has(role) {
			roles = append(roles, role)
		}
	}
	return roles
}

// Input is everything role derivation looks at.
type Input struct {
	Identity models.Identity
	Config   models.CompetitionConfig
	Judges   []models.Judge
	Entries  []models.Entry

	PreferredRole models.Role
	StoredRole    models.Role
	// GuestOrganizerVerified is the outcome of the organizer password gate.
	GuestOrganizerVerified bool
}

// Result is the derived role. Persist is set only when the role came from
// an explicit preference.
type Result struct {
	Role         models.Role  `json:"role"`
	Capabilities Capabilities `json:"capabilities"`
	Persist      bool         `json:"persist"`
}

// DeriveCapabilities checks which roles the identity may hold.
func DeriveCapabilities(in Input) Capabilities {
	userID := in.Identity.UserID
	caps := Capabilities{Viewer: true}

	if in.GuestOrganizerVerified || (userID != "" && in.Config.OrganizerID == userID) {
		caps.Organizer = true
	}
	for _, judge := range in.Judges {
		if judge.BoundTo(userID) {
			caps.Judge = true
			break
		}
	}
	for _, entry := range in.Entries {
		if entry.OwnedBy(userID) {
			caps.Contestant = true
			break
		}
	}
	return caps
}

// Derive picks the acting role: the preferred role if held, else the stored
// role if still held, else the most privileged held role.
func Derive(in Input) Result {
	caps := DeriveCapabilities(in)

	if in.PreferredRole != "" && caps.Has(in.PreferredRole) {
		return Result{Role: in.PreferredRole, Capabilities: caps, Persist: true}
	}
	if in.StoredRole != "" && caps.Has(in.StoredRole) {
		return Result{Role: in.StoredRole, Capabilities: caps}
	}
	for _, role := range models.RoleHierarchy {
		if caps.Has(role) {
			return Result{Role: role, Capabilities: caps}
		}
	}
	return Result{Role: models.RoleViewer, Capabilities: caps}
}
