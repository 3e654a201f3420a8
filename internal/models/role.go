package models

import "strings"

// Role is the acting role of a session.
type Role string

const (
	RoleOrganizer  Role = "organizer"
	RoleJudge      Role = "judge"
	RoleContestant Role = "contestant"
	RoleViewer     Role = "viewer"
)

// RoleHierarchy lists roles from most to least privileged.
var RoleHierarchy = []Role{RoleOrganizer, RoleJudge, RoleContestant, RoleViewer}

// ParseRole normalises a role string. Unknown values yield "".
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleOrganizer:
		return RoleOrganizer
	case RoleJudge:
		return RoleJudge
	case RoleContestant:
		return RoleContestant
	case RoleViewer:
		return RoleViewer
	default:
		return ""
	}
}

// Identity is the authenticated user supplied by the identity provider.
type Identity struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
