package session

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/judging-portal/internal/models"
)

// Gate answers the password checks of an event. Implementations are opaque
// predicates; the core only consumes their boolean answers.
type Gate interface {
	VerifyOrganizer(password string) bool
	VerifyJudge(password string) bool
	VerifyViewer(password string) bool
}

// PasswordGate checks passwords from the competition config. Configured
// values starting with a bcrypt prefix are compared as hashes.
type PasswordGate struct {
	config models.CompetitionConfig
}

// NewPasswordGate builds a gate for the given config.
func NewPasswordGate(config models.CompetitionConfig) *PasswordGate {
	return &PasswordGate{config: config}
}

func (g *PasswordGate) VerifyOrganizer(password string) bool {
	return matchSecret(g.config.OrganizerPassword, password)
}

func (g *PasswordGate) VerifyJudge(password string) bool {
	return matchSecret(g.config.JudgePassword, password)
}

func (g *PasswordGate) VerifyViewer(password string) bool {
	return matchSecret(g.config.ViewPassword, password)
}

// CanView reports whether a session may read a private event.
func CanView(config models.CompetitionConfig, caps Capabilities, gate Gate, password string) bool {
	if !config.IsPrivate() {
		return true
	}
	if caps.Organizer || caps.Judge || caps.Contestant {
		return true
	}
	return gate != nil && gate.VerifyViewer(password)
}

// HashSecret produces a bcrypt hash suitable for the config file.
func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func matchSecret(configured, supplied string) bool {
	if configured == "" || supplied == "" {
		return false
	}
	if isBcrypt(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(supplied)) == 1
}

func isBcrypt(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
