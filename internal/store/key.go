package store

import (
	"strings"

	"github.com/gosimple/unidecode"
)

// Storage key constants.
const (
	KeyPrefix   = "judging_"
	AdminPhrase = "admin"
	AdminKey    = KeyPrefix + "admin"
)

// DeriveKey maps a human access phrase to a storage key: transliterated,
// lowercased, stripped to [a-z0-9] and prefixed. The reserved admin phrase
// maps to AdminKey. A phrase with nothing left after normalising yields "".
func DeriveKey(phrase string) string {
	trimmed := strings.TrimSpace(phrase)
	if strings.EqualFold(trimmed, AdminPhrase) {
		return AdminKey
	}

	ascii := strings.ToLower(unidecode.Unidecode(trimmed))
	var b strings.Builder
	b.Grow(len(ascii))
	for _, r := range ascii {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return KeyPrefix + b.String()
}

// ValidKey reports whether key looks like a derived storage key.
func ValidKey(key string) bool {
	if !strings.HasPrefix(key, KeyPrefix) || len(key) == len(KeyPrefix) {
		return false
	}
	for _, r := range key[len(KeyPrefix):] {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
