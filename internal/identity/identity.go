// Package identity derives the stable user_id used throughout the hub from
// a raw username.
package identity

import "strings"

const userIDPrefix = "user-"

// DeriveUserID filters username to alphanumerics plus '-' and '_', lowercases
// it, and prefixes it with "user-". The derivation is stable: the same
// username always yields the same user_id. It is also idempotent: a leading
// "user-" is stripped before the prefix is re-applied, so re-deriving from an
// already-derived id returns the same id.
func DeriveUserID(username string) string {
	username = strings.TrimPrefix(strings.ToLower(username), userIDPrefix)

	filtered := make([]byte, 0, len(username))
	for i := 0; i < len(username); i++ {
		c := username[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			filtered = append(filtered, c)
		case c >= 'A' && c <= 'Z':
			filtered = append(filtered, c+('a'-'A'))
		}
	}
	return userIDPrefix + string(filtered)
}

// Identity is the resolved user making a request.
type Identity struct {
	UserID   string
	Username string
	Profile  string // name of the requested workshop profile, if any
}

// ValidUsername reports whether username would derive a non-empty user_id.
func ValidUsername(username string) bool {
	return len(strings.TrimSpace(username)) > 0 && DeriveUserID(username) != userIDPrefix
}
