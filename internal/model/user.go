package model

import (
	"strings"
	"time"
)

// Roles a user can hold. New accounts start as RoleStudent; only a
// superadmin can change a role.
const (
	RoleStudent    = "student"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// User represents an account in the `users` table / collection.
//
// Fields:
//
//	ID                 – opaque identifier (UUID string).
//	Username           – unique, trimmed and lower-cased.
//	Email              – unique, lower-cased.
//	Fullname           – display name, snapshotted onto events as organizer.
//	PasswordHash       – bcrypt hash; empty for external accounts.
//	ExternalID         – Google subject for accounts linked to Google.
//	IsExternalAccount  – true when the account was created through Google.
//	Role               – student, admin or superadmin.
//	RefreshTokenHash   – SHA-256 of the single valid refresh token ("" when none).
//	Interests          – free-form tags used to filter events.
type User struct {
	ID                string    `json:"id" bson:"_id"`
	Username          string    `json:"username" bson:"username"`
	Email             string    `json:"email" bson:"email"`
	Fullname          string    `json:"fullname" bson:"fullname"`
	PasswordHash      string    `json:"-" bson:"password_hash,omitempty"`
	ExternalID        string    `json:"-" bson:"external_id,omitempty"`
	IsExternalAccount bool      `json:"isExternalAccount" bson:"is_external_account"`
	Role              string    `json:"role" bson:"role"`
	RefreshTokenHash  string    `json:"-" bson:"refresh_token_hash,omitempty"`
	Interests         []string  `json:"interests" bson:"interests"`
	CreatedAt         time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" bson:"updated_at"`
}

// Public returns a copy of u with the secret fields cleared.
func (u User) Public() User {
	u.PasswordHash = ""
	u.RefreshTokenHash = ""
	u.ExternalID = ""
	if u.Interests == nil {
		u.Interests = []string{}
	}
	return u
}

// HasPassword reports whether the account can log in with a password.
func (u User) HasPassword() bool { return u.PasswordHash != "" }

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NormalizeInterests trims each tag, lower-cases it and drops blanks and
// duplicates while keeping the first-seen order.
func NormalizeInterests(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
