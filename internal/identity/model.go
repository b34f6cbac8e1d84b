package identity

import "time"

// User is an account holder identified by a normalized email.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Registration carries the raw signup fields.
type Registration struct {
	Email    string
	Password string
	Name     string
	// Verified stores the account as already verified.
	Verified bool
	// ReplaceUnverified lets a signup overwrite the credentials of an
	// existing account that never completed verification.
	ReplaceUnverified bool
}

// Profile is the client-facing view of a user.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile returns the public fields of u.
func (u User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, Name: u.Name, Verified: u.Verified, CreatedAt: u.CreatedAt}
}
