package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account roles
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleClerk   Role = "clerk"
)

var Roles = []Role{RolePatient, RoleDoctor, RoleClerk}

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleClerk:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole accepts a role name in any case
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

// User represents a registered account. Users are immutable after registration.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	FirstName    string    `json:"firstName" db:"first_name"`
	LastName     string    `json:"lastName" db:"last_name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

func (u *User) FullName() string {
	return joinName(u.FirstName, u.LastName)
}

func (u *User) Actor() Actor {
	return Actor{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
