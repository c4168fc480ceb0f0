package model

import "strings"

// RegisterRequest represents registration parameters. Either FirstName/LastName or Name is required.
type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"max=100"`
	LastName  string `json:"lastName" binding:"max=100"`
	Name      string `json:"name" binding:"max=200"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Role      string `json:"role" binding:"required,role"`
}

// SplitName fills FirstName and LastName from Name when they are missing
func (r *RegisterRequest) SplitName() {
	if r.FirstName != "" || r.Name == "" {
		return
	}
	first, last, _ := strings.Cut(strings.TrimSpace(r.Name), " ")
	r.FirstName = first
	if r.LastName == "" {
		r.LastName = strings.TrimSpace(last)
	}
}

// LoginRequest represents login parameters
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required,role"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    *User  `json:"user"`
}
