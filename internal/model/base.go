package model

import (
	"github.com/google/uuid"
)

// Actor is the authenticated caller of a workflow operation
type Actor struct {
	ID        uuid.UUID
	Email     string
	Role      Role
	FirstName string
	LastName  string
}

func (a Actor) FullName() string {
	return joinName(a.FirstName, a.LastName)
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
