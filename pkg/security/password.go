package security

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed    = errors.New("password hashing failed")
	ErrPasswordTooShort = errors.New("password too short")
	ErrMismatch         = errors.New("password mismatch")
)

// MinPasswordLen is the shortest password Hash accepts
const MinPasswordLen = 8

// PasswordHasher hashes account passwords and checks login attempts against them
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
	// CompareUnknown burns the same work as Compare for a login whose account does not
	// exist, so response time does not reveal which emails are registered. It always fails.
	CompareUnknown(password string) error
}

type bcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(hash), nil
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return ErrMismatch
	}
	return nil
}

func (b *bcryptHasher) CompareUnknown(password string) error {
	b.dummyOnce.Do(func() {
		// same cost as real hashes, so the comparison below takes as long
		b.dummy, _ = bcrypt.GenerateFromPassword([]byte("careflow-no-such-account"), b.cost)
	})
	_ = bcrypt.CompareHashAndPassword(b.dummy, []byte(password))
	return ErrMismatch
}
