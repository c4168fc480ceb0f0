package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-123"

func testIdentity() Identity {
	return Identity{
		UserID:    uuid.New(),
		Email:     "jane@example.com",
		Role:      "patient",
		FirstName: "Jane",
		LastName:  "Doe",
	}
}

func TestTokenService_IssueAndParse(t *testing.T) {
	svc := NewTokenService(Config{Secret: testSecret, Expiry: time.Hour, Issuer: "careflow"}, NewDenylist(time.Minute))
	id := testIdentity()

	token, issued, err := svc.Issue(id)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, issued.ID)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, id.UserID, claims.UserID)
	assert.Equal(t, "patient", claims.Role)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.Equal(t, "Jane", claims.FirstName)
	assert.Equal(t, "Doe", claims.LastName)
	assert.Equal(t, "careflow", claims.Issuer)
}

func TestTokenService_DefaultExpiryIsSevenDays(t *testing.T) {
	svc := NewTokenService(Config{Secret: testSecret}, nil)

	_, claims, err := svc.Issue(testIdentity())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	svc := NewTokenService(Config{Secret: testSecret, Expiry: time.Hour}, nil)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := svc.Issue(testIdentity())
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_RejectsTampered(t *testing.T) {
	svc := NewTokenService(Config{Secret: testSecret, Expiry: time.Hour}, nil)
	other := NewTokenService(Config{Secret: "another-secret-that-is-long-enough", Expiry: time.Hour}, nil)

	token, _, err := other.Issue(testIdentity())
	require.NoError(t, err)

	_, err = svc.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	svc := NewTokenService(Config{Secret: testSecret, Expiry: time.Hour}, nil)

	claims := &Claims{
		UserID: uuid.New(),
		Role:   "doctor",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Revoke(t *testing.T) {
	denylist := NewDenylist(time.Minute)
	svc := NewTokenService(Config{Secret: testSecret, Expiry: time.Hour}, denylist)

	token, _, err := svc.Issue(testIdentity())
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)

	svc.Revoke(claims)
	assert.Equal(t, 1, denylist.Len())

	_, err = svc.Parse(token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
