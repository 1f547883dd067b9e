package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/config"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain"
)

func newIssuer(secret string) *Issuer {
	return NewIssuer(config.JWTConfig{
		Secret:         secret,
		AccessTokenTTL: time.Minute,
		Issuer:         "clinicflow-test",
	})
}

func TestIssuer_RoundTrip(t *testing.T) {
	i := newIssuer("0123456789abcdef0123456789abcdef")
	patientID := uuid.New()
	claims := &domain.Claims{UserID: uuid.New(), Email: "p@example.com", Role: domain.RolePatient, PatientID: &patientID}

	token, expiresAt, err := i.Issue(claims)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	got, err := i.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, claims, got)
}

func TestIssuer_PatientTokenNeedsPatientID(t *testing.T) {
	i := newIssuer("secret")

	_, _, err := i.Issue(&domain.Claims{UserID: uuid.New(), Role: domain.RolePatient})
	require.ErrorIs(t, err, ErrInvalidClaims)

	_, _, err = i.Issue(&domain.Claims{UserID: uuid.New(), Role: "janitor"})
	require.ErrorIs(t, err, ErrInvalidClaims)

	// A token signed with the right key but missing patient_id is still refused.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, callerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "clinicflow-test",
			Subject:   uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Role: domain.RolePatient,
	})
	raw, err := forged.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = i.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestIssuer_Rejects(t *testing.T) {
	staff := &domain.Claims{UserID: uuid.New(), Role: domain.RoleAdmin}

	t.Run("foreign signature", func(t *testing.T) {
		token, _, err := newIssuer("secret-a").Issue(staff)
		require.NoError(t, err)
		_, err = newIssuer("secret-b").Verify(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("other issuer", func(t *testing.T) {
		other := NewIssuer(config.JWTConfig{Secret: "secret", AccessTokenTTL: time.Minute, Issuer: "elsewhere"})
		token, _, err := other.Issue(staff)
		require.NoError(t, err)
		_, err = newIssuer("secret").Verify(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		i := newIssuer("secret")
		i.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _, err := i.Issue(staff)
		require.NoError(t, err)
		_, err = newIssuer("secret").Verify(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("unsigned", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, callerClaims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "clinicflow-test", Subject: uuid.NewString()},
			Role:             domain.RoleAdmin,
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = newIssuer("secret").Verify(raw)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
