// Package auth issues and verifies the bearer tokens the API accepts. Logins
// and refresh flows belong to the identity provider; this service only needs
// to know who is calling and, for patients, which patient record is theirs.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/config"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain"
)

var (
	ErrTokenExpired  = errors.New("token has expired")
	ErrTokenInvalid  = errors.New("token is invalid")
	ErrInvalidClaims = errors.New("token claims are incomplete for the role")
)

const clockSkew = 10 * time.Second

// callerClaims is the wire form of domain.Claims.
type callerClaims struct {
	jwt.RegisteredClaims
	Email     string      `json:"email,omitempty"`
	Role      domain.Role `json:"role"`
	PatientID *uuid.UUID  `json:"patient_id,omitempty"`
}

type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

func NewIssuer(cfg config.JWTConfig) *Issuer {
	return &Issuer{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(clockSkew),
		),
		now: time.Now,
	}
}

// Issue signs an access token for c. A patient token must name its patient.
func (i *Issuer) Issue(c *domain.Claims) (string, time.Time, error) {
	if err := checkClaims(c.Role, c.PatientID); err != nil {
		return "", time.Time{}, err
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, callerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   c.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     c.Email,
		Role:      c.Role,
		PatientID: c.PatientID,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer and expiry, then the role-specific claims.
func (i *Issuer) Verify(raw string) (*domain.Claims, error) {
	var cc callerClaims
	_, err := i.parser.ParseWithClaims(raw, &cc, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	}

	userID, err := uuid.Parse(cc.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if err := checkClaims(cc.Role, cc.PatientID); err != nil {
		return nil, err
	}

	return &domain.Claims{
		UserID:    userID,
		Email:     cc.Email,
		Role:      cc.Role,
		PatientID: cc.PatientID,
	}, nil
}

func checkClaims(role domain.Role, patientID *uuid.UUID) error {
	if !role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, role)
	}
	if role == domain.RolePatient && (patientID == nil || *patientID == uuid.Nil) {
		return fmt.Errorf("%w: patient token without patient_id", ErrInvalidClaims)
	}
	return nil
}
