// Package auth issues and verifies HS256 join tokens.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/domain"
)

type Claims struct {
	jwt.RegisteredClaims
	Role     domain.Role `json:"role"`
	Contests []string    `json:"contests,omitempty"`
}

// JWT implements domain.TokenVerifier and mints tokens for tests and tooling.
type JWT struct {
	secret []byte
	clock  clockwork.Clock
	parser *jwt.Parser
}

var _ domain.TokenVerifier = (*JWT)(nil)

func NewJWT(secret string, clock clockwork.Clock) *JWT {
	return &JWT{
		secret: []byte(secret),
		clock:  clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock.Now),
		),
	}
}

func (j *JWT) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	now := j.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ParticipantID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:     id.Role,
		Contests: id.Contests,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// Verify returns domain.ErrUnauthorized for any token that does not parse, is expired,
// or carries an unknown role.
func (j *JWT) Verify(tokenString string) (domain.Identity, error) {
	claims := &Claims{}
	token, err := j.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !token.Valid {
		return domain.Identity{}, domain.ErrUnauthorized
	}

	if !claims.Role.Valid() {
		return domain.Identity{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, claims.Role)
	}
	if claims.Role == domain.RoleParticipant && claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: participant token without subject", domain.ErrUnauthorized)
	}

	return domain.Identity{
		ParticipantID: claims.Subject,
		Role:          claims.Role,
		Contests:      claims.Contests,
	}, nil
}
