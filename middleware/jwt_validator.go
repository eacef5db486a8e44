package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// sessionClaims is the wire form of a session token. The role may sit at the
// top level or under app_metadata; app_metadata wins.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata appMetadata `json:"app_metadata,omitempty"`
}

type appMetadata struct {
	Role string `json:"role,omitempty"`
}

// JWTValidator validates HS256 session tokens signed with a shared secret
type JWTValidator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewJWTValidator creates a validator. An empty issuer skips the iss check.
func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 30 * time.Second,
		now:    time.Now,
	}
}

// ValidateToken checks signature, expiry and issuer and returns the session claims
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: sub is not a UUID", ErrInvalidToken)
	}

	role := claims.AppMetadata.Role
	if role == "" {
		role = claims.Role
	}

	parsed := &Claims{
		Sub:    claims.Subject,
		UserID: userID,
		Email:  claims.Email,
		Role:   role,
	}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return parsed, nil
}

// IssueToken signs a session token for userID. It backs the CLI's dev-token
// command and tests; production sessions come from the identity provider.
func (v *JWTValidator) IssueToken(userID uuid.UUID, email, role string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}

	now := v.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:       email,
		AppMetadata: appMetadata{Role: role},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
