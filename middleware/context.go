package middleware

import (
	"context"

	"github.com/google/uuid"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for session claims
	ClaimsKey contextKey = "claims"

	// UserIDKey is the context key for the authenticated user's ID
	UserIDKey contextKey = "user_id"
)

// Claims is the authenticated session as seen by handlers
type Claims struct {
	Sub       string
	UserID    uuid.UUID
	Email     string
	Role      string
	IssuedAt  int64
	ExpiresAt int64
}

// IsAdmin reports whether the session carries the admin role
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// GetClaimsFromContext retrieves session claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds session claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetUserIDFromContext retrieves the user ID from context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if val := ctx.Value(UserIDKey); val != nil {
		if userID, ok := val.(uuid.UUID); ok && userID != uuid.Nil {
			return userID, true
		}
	}
	return uuid.Nil, false
}

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
