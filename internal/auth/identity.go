// Package auth verifies session tokens issued by the hosted identity provider (Clerk)
// and resolves the caller's role.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when a token cannot be verified or its user cannot be resolved.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUserNotFound is returned by a ProfileSource when the provider has no such user.
var ErrUserNotFound = errors.New("user not found")

// Role is the coarse privilege label carried by a verified identity.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a provider metadata value to a Role. Only the exact string "admin" grants
// RoleAdmin; anything else is RoleUser.
func ParseRole(v interface{}) Role {
	if s, ok := v.(string); ok && Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Profile is the slice of the provider's user record the API cares about.
type Profile struct {
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// Identity is the verified caller attached to the request context.
type Identity struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      Role   `json:"role"`
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity attached by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}
