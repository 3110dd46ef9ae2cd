package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "user_id"
	// EmailKey is the context key for user email
	EmailKey ContextKey = "email"
	// RoleKey is the context key for the caller's role
	RoleKey ContextKey = "role"
)

// Identity is the verified caller attached to a request by the auth middleware
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// WithIdentity stores the caller identity in ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	ctx = context.WithValue(ctx, EmailKey, id.Email)
	return context.WithValue(ctx, RoleKey, id.Role)
}

// ExtractIdentity returns the caller identity, or false when the request was not authenticated
func ExtractIdentity(ctx context.Context) (Identity, bool) {
	userID, ok := ExtractUserID(ctx)
	if !ok || userID == "" {
		return Identity{}, false
	}
	email, _ := ExtractEmail(ctx)
	role, _ := ExtractRole(ctx)
	return Identity{UserID: userID, Email: email, Role: role}, true
}

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// ExtractEmail extracts the email from the request context
func ExtractEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}

// ExtractRole extracts the role from the request context
func ExtractRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}
