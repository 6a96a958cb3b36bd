package token

import (
	"context"
	"strings"
)

type ctxKey string

const (
	subjectKey ctxKey = "token_subject"
	rolesKey   ctxKey = "token_roles"
	tokenIDKey ctxKey = "token_id"
)

// ContextWithClaims stores the verified identity in the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, subjectKey, claims.Subject)
	ctx = context.WithValue(ctx, tokenIDKey, claims.ID)
	if len(claims.Roles) > 0 {
		roles := make([]string, len(claims.Roles))
		copy(roles, claims.Roles)
		ctx = context.WithValue(ctx, rolesKey, roles)
	}
	return ctx
}

// SubjectFromContext extracts the authenticated subject from context.
func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// TokenIDFromContext extracts the bearer jti from context.
func TokenIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// RolesFromContext returns a copy of the roles stored in context.
func RolesFromContext(ctx context.Context) []string {
	v, ok := ctx.Value(rolesKey).([]string)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// HasRole checks whether the context carries the given role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
