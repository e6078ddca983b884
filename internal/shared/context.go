package shared

import (
	"context"
	"strings"
)

type organizationContextKey struct{}

type userContextKey struct{}

// ContextWithOrganization stores the tenant id in context.
func ContextWithOrganization(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationContextKey{}, strings.TrimSpace(organizationID))
}

// OrganizationFromContext extracts the tenant id from context.
func OrganizationFromContext(ctx context.Context) string {
	org, _ := ctx.Value(organizationContextKey{}).(string)
	return org
}

// ContextWithUser stores the acting user id in context.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, strings.TrimSpace(userID))
}

// UserFromContext extracts the acting user id from context.
func UserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userContextKey{}).(string)
	return user
}
