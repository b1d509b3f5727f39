package auth

import "context"

type contextKey string

const authContextKey contextKey = "sdkdoctor_auth"

// AuthInfo holds authenticated identity information extracted from an API key.
type AuthInfo struct {
	KeyID          string
	OrganizationID string
	TeamID         string
	UserID         string
	AllowedModels  []string
	RPMLimit       *int
	DailyQuota     *int
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
