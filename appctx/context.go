package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// It lives in a leaf package so models and config can read keys without utils.
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyToken         = ContextKey("Token")
	ContextKeyUserId        = ContextKey("UserId")
	ContextKeyRole          = ContextKey("Role")
	ContextKeyCorrelationId = ContextKey("CorrelationId")

	// ContextKeyAuditorId is set only for users acting as an auditor.
	// Approve and reject read the deciding auditor from here.
	ContextKeyAuditorId = ContextKey("AuditorId")

	// ContextKeyRestaurantId is set only for restaurant users.
	ContextKeyRestaurantId = ContextKey("RestaurantId")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
