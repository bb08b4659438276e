package types

import "context"

type ContextKey string

const (
	CtxRequestID ContextKey = "ctx_request_id"
	CtxShopID    ContextKey = "ctx_shop_id"
	CtxUserID    ContextKey = "ctx_user_id"
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderAuthorization = "Authorization"
)

// DefaultSystemUserID identifies writes performed by scheduled jobs and
// webhook handlers rather than a human operator.
const DefaultSystemUserID = "system"

func GetRequestID(ctx context.Context) string {
	return getString(ctx, CtxRequestID)
}

func GetShopID(ctx context.Context) string {
	return getString(ctx, CtxShopID)
}

// GetUserID returns the acting user from the context, falling back to the
// system identity for background work.
func GetUserID(ctx context.Context) string {
	if id := getString(ctx, CtxUserID); id != "" {
		return id
	}
	return DefaultSystemUserID
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, CtxRequestID, requestID)
}

func SetShopID(ctx context.Context, shopID string) context.Context {
	return context.WithValue(ctx, CtxShopID, shopID)
}

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

func getString(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
