package domain

import "context"

type clientInfoKey struct{}

// ClientInfo describes the caller of a request for audit purposes.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// WithClientInfo stores info in ctx.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFromContext retrieves ClientInfo from context.
func ClientInfoFromContext(ctx context.Context) (ClientInfo, bool) {
	info, ok := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info, ok
}
