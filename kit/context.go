package kit

import "context"

type contextKey string

// Request-scoped values shared by the HTTP and MCP transports.
const (
	TransportKey  contextKey = "kit_transport" // "http", "mcp", "mcp_quic"
	RequestIDKey  contextKey = "kit_request_id"
	SessionIDKey  contextKey = "kit_session_id"
	RemoteAddrKey contextKey = "kit_remote_addr"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func getString(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return withString(ctx, TransportKey, t)
}

// GetTransport defaults to "http": the HTTP stack predates the other
// transports and never sets the key itself.
func GetTransport(ctx context.Context) string {
	if v := getString(ctx, TransportKey); v != "" {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, RequestIDKey, id)
}

func GetRequestID(ctx context.Context) string { return getString(ctx, RequestIDKey) }

func WithSessionID(ctx context.Context, id string) context.Context {
	return withString(ctx, SessionIDKey, id)
}

func GetSessionID(ctx context.Context) string { return getString(ctx, SessionIDKey) }

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return withString(ctx, RemoteAddrKey, addr)
}

func GetRemoteAddr(ctx context.Context) string { return getString(ctx, RemoteAddrKey) }
