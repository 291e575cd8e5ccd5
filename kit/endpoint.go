// Package kit provides the endpoint plumbing shared by the service's
// transports: a transport-agnostic Endpoint type, middleware chaining, and
// MCP tool registration. HTTP handlers and MCP tools decode into the same
// endpoints so business logic is written once.
package kit

import "context"

// Endpoint is a transport-agnostic request handler.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first argument is the outermost.
//
//	Chain(a, b, c)(ep) == a(b(c(ep)))
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
