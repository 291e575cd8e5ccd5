package kit

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestChainOrder(t *testing.T) {
	var trace []string
	step := func(s string) { trace = append(trace, s) }

	tag := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				step(name + ">")
				defer step("<" + name)
				return next(ctx, req)
			}
		}
	}

	ep := func(context.Context, any) (any, error) {
		step("endpoint")
		return "ok", nil
	}

	resp, err := Chain(tag("a"), tag("b"), tag("c"))(ep)(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response = %v", resp)
	}

	// First middleware in the chain is the outermost wrapper.
	want := []string{"a>", "b>", "c>", "endpoint", "<c", "<b", "<a"}
	if !slices.Equal(trace, want) {
		t.Fatalf("call order %v, want %v", trace, want)
	}
}

func TestChainPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	ep := func(context.Context, any) (any, error) { return nil, boom }

	passthrough := func(next Endpoint) Endpoint { return next }
	if _, err := Chain(passthrough)(ep)(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the endpoint's error", err)
	}
}

func TestTransportDefaultsToHTTP(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Fatalf("default transport = %q, want http", got)
	}
	if got := GetTransport(WithTransport(context.Background(), "mcp")); got != "mcp" {
		t.Fatalf("transport = %q, want mcp", got)
	}
}

func TestContextValues(t *testing.T) {
	empty := context.Background()
	if GetRequestID(empty) != "" || GetSessionID(empty) != "" || GetRemoteAddr(empty) != "" {
		t.Fatal("empty context should yield empty values")
	}

	ctx := WithRequestID(empty, "req_abc")
	ctx = WithSessionID(ctx, "quic_k3xw92ab")
	ctx = WithRemoteAddr(ctx, "10.0.0.1:5412")

	if got := GetRequestID(ctx); got != "req_abc" {
		t.Fatalf("request id = %q", got)
	}
	if got := GetSessionID(ctx); got != "quic_k3xw92ab" {
		t.Fatalf("session id = %q", got)
	}
	if got := GetRemoteAddr(ctx); got != "10.0.0.1:5412" {
		t.Fatalf("remote addr = %q", got)
	}
}
