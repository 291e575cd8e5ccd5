package mcpquic

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/affiche/idgen"
	"github.com/hazyhaar/affiche/kit"
)

// Handler turns accepted QUIC connections into MCP sessions. The SDK
// owns the JSON-RPC read/write loop; the handler checks the preamble,
// tags the context with session identity, and hands over the stream.
type Handler struct {
	mcpServer *mcp.Server
	logger    *slog.Logger
	newID     idgen.Generator
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerIDGenerator sets a custom ID generator for session IDs.
func WithHandlerIDGenerator(gen idgen.Generator) HandlerOption {
	return func(h *Handler) { h.newID = gen }
}

// NewHandler creates an MCP connection handler.
func NewHandler(mcpSrv *mcp.Server, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{mcpServer: mcpSrv, logger: logger, newID: idgen.NanoID(8)}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeConn runs one QUIC connection as an MCP session until the client
// disconnects or ctx is cancelled.
func (h *Handler) ServeConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	h.logger.Info("mcp quic: connection accepted", "remote", remote)

	stream, err := h.acceptPreamble(ctx, conn)
	if err != nil {
		h.logger.Error("mcp quic: preamble rejected", "remote", remote, "error", err)
		return
	}
	h.runSession(ctx, stream, remote)
}

// acceptPreamble takes the connection's first stream and checks the
// magic bytes, closing the connection on any violation.
func (h *Handler) acceptPreamble(ctx context.Context, conn *quic.Conn) (*quic.Stream, error) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(ConnErrorProtocolViolation, "stream accept failed")
		return nil, fmt.Errorf("accept stream: %w", err)
	}
	if err := ValidateMagicBytes(stream); err != nil {
		stream.CancelWrite(StreamErrorProtocolConfusion)
		stream.CancelRead(StreamErrorProtocolConfusion)
		conn.CloseWithError(ConnErrorProtocolViolation, "invalid magic bytes")
		return nil, err
	}
	return stream, nil
}

func (h *Handler) runSession(ctx context.Context, stream *quic.Stream, remote string) {
	sessionID := "quic_" + h.newID()
	h.logger.Info("mcp quic: session starting", "session", sessionID, "remote", remote)

	// Session identity rides the context so tool endpoints can log and
	// rate-account per caller.
	ctx = kit.WithTransport(ctx, "mcp_quic")
	ctx = kit.WithSessionID(ctx, sessionID)
	ctx = kit.WithRemoteAddr(ctx, remote)

	ss, err := h.mcpServer.Connect(ctx, &streamTransport{stream: stream, sessionID: sessionID}, nil)
	if err != nil {
		h.logger.Error("mcp quic: connect failed", "session", sessionID, "error", err)
		stream.Close()
		return
	}

	if err := ss.Wait(); err != nil {
		h.logger.Debug("mcp quic: session ended with error", "session", sessionID, "error", err)
	}
	h.logger.Info("mcp quic: session ended", "session", sessionID, "remote", remote)
}

// Listener accepts MCP-over-QUIC connections and dispatches each to a
// shared mcp.Server.
type Listener struct {
	listener *quic.Listener
	handler  *Handler
	logger   *slog.Logger
}

func NewListener(addr string, tlsCfg *tls.Config, mcpSrv *mcp.Server, logger *slog.Logger, opts ...HandlerOption) (*Listener, error) {
	h := NewHandler(mcpSrv, logger, opts...)
	l, err := quic.ListenAddr(addr, tlsCfg, ProductionQUICConfig())
	if err != nil {
		return nil, err
	}
	h.logger.Info("mcp quic: listener ready", "addr", addr)
	return &Listener{listener: l, handler: h, logger: h.logger}, nil
}

func (l *Listener) Serve(ctx context.Context) error {
	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error("mcp quic: accept error", "error", err)
			continue
		}
		go l.dispatch(ctx, conn)
	}
}

// dispatch drops connections negotiated onto the wrong protocol and runs
// everything else as an MCP session.
func (l *Listener) dispatch(ctx context.Context, conn *quic.Conn) {
	if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNProtocolMCP {
		conn.CloseWithError(ConnErrorUnsupportedALPN, "unsupported ALPN: "+alpn)
		return
	}
	l.handler.ServeConn(ctx, conn)
}

func (l *Listener) Close() error {
	return l.listener.Close()
}

// streamTransport implements mcp.Transport for server-side QUIC streams.
type streamTransport struct {
	stream    *quic.Stream
	sessionID string
}

func (t *streamTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := (&mcp.IOTransport{
		Reader: io.NopCloser(t.stream),
		Writer: quicWriter{t.stream},
	}).Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &namedSession{Connection: conn, id: t.sessionID}, nil
}

// namedSession overrides the underlying connection's empty session ID.
type namedSession struct {
	mcp.Connection
	id string
}

func (c *namedSession) SessionID() string { return c.id }

// quicWriter adapts a *quic.Stream to io.WriteCloser.
type quicWriter struct{ stream *quic.Stream }

func (w quicWriter) Write(p []byte) (int, error) { return w.stream.Write(p) }
func (w quicWriter) Close() error                { return w.stream.Close() }
