package mcpquic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quic-go/quic-go"
)

// errNotConnected guards the session-backed calls.
var errNotConnected = errors.New("client not connected")

// Client dials an MCP server over QUIC. Connect performs the dial, the
// preamble, and the MCP initialize handshake; the resulting session then
// carries all tool calls.
type Client struct {
	addr   string
	tlsCfg *tls.Config

	conn    *quic.Conn
	stream  *quic.Stream
	session *mcp.ClientSession
}

// NewClient prepares a client for addr. A nil tlsCfg verifies the server
// certificate; pass ClientTLSConfig(true) only against self-signed dev
// servers.
func NewClient(addr string, tlsCfg *tls.Config) *Client {
	c := &Client{addr: addr, tlsCfg: tlsCfg}
	if c.tlsCfg == nil {
		c.tlsCfg = ClientTLSConfig(false)
	}
	return c
}

// Connect establishes the session. The ten second cap covers only the
// handshake; tool calls take their deadlines from the caller.
func (c *Client) Connect(ctx context.Context) error {
	var err error
	c.conn, c.stream, err = c.dial(ctx)
	if err != nil {
		return err
	}

	hsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	impl := &mcp.Implementation{Name: "affiche-quic-client", Version: "1.0.0"}
	session, err := mcp.NewClient(impl, nil).Connect(hsCtx, &mcp.IOTransport{
		Reader: io.NopCloser(c.stream),
		Writer: quicWriter{c.stream},
	}, nil)
	if err != nil {
		c.closeTransport()
		return fmt.Errorf("mcp connect: %w", err)
	}
	c.session = session
	return nil
}

// dial opens the QUIC connection and first stream and writes the magic
// bytes, tearing everything down on any failure along the way.
func (c *Client) dial(ctx context.Context) (*quic.Conn, *quic.Stream, error) {
	conn, err := quic.DialAddr(ctx, c.addr, c.tlsCfg, ProductionQUICConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("quic dial %s: %w", c.addr, err)
	}
	if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPNProtocolMCP {
		conn.CloseWithError(ConnErrorUnsupportedALPN, "bad ALPN")
		return nil, nil, fmt.Errorf("%w: got %q", ErrUnsupportedALPN, alpn)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(ConnErrorProtocolViolation, "stream open failed")
		return nil, nil, fmt.Errorf("open stream: %w", err)
	}
	if err := SendMagicBytes(stream); err != nil {
		stream.Close()
		conn.CloseWithError(ConnErrorProtocolViolation, "magic bytes failed")
		return nil, nil, err
	}
	return conn, stream, nil
}

// live returns the established session; every RPC below goes through it
// instead of risking a nil-session panic.
func (c *Client) live() (*mcp.ClientSession, error) {
	if c.session == nil {
		return nil, errNotConnected
	}
	return c.session, nil
}

func (c *Client) ListTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	ss, err := c.live()
	if err != nil {
		return nil, err
	}
	return ss.ListTools(ctx, nil)
}

func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	ss, err := c.live()
	if err != nil {
		return nil, err
	}
	return ss.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

func (c *Client) Ping(ctx context.Context) error {
	ss, err := c.live()
	if err != nil {
		return err
	}
	return ss.Ping(ctx, nil)
}

func (c *Client) Close() error {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	return c.closeTransport()
}

func (c *Client) closeTransport() error {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	if c.conn != nil {
		c.conn.CloseWithError(ConnErrorNoError, "client closing")
		c.conn = nil
	}
	return nil
}
