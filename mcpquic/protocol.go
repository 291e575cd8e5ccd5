// Package mcpquic exposes an mcp.Server over QUIC: one bidirectional
// stream per session, newline-delimited JSON-RPC on the stream, with an
// ALPN token and a magic-bytes preamble so a stray TLS or HTTP client is
// rejected before any JSON is parsed.
package mcpquic

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// ALPNProtocolMCP is negotiated during the TLS handshake. Connections
	// arriving with any other protocol are closed without reading a byte.
	ALPNProtocolMCP = "mcp-quic-v1"

	// MagicBytesMCP opens every stream. A second guard after ALPN: it
	// catches clients that negotiated the right protocol but speak the
	// wrong framing.
	MagicBytesMCP = "MCP1"

	// MaxMessageSize bounds a single JSON-RPC message.
	MaxMessageSize = 10 * 1024 * 1024

	DefaultIdleTimeout = 5 * time.Minute
	DefaultKeepAlive   = 30 * time.Second
)

// Connection close codes sent with CloseWithError.
const (
	ConnErrorNoError           quic.ApplicationErrorCode = 0x0
	ConnErrorUnsupportedALPN   quic.ApplicationErrorCode = 0x1
	ConnErrorInternal          quic.ApplicationErrorCode = 0x2
	ConnErrorProtocolViolation quic.ApplicationErrorCode = 0x3
)

// Stream reset codes sent with CancelRead/CancelWrite.
const (
	StreamErrorProtocolConfusion quic.StreamErrorCode = 0x1
)

var (
	ErrInvalidMagicBytes = errors.New("mcpquic: invalid magic bytes")
	ErrUnsupportedALPN   = errors.New("mcpquic: unsupported ALPN protocol")
	ErrConnectionClosed  = errors.New("mcpquic: connection closed")
)

// ConnectionError reports a connection-level failure with the QUIC
// application error code that was sent to the peer.
type ConnectionError struct {
	RemoteAddr string
	Code       quic.ApplicationErrorCode
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcpquic: connection %s closed with code 0x%02x: %v", e.RemoteAddr, uint64(e.Code), e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendMagicBytes writes the stream preamble. The client calls this right
// after opening its stream, before the MCP initialize request.
func SendMagicBytes(w io.Writer) error {
	if _, err := io.WriteString(w, MagicBytesMCP); err != nil {
		return fmt.Errorf("mcpquic: send magic bytes: %w", err)
	}
	return nil
}

// ValidateMagicBytes consumes and checks the stream preamble.
func ValidateMagicBytes(r io.Reader) error {
	buf := make([]byte, len(MagicBytesMCP))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: read preamble: %v", ErrInvalidMagicBytes, err)
	}
	if string(buf) != MagicBytesMCP {
		return fmt.Errorf("%w: got %q", ErrInvalidMagicBytes, string(buf))
	}
	return nil
}

// ProductionQUICConfig returns the QUIC tuning used by both ends:
// keepalives hold NAT bindings open across idle sessions, and 0-RTT stays
// off because tool calls are not replay-safe.
func ProductionQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  DefaultIdleTimeout,
		KeepAlivePeriod: DefaultKeepAlive,
		Allow0RTT:       false,
	}
}
