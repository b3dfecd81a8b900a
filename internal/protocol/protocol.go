// internal/protocol/protocol.go
package protocol

import (
	"context"
	"errors"
)

// ErrNotOpen is returned by Write/Read when the transport has not been
// opened or has already been closed
var ErrNotOpen = errors.New("transport not open")

// Transport is the byte-level link to the mirror driver. The production
// implementation sits on a serial port; tests substitute a scripted fake so
// the command sequencing can be verified without hardware.
type Transport interface {
	// Connection lifecycle. Close is idempotent.
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication. Read returns at most maxBytes and may return an
	// empty slice when the device stays silent within the read timeout —
	// the MTI firmware gives no completion signal for several commands, so
	// an empty reply is not itself an error.
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// ReadLine reads a single CRLF- or LF-terminated reply line, without
	// the terminator. An empty string means the device stayed silent.
	ReadLine(ctx context.Context) (string, error)
}
