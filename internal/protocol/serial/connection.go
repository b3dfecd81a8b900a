// internal/protocol/serial/connection.go
package serial

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"mems-service/internal/protocol"
)

// Connection is the serial implementation of protocol.Transport
type Connection struct {
	config *Config
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
}

// Config represents serial port configuration. The MEMS driver link is
// fixed at 115200 8N1 with software flow control; the fields stay
// configurable so tests and future hardware revisions can deviate.
type Config struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baud_rate"`
	DataBits    int           `json:"data_bits"`
	StopBits    int           `json:"stop_bits"`
	Parity      string        `json:"parity"`
	FlowControl string        `json:"flow_control"`
	ReadTimeout time.Duration `json:"read_timeout"`
}

// NewConnection creates a new serial connection
func NewConnection(config *Config, logger *zap.Logger) (*Connection, error) {
	if config.Port == "" {
		return nil, fmt.Errorf("port is required")
	}

	return &Connection{
		config: config,
		logger: logger,
	}, nil
}

// Open opens the serial connection
func (c *Connection) Open(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isOpen {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: c.config.BaudRate,
		DataBits: c.config.DataBits,
		StopBits: serial.StopBits(c.config.StopBits),
	}

	switch c.config.Parity {
	case "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(c.config.Port, mode)
	if err != nil {
		c.logger.Error("Failed to open serial port",
			zap.Error(err),
			zap.String("port", c.config.Port),
		)
		return fmt.Errorf("failed to open serial port %s: %w", c.config.Port, err)
	}

	if err := port.SetReadTimeout(c.config.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	// The mirror driver uses XON/XOFF and no hardware handshake. Drive the
	// handshake lines low so a wired-through RTS/DTR cannot hold the device
	// in reset.
	if c.config.FlowControl != "hardware" {
		if err := port.SetRTS(false); err != nil {
			port.Close()
			return fmt.Errorf("failed to clear RTS: %w", err)
		}
		if err := port.SetDTR(false); err != nil {
			port.Close()
			return fmt.Errorf("failed to clear DTR: %w", err)
		}
	}

	c.port = port
	c.isOpen = true

	c.logger.Info("Serial port opened",
		zap.String("port", c.config.Port),
		zap.Int("baud_rate", c.config.BaudRate),
		zap.String("flow_control", c.config.FlowControl),
	)

	return nil
}

// Close closes the serial connection. Closing an already-closed connection
// is a no-op so the safe-shutdown sequence can always run to completion.
func (c *Connection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isOpen || c.port == nil {
		return nil
	}

	if err := c.port.Close(); err != nil {
		c.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	c.port = nil
	c.isOpen = false

	c.logger.Info("Serial port closed", zap.String("port", c.config.Port))
	return nil
}

// Write writes data to the serial port
func (c *Connection) Write(ctx context.Context, data []byte) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.isOpen || c.port == nil {
		return fmt.Errorf("write %q: %w", data, protocol.ErrNotOpen)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n, err := c.port.Write(data)
	if err != nil {
		c.logger.Error("Failed to write to serial port",
			zap.Error(err),
			zap.Int("bytes_to_write", len(data)),
		)
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	c.logger.Debug("Data written to serial port",
		zap.Int("bytes_written", n),
		zap.ByteString("data", data),
	)

	return nil
}

// Read reads up to maxBytes from the serial port. It returns whatever
// arrived within the configured read timeout, which may be nothing.
func (c *Connection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.isOpen || c.port == nil {
		return nil, fmt.Errorf("read: %w", protocol.ErrNotOpen)
	}

	buffer := make([]byte, maxBytes)

	done := make(chan struct{})
	var n int
	var err error

	go func() {
		defer close(done)
		n, err = c.port.Read(buffer)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		if err != nil {
			if err == io.EOF {
				return buffer[:n], nil
			}
			c.logger.Error("Failed to read from serial port", zap.Error(err))
			return nil, fmt.Errorf("failed to read from serial port: %w", err)
		}

		result := make([]byte, n)
		copy(result, buffer[:n])

		c.logger.Debug("Data read from serial port",
			zap.Int("bytes_read", n),
			zap.ByteString("data", result),
		)

		return result, nil
	}
}

// ReadLine reads one reply line, byte by byte, until LF or the read timeout
// expires. The device terminates replies with CRLF; both terminators are
// stripped. An empty string means the device stayed silent.
func (c *Connection) ReadLine(ctx context.Context) (string, error) {
	var line strings.Builder

	for {
		chunk, err := c.Read(ctx, 1)
		if err != nil {
			return "", err
		}
		if len(chunk) == 0 {
			// Read timeout with no terminator. Return what arrived.
			return strings.TrimRight(line.String(), "\r"), nil
		}
		if chunk[0] == '\n' {
			return strings.TrimRight(line.String(), "\r"), nil
		}
		line.WriteByte(chunk[0])
	}
}

// IsOpen returns whether the connection is open
func (c *Connection) IsOpen() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.isOpen
}

// GetConfig returns the connection configuration
func (c *Connection) GetConfig() *Config {
	return c.config
}
