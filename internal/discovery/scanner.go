// internal/discovery/scanner.go
package discovery

import (
	"fmt"
	"runtime"
	"strings"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Scanner enumerates serial ports that may carry a mirror driver. It only
// lists candidates; it never opens a port, because probing an unknown
// device with the sign-in handshake is not safe for arbitrary hardware.
type Scanner struct {
	logger *zap.Logger
}

// NewScanner creates a new serial port scanner
func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{
		logger: logger.With(zap.String("component", "discovery")),
	}
}

// Port describes one discovered serial port
type Port struct {
	Path      string `json:"path"`
	LikelyUSB bool   `json:"likely_usb"`
}

// ListPorts returns the serial ports present on the host, USB-serial
// candidates first
func (s *Scanner) ListPorts() ([]Port, error) {
	paths, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	ports := make([]Port, 0, len(paths))
	for _, path := range paths {
		ports = append(ports, Port{
			Path:      path,
			LikelyUSB: isUSBSerial(path),
		})
	}

	// USB candidates first, order stable otherwise
	for i, j := 0, 0; i < len(ports); i++ {
		if ports[i].LikelyUSB {
			ports[i], ports[j] = ports[j], ports[i]
			j++
		}
	}

	s.logger.Info("Serial port scan completed", zap.Int("ports_found", len(ports)))
	return ports, nil
}

// isUSBSerial reports whether a port path looks like a USB-serial adapter
func isUSBSerial(path string) bool {
	switch runtime.GOOS {
	case "windows":
		return strings.HasPrefix(path, "COM")
	case "darwin":
		return strings.Contains(path, "usb")
	default:
		return strings.Contains(path, "USB") || strings.Contains(path, "ACM")
	}
}
