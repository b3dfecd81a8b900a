// internal/driver/mti/commands_test.go
package mti

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCommand(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare token", "MTI+EN", "MTI+EN\n"},
		{"already terminated", "MTI+EN\n", "MTI+EN\n"},
		{"crlf terminated", "MTI+EN\r\n", "MTI+EN\n"},
		{"reversed terminator", "MTI+EN\n\r", "MTI+EN\n"},
		{"stray cr", "MTI+EN\r", "MTI+EN\n"},
		{"handshake", "$MTI$", "$MTI$\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(normalizeCommand(tt.in)))
		})
	}
}

func TestFormatSetCommand(t *testing.T) {
	assert.Equal(t, "MTI+VB 80", formatSetCommand(MTI_COMMANDS.SET_VBIAS, 80))
	assert.Equal(t, "MTI+VD 0", formatSetCommand(MTI_COMMANDS.SET_VDIFFERENCE_MAX, 0))
	assert.Equal(t, "MTI+BW 15000", formatSetCommand(MTI_COMMANDS.SET_FILTER_BW, 15000))
}

func TestFormatGoTo(t *testing.T) {
	tests := []struct {
		x, y float64
		want string
	}{
		{0, 0, "MTI+GT 0 0 0"},
		{1, -1, "MTI+GT 1 -1 0"},
		{0.5, 0.25, "MTI+GT 0.5 0.25 0"},
		{-0.333, 0.667, "MTI+GT -0.333 0.667 0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatGoTo(tt.x, tt.y))
	}
}
