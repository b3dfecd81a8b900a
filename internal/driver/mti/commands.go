// internal/driver/mti/commands.go
package mti

import (
	"strconv"
	"strings"
)

// MTI_COMMANDS contains the ASCII command tokens understood by the mirror
// driver firmware. The grammar belongs to the hardware and is mirrored
// faithfully; the parameterized commands take their value appended after a
// single space.
var MTI_COMMANDS = struct {
	// Session
	SIGN_IN  string // handshake, puts the driver into serial command mode
	SIGN_OFF string // leaves serial command mode

	// High voltage stage
	HV_ENABLE  string
	HV_DISABLE string

	// Diagnostics
	ECHO_ON string // enables per-command serial responses

	// Parameterized set-commands (value appended)
	SET_VBIAS           string
	SET_VDIFFERENCE_MAX string
	SET_FILTER_BW       string
	GO_TO               string // x, y and a trailing reserved field
}{
	SIGN_IN:  "$MTI$",
	SIGN_OFF: "MTI+EX",

	HV_ENABLE:  "MTI+EN",
	HV_DISABLE: "MTI+DI",

	ECHO_ON: "MTI+EC",

	SET_VBIAS:           "MTI+VB",
	SET_VDIFFERENCE_MAX: "MTI+VD",
	SET_FILTER_BW:       "MTI+BW",
	GO_TO:               "MTI+GT",
}

// MTI_REPLIES contains the reply lines the firmware sends, without the CRLF
// terminator it appends on the wire
var MTI_REPLIES = struct {
	OK               string
	INVALID_COMMAND  string
	EXIT_COMMAND_MODE string
}{
	OK:                "MTI-OK",
	INVALID_COMMAND:   "MTI-ERR InvalidCommand",
	EXIT_COMMAND_MODE: "MTI-Device Exit Command Mode",
}

// formatSetCommand composes a parameterized integer set-command
func formatSetCommand(token string, value int) string {
	return token + " " + strconv.Itoa(value)
}

// formatGoTo composes the position command. The trailing zero is a reserved
// field the firmware expects on every MTI+GT.
func formatGoTo(x, y float64) string {
	return MTI_COMMANDS.GO_TO + " " +
		strconv.FormatFloat(x, 'g', -1, 64) + " " +
		strconv.FormatFloat(y, 'g', -1, 64) + " 0"
}

// normalizeCommand strips any stray terminator from a command and appends
// the single LF the firmware expects. Some documented commands carry odd
// newline placement; sending them verbatim drops characters on the wire.
func normalizeCommand(cmd string) []byte {
	cmd = strings.TrimRight(cmd, "\r\n")
	return []byte(cmd + "\n")
}
