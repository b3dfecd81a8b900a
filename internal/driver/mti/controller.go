// internal/driver/mti/controller.go
package mti

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mems-service/internal/model"
	"mems-service/internal/protocol"
	"mems-service/internal/utils"
)

// Sentinel errors for the in-code guards the driver performs. Transport
// failures (open, write, read) are wrapped and surface through errors.Is on
// the underlying error.
var (
	// ErrNoDevice means the sign-in handshake got no reply within the read
	// window: nothing is listening on the port, or the wrong device is.
	ErrNoDevice = errors.New("no mirror driver detected on port")

	// ErrHVActive guards parameter changes while the mirror is energized
	ErrHVActive = errors.New("cannot change parameters while high voltage is on")

	// ErrParamsNotSet guards HV enable before all calibration values are set
	ErrParamsNotSet = errors.New("mirror parameters not set")

	// ErrValueOutOfRange rejects values outside the datasheet limits
	ErrValueOutOfRange = errors.New("value outside datasheet range")

	// ErrUnexpectedReply means the driver answered something other than the
	// acknowledgment the command expects
	ErrUnexpectedReply = errors.New("unexpected reply from driver")
)

// Config represents controller behavior configuration, fixed at construction
type Config struct {
	// Port is the serial device path, used for log context only; the
	// transport owns the actual handle.
	Port string

	// CommandDelay is the pause after every command write. The firmware has
	// no reliable completion signal, so commands are paced instead of
	// acknowledged. Must be nonzero.
	CommandDelay time.Duration

	// ReplyLimit caps the bytes taken in per reply read
	ReplyLimit int

	// SafePosition is where the exit sequence parks the mirror before
	// dropping the high voltage
	SafePosition model.MirrorPosition
}

// Controller owns the single connection to a MEMS mirror driver and
// translates every operation into an ASCII command written to the port.
// All methods serialize on an internal mutex: the port is one exclusively
// owned resource and commands must never interleave.
type Controller struct {
	transport protocol.Transport
	config    *Config
	logger    *utils.DeviceLogger

	mutex     sync.Mutex
	connected bool
	hvOn      bool
	params    model.MirrorParameters
	position  model.MirrorPosition
}

// NewController creates a controller over the given transport. The
// transport is not opened until Connect.
func NewController(transport protocol.Transport, config *Config, logger *zap.Logger) *Controller {
	return &Controller{
		transport: transport,
		config:    config,
		logger:    utils.NewDeviceLogger(logger, config.Port),
	}
}

// Connect opens the transport and signs in to the driver. An empty reply to
// the handshake means no mirror driver is on the port; a reply of
// "MTI-ERR InvalidCommand" means a previous session never signed off, which
// the firmware tolerates.
func (c *Controller) Connect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.connected {
		return nil
	}

	if err := c.transport.Open(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := c.transport.Write(ctx, normalizeCommand(MTI_COMMANDS.SIGN_IN)); err != nil {
		c.transport.Close()
		return fmt.Errorf("connect: sign-in write: %w", err)
	}
	if err := c.pace(ctx); err != nil {
		c.transport.Close()
		return err
	}

	reply, err := c.transport.ReadLine(ctx)
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("connect: sign-in read: %w", err)
	}

	switch {
	case reply == "":
		c.transport.Close()
		c.logger.Warn("No reply to sign-in handshake",
			zap.String("hint_connections", "ls -l /dev/serial/by-id"),
			zap.String("hint_permissions", "ls -l <port>"),
		)
		return fmt.Errorf("connect %s: %w", c.config.Port, ErrNoDevice)
	case reply == MTI_REPLIES.INVALID_COMMAND:
		// Already in command mode from an earlier session
		c.logger.Debug("Driver already signed in")
	default:
		c.logger.Info("Driver signed in", zap.String("banner", reply))
	}

	c.connected = true
	return nil
}

// IsConnected returns whether the controller holds an open, signed-in link
func (c *Controller) IsConnected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connected && c.transport.IsOpen()
}

// SetVbias sets the bias voltage to the value from the mirror's datasheet
func (c *Controller) SetVbias(ctx context.Context, value int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.setParameter(ctx, "Vbias", MTI_COMMANDS.SET_VBIAS, value,
		model.VbiasMin, model.VbiasMax, &c.params.Vbias)
}

// SetVdifferenceMax sets the maximum voltage difference across the control
// lines to the value from the mirror's datasheet
func (c *Controller) SetVdifferenceMax(ctx context.Context, value int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.setParameter(ctx, "VdifferenceMax", MTI_COMMANDS.SET_VDIFFERENCE_MAX, value,
		model.VdifferenceMaxMin, model.VdifferenceMaxMax, &c.params.VdifferenceMax)
}

// SetHardwareFilterBW sets the hardware filter bandwidth to the value from
// the mirror's datasheet
func (c *Controller) SetHardwareFilterBW(ctx context.Context, value int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.setParameter(ctx, "HardwareFilterBW", MTI_COMMANDS.SET_FILTER_BW, value,
		model.HardwareFilterBWMin, model.HardwareFilterBWMax, &c.params.HardwareFilterBW)
}

// SetMirrorParams sets all three calibration parameters in order. Every
// setter is attempted even when an earlier one fails, so the command count
// on the wire stays deterministic; errors are accumulated.
func (c *Controller) SetMirrorParams(ctx context.Context, vbias, vdifferenceMax, hardwareFilterBW int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var errs error
	errs = multierr.Append(errs, c.setParameter(ctx, "Vbias", MTI_COMMANDS.SET_VBIAS, vbias,
		model.VbiasMin, model.VbiasMax, &c.params.Vbias))
	errs = multierr.Append(errs, c.setParameter(ctx, "VdifferenceMax", MTI_COMMANDS.SET_VDIFFERENCE_MAX, vdifferenceMax,
		model.VdifferenceMaxMin, model.VdifferenceMaxMax, &c.params.VdifferenceMax))
	errs = multierr.Append(errs, c.setParameter(ctx, "HardwareFilterBW", MTI_COMMANDS.SET_FILTER_BW, hardwareFilterBW,
		model.HardwareFilterBWMin, model.HardwareFilterBWMax, &c.params.HardwareFilterBW))
	return errs
}

// MirrorParams returns the cached calibration parameters. These are the
// last acknowledged values of this session, not a device read-back.
func (c *Controller) MirrorParams() model.MirrorParameters {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.params
}

// HVOn energizes the high voltage stage. Refused until all three
// calibration parameters have been set: enabling HV with stale or missing
// values can damage the mirror.
func (c *Controller) HVOn(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.params.Complete() {
		return fmt.Errorf("enable HV: %w (%s)", ErrParamsNotSet, c.params)
	}

	reply, err := c.sendCommand(ctx, MTI_COMMANDS.HV_ENABLE)
	if err != nil {
		return fmt.Errorf("enable HV: %w", err)
	}
	if !replyIs(reply, MTI_REPLIES.OK) {
		return fmt.Errorf("enable HV: %w: %q", ErrUnexpectedReply, reply)
	}

	c.hvOn = true
	c.logger.Info("High voltage enabled")
	return nil
}

// HVOff de-energizes the high voltage stage
func (c *Controller) HVOff(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.hvOff(ctx)
}

// PowerState returns the last commanded HV state
func (c *Controller) PowerState() model.PowerState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.hvOn {
		return model.PowerStateHVOn
	}
	return model.PowerStateHVOff
}

// SetMirrorPosition points the mirror at the given x/y deflection. The
// device starts moving as a side effect and sends no completion signal.
// Setting a position with HV off is permitted, the device just stays put
// until the stage is energized.
func (c *Controller) SetMirrorPosition(ctx context.Context, x, y float64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.setPosition(ctx, x, y)
}

// Position returns the last commanded position. No read-back verification
// exists: with HV off the physical mirror rests at the origin regardless.
func (c *Controller) Position() model.MirrorPosition {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.position
}

// Troubleshoot re-issues the echo-enable query and returns the raw serial
// output for manual inspection when replies appear to drop characters. The
// command changes no device or controller state: responses are already on
// in every supported firmware configuration.
func (c *Controller) Troubleshoot(ctx context.Context) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.logger.Info("Running troubleshoot query")
	reply, err := c.sendCommand(ctx, MTI_COMMANDS.ECHO_ON)
	if err != nil {
		return "", fmt.Errorf("troubleshoot: %w", err)
	}
	return reply, nil
}

// ExitSafely runs the ordered shutdown sequence: park the mirror, drop the
// high voltage, sign off, close the port. Every step runs even when an
// earlier one fails — the point of the sequence is to minimize the risk of
// hardware damage, so it is best-effort top to bottom. Calling it on an
// already-closed port is a no-op.
func (c *Controller) ExitSafely(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.logger.Info("Starting exit sequence")
	var errs error

	if c.transport.IsOpen() {
		// Park the mirror before touching the power stage
		if c.position != c.config.SafePosition {
			if err := c.setPosition(ctx, c.config.SafePosition.X, c.config.SafePosition.Y); err != nil {
				c.logger.Warn("Could not return mirror to safe position", zap.Error(err))
				errs = multierr.Append(errs, err)
			}
		}

		if c.hvOn {
			if err := c.hvOff(ctx); err != nil {
				c.logger.Warn("Could not turn high voltage off", zap.Error(err))
				errs = multierr.Append(errs, err)
			}
		}

		// Sign off so the driver leaves serial command mode
		if err := c.transport.Write(ctx, normalizeCommand(MTI_COMMANDS.SIGN_OFF)); err != nil {
			c.logger.Warn("Could not send sign-off", zap.Error(err))
			errs = multierr.Append(errs, err)
		} else {
			if err := c.pace(ctx); err != nil {
				errs = multierr.Append(errs, err)
			}
			reply, err := c.transport.ReadLine(ctx)
			switch {
			case err != nil:
				errs = multierr.Append(errs, err)
			case reply != MTI_REPLIES.EXIT_COMMAND_MODE:
				c.logger.Warn("Driver did not confirm leaving command mode",
					zap.String("reply", reply),
				)
			default:
				c.logger.Info("Driver left command mode")
			}
		}
	}

	if err := c.transport.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}

	c.connected = false
	c.hvOn = false

	if errs != nil {
		c.logger.Warn("Exit sequence finished with errors", zap.Error(errs))
	} else {
		c.logger.Info("Exit sequence completed")
	}
	return errs
}

// Status returns a snapshot of the controller state
func (c *Controller) Status() model.MirrorStatus {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	state := model.PowerStateHVOff
	if c.hvOn {
		state = model.PowerStateHVOn
	}

	return model.MirrorStatus{
		Connected:  c.connected && c.transport.IsOpen(),
		PowerState: state,
		Parameters: c.params,
		Position:   c.position,
		Port:       c.config.Port,
	}
}

// Close runs the safe shutdown sequence. Implements io.Closer for deferred
// teardown paths.
func (c *Controller) Close() error {
	return c.ExitSafely(context.Background())
}

// Internal helpers. All of these expect the mutex to be held.

// sendCommand writes one command, waits the pacing delay and reads back up
// to ReplyLimit bytes of raw reply text
func (c *Controller) sendCommand(ctx context.Context, cmd string) (string, error) {
	startTime := time.Now()

	if err := c.transport.Write(ctx, normalizeCommand(cmd)); err != nil {
		c.logger.LogCommand(cmd, "", time.Since(startTime), err)
		return "", err
	}

	if err := c.pace(ctx); err != nil {
		return "", err
	}

	raw, err := c.transport.Read(ctx, c.config.ReplyLimit)
	if err != nil {
		c.logger.LogCommand(cmd, "", time.Since(startTime), err)
		return "", err
	}

	reply := string(raw)
	c.logger.LogCommand(cmd, reply, time.Since(startTime), nil)
	return reply, nil
}

// pace sleeps the inter-command delay, honoring context cancellation
func (c *Controller) pace(ctx context.Context) error {
	timer := time.NewTimer(c.config.CommandDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// setParameter validates, sends and caches one calibration parameter
func (c *Controller) setParameter(ctx context.Context, name, token string, value, min, max int, store **int) error {
	if c.hvOn {
		return fmt.Errorf("set %s: %w", name, ErrHVActive)
	}
	if value < min || value > max {
		return fmt.Errorf("set %s to %d: %w [%d, %d]", name, value, ErrValueOutOfRange, min, max)
	}

	reply, err := c.sendCommand(ctx, formatSetCommand(token, value))
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	if !replyIs(reply, MTI_REPLIES.OK) {
		return fmt.Errorf("set %s: %w: %q", name, ErrUnexpectedReply, reply)
	}

	*store = &value
	c.logger.Info("Parameter set",
		zap.String("parameter", name),
		zap.Int("value", value),
	)
	return nil
}

// setPosition validates, sends and caches a position command
func (c *Controller) setPosition(ctx context.Context, x, y float64) error {
	if x < model.PositionMin || x > model.PositionMax ||
		y < model.PositionMin || y > model.PositionMax {
		return fmt.Errorf("set position (%g, %g): %w [%g, %g]",
			x, y, ErrValueOutOfRange, model.PositionMin, model.PositionMax)
	}

	if !c.hvOn {
		c.logger.Warn("Setting position with high voltage off, mirror will not move",
			zap.Float64("x", x),
			zap.Float64("y", y),
		)
	}

	reply, err := c.sendCommand(ctx, formatGoTo(x, y))
	if err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	if !replyIs(reply, MTI_REPLIES.OK) {
		return fmt.Errorf("set position: %w: %q", ErrUnexpectedReply, reply)
	}

	c.position = model.MirrorPosition{X: x, Y: y}
	c.logger.Info("Mirror position set",
		zap.Float64("x", x),
		zap.Float64("y", y),
	)
	return nil
}

// hvOff sends the HV disable command
func (c *Controller) hvOff(ctx context.Context) error {
	reply, err := c.sendCommand(ctx, MTI_COMMANDS.HV_DISABLE)
	if err != nil {
		return fmt.Errorf("disable HV: %w", err)
	}
	if !replyIs(reply, MTI_REPLIES.OK) {
		return fmt.Errorf("disable HV: %w: %q", ErrUnexpectedReply, reply)
	}

	c.hvOn = false
	c.logger.Info("High voltage disabled")
	return nil
}

// replyIs compares a raw reply against an expected token, ignoring the CRLF
// terminator and any surrounding noise whitespace
func replyIs(reply, want string) bool {
	return strings.TrimSpace(reply) == want
}
