// internal/model/mirror.go
package model

import "fmt"

// PowerState represents the high voltage stage state of the mirror driver
type PowerState string

const (
	PowerStateHVOn  PowerState = "HV_ON"
	PowerStateHVOff PowerState = "HV_OFF"
)

// Datasheet limits for the calibration parameters. Values outside these
// ranges can damage the mirror, so the setters reject them before any
// command reaches the port.
const (
	VbiasMin = 0
	VbiasMax = 100

	VdifferenceMaxMin = 0
	VdifferenceMaxMax = 200

	HardwareFilterBWMin = 50
	HardwareFilterBWMax = 15000
)

// Position limits, device-scale coordinates
const (
	PositionMin = -1.0
	PositionMax = 1.0
)

// MirrorParameters holds the per-unit calibration values taken from the
// mirror's datasheet. A nil field means the value has not been set this
// session; the driver refuses to energize the high voltage stage until all
// three are present. Held in memory only, never persisted.
type MirrorParameters struct {
	Vbias            *int `json:"vbias"`
	VdifferenceMax   *int `json:"vdifference_max"`
	HardwareFilterBW *int `json:"hardware_filter_bw"`
}

// Complete reports whether all three calibration values are set
func (p MirrorParameters) Complete() bool {
	return p.Vbias != nil && p.VdifferenceMax != nil && p.HardwareFilterBW != nil
}

// String renders the parameters for logs, with "-" for unset values
func (p MirrorParameters) String() string {
	format := func(v *int) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%d", *v)
	}
	return fmt.Sprintf("Vbias=%s VdifferenceMax=%s HardwareFilterBW=%s",
		format(p.Vbias), format(p.VdifferenceMax), format(p.HardwareFilterBW))
}

// MirrorPosition is the last commanded (x, y) deflection. The device sends
// no completion acknowledgment for motion, so this reflects intent, not a
// verified physical position.
type MirrorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsOrigin reports whether the position is the safe park position
func (p MirrorPosition) IsOrigin() bool {
	return p.X == 0 && p.Y == 0
}

// MirrorStatus is a point-in-time snapshot of the controller state
type MirrorStatus struct {
	Connected  bool             `json:"connected"`
	PowerState PowerState       `json:"power_state"`
	Parameters MirrorParameters `json:"parameters"`
	Position   MirrorPosition   `json:"position"`
	Port       string           `json:"port"`
}

// IntPtr is a convenience for building MirrorParameters literals
func IntPtr(v int) *int {
	return &v
}
