package dac

import (
	"fmt"
	"math"
)

// Code is a value written to a DAC register. Codes framed onto the wire
// must lie in [0, Resolution-1]; raw conversion results may fall outside
// that range and are saturated by the caller (see Converter.ClampCode).
type Code int

// Calibration holds the fixed conversion constants of one hardware
// revision. The values are properties of the supply's DAC and sense
// circuitry, not runtime-negotiated settings.
type Calibration struct {
	// Resolution is the number of discrete DAC levels (4096 for the
	// stock 12-bit build).
	Resolution int
	// VoltageFullScale is the output voltage corresponding to the top
	// DAC code, in volts.
	VoltageFullScale float64
	// CurrentScaleFactor is the current-limit full-scale equivalent,
	// in milliamps.
	CurrentScaleFactor float64
	// CurrentSafetyFactor is the multiplier applied to theoretical
	// maximum currents when computing limits, guarding against
	// measurement and calibration error.
	CurrentSafetyFactor float64
}

// DefaultCalibration returns the constants of the stock supply build:
// 12-bit DAC, 30 V full scale, 200 mA current scale, 10% safety margin.
func DefaultCalibration() Calibration {
	return Calibration{
		Resolution:          4096,
		VoltageFullScale:    30.0,
		CurrentScaleFactor:  200.0,
		CurrentSafetyFactor: 1.1,
	}
}

// Validate checks that the calibration constants are usable.
func (c Calibration) Validate() error {
	if c.Resolution < 2 {
		return fmt.Errorf("resolution must be at least 2, got %d", c.Resolution)
	}
	if c.VoltageFullScale <= 0 {
		return fmt.Errorf("voltage full scale must be positive, got %g", c.VoltageFullScale)
	}
	if c.CurrentScaleFactor <= 0 {
		return fmt.Errorf("current scale factor must be positive, got %g", c.CurrentScaleFactor)
	}
	if c.CurrentSafetyFactor < 1 {
		return fmt.Errorf("current safety factor must be at least 1, got %g", c.CurrentSafetyFactor)
	}
	return nil
}

// Converter converts engineering units into DAC codes for one calibration.
type Converter struct {
	cal Calibration
}

// New creates a Converter for the given calibration.
func New(cal Calibration) (*Converter, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}
	return &Converter{cal: cal}, nil
}

// Calibration returns the constants the converter was built with.
func (c *Converter) Calibration() Calibration {
	return c.cal
}

// VoltageCode converts a voltage in volts to a DAC code:
//
//	code = floor(volts / VoltageFullScale * Resolution)
//
// The input is not range-checked: callers must pre-clamp to [0, vMax].
// Out-of-range inputs silently produce out-of-range codes.
func (c *Converter) VoltageCode(volts float64) Code {
	return Code(math.Floor(volts / c.cal.VoltageFullScale * float64(c.cal.Resolution)))
}

// CurrentLimitCode converts a current limit in milliamps to a DAC code:
//
//	code = floor(limitMA / CurrentScaleFactor * Resolution)
//
// Like VoltageCode, the input is not range-checked. Limits above the
// current full scale produce codes past MaxCode; it is the caller's job
// to saturate before framing.
func (c *Converter) CurrentLimitCode(limitMA float64) Code {
	return Code(math.Floor(limitMA / c.cal.CurrentScaleFactor * float64(c.cal.Resolution)))
}

// CodeVoltage converts a DAC code back to the output voltage it selects.
func (c *Converter) CodeVoltage(code Code) float64 {
	return float64(code) * c.VoltsPerBit()
}

// VoltsPerBit returns the voltage step of one DAC code.
func (c *Converter) VoltsPerBit() float64 {
	return c.cal.VoltageFullScale / float64(c.cal.Resolution)
}

// MaxCode returns the largest code representable by the DAC.
func (c *Converter) MaxCode() Code {
	return Code(c.cal.Resolution - 1)
}

// ClampCode saturates a code to the representable range [0, MaxCode].
// Conversion results can legitimately exceed the range (a 220 mA limit
// encodes to 4505 on the stock calibration); the hardware's own handling
// of such values is unspecified, so every code is saturated here before
// it reaches the wire. Codes are never wrapped or bit-truncated.
func (c *Converter) ClampCode(code Code) Code {
	if code < 0 {
		return 0
	}
	if max := c.MaxCode(); code > max {
		return max
	}
	return code
}
