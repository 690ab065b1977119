package dac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCalibration(t *testing.T) {
	cal := DefaultCalibration()

	assert.Equal(t, 4096, cal.Resolution)
	assert.Equal(t, 30.0, cal.VoltageFullScale)
	assert.Equal(t, 200.0, cal.CurrentScaleFactor)
	assert.Equal(t, 1.1, cal.CurrentSafetyFactor)
	assert.NoError(t, cal.Validate())
}

func TestCalibrationValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Calibration)
		wantErr bool
	}{
		{
			name:    "defaults valid",
			mutate:  func(c *Calibration) {},
			wantErr: false,
		},
		{
			name:    "zero resolution",
			mutate:  func(c *Calibration) { c.Resolution = 0 },
			wantErr: true,
		},
		{
			name:    "one-level resolution",
			mutate:  func(c *Calibration) { c.Resolution = 1 },
			wantErr: true,
		},
		{
			name:    "negative full scale",
			mutate:  func(c *Calibration) { c.VoltageFullScale = -30 },
			wantErr: true,
		},
		{
			name:    "zero current scale",
			mutate:  func(c *Calibration) { c.CurrentScaleFactor = 0 },
			wantErr: true,
		},
		{
			name:    "safety factor below one",
			mutate:  func(c *Calibration) { c.CurrentSafetyFactor = 0.9 },
			wantErr: true,
		},
		{
			name:    "safety factor exactly one",
			mutate:  func(c *Calibration) { c.CurrentSafetyFactor = 1.0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := DefaultCalibration()
			tt.mutate(&cal)
			err := cal.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_InvalidCalibration(t *testing.T) {
	_, err := New(Calibration{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid calibration")
}

func TestVoltageCode(t *testing.T) {
	conv, err := New(DefaultCalibration())
	require.NoError(t, err)

	tests := []struct {
		name  string
		volts float64
		want  Code
	}{
		{name: "zero volts", volts: 0, want: 0},
		{name: "3.3 volts", volts: 3.3, want: 450},
		{name: "5 volts", volts: 5.0, want: 682},
		{name: "10 volts", volts: 10.0, want: 1365},
		{name: "full scale overflows by one", volts: 30.0, want: 4096},
		{name: "negative volts go negative", volts: -1.0, want: -137},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conv.VoltageCode(tt.volts))
		})
	}
}

func TestCurrentLimitCode(t *testing.T) {
	conv, err := New(DefaultCalibration())
	require.NoError(t, err)

	tests := []struct {
		name    string
		limitMA float64
		want    Code
	}{
		{name: "zero limit", limitMA: 0, want: 0},
		{name: "72.6 mA", limitMA: 72.6, want: 1486},
		{name: "110 mA", limitMA: 110.0, want: 2252},
		{name: "full scale overflows by one", limitMA: 200.0, want: 4096},
		{name: "220 mA exceeds max code", limitMA: 220.0, want: 4505},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conv.CurrentLimitCode(tt.limitMA))
		})
	}
}

func TestVoltageCode_RangeAndMonotonic(t *testing.T) {
	conv, err := New(DefaultCalibration())
	require.NoError(t, err)

	prev := Code(-1)
	for v := 0.0; v < 30.0; v += 0.05 {
		code := conv.VoltageCode(v)
		assert.GreaterOrEqual(t, code, Code(0), "volts=%g", v)
		assert.LessOrEqual(t, code, conv.MaxCode(), "volts=%g", v)
		assert.GreaterOrEqual(t, code, prev, "volts=%g", v)
		prev = code
	}
}

func TestCodeVoltage(t *testing.T) {
	conv, err := New(DefaultCalibration())
	require.NoError(t, err)

	assert.InDelta(t, 0.0, conv.CodeVoltage(0), 1e-12)
	assert.InDelta(t, 9.9975585937, conv.CodeVoltage(1365), 1e-9)
	assert.InDelta(t, 30.0, conv.CodeVoltage(4096), 1e-9)

	// Round-tripping a voltage loses at most one code step.
	for v := 0.0; v < 30.0; v += 0.33 {
		back := conv.CodeVoltage(conv.VoltageCode(v))
		assert.InDelta(t, v, back, conv.VoltsPerBit(), "volts=%g", v)
	}
}

func TestVoltsPerBit(t *testing.T) {
	conv, err := New(DefaultCalibration())
	require.NoError(t, err)

	assert.InDelta(t, 30.0/4096.0, conv.VoltsPerBit(), 1e-15)
}

func TestClampCode(t *testing.T) {
	conv, err := New(DefaultCalibration())
	require.NoError(t, err)

	tests := []struct {
		name string
		code Code
		want Code
	}{
		{name: "negative floors to zero", code: -137, want: 0},
		{name: "zero unchanged", code: 0, want: 0},
		{name: "in range unchanged", code: 1365, want: 1365},
		{name: "max unchanged", code: 4095, want: 4095},
		{name: "one past max saturates", code: 4096, want: 4095},
		{name: "far past max saturates", code: 4505, want: 4095},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conv.ClampCode(tt.code))
		})
	}
}

func TestMaxCode(t *testing.T) {
	conv, err := New(DefaultCalibration())
	require.NoError(t, err)
	assert.Equal(t, Code(4095), conv.MaxCode())

	small, err := New(Calibration{
		Resolution:          256,
		VoltageFullScale:    5.0,
		CurrentScaleFactor:  100.0,
		CurrentSafetyFactor: 1.0,
	})
	require.NoError(t, err)
	assert.Equal(t, Code(255), small.MaxCode())
}
