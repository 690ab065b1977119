package psu

import (
	"fmt"
	"math"
	"sort"

	"github.com/fogleman/ease"
	"github.com/sirupsen/logrus"
)

// DefaultRampSteps is the number of intermediate setpoints a ramp is
// divided into.
const DefaultRampSteps = 10

// RampOptions shape a gradual voltage ramp.
type RampOptions struct {
	// Steps is the number of setpoints sent per channel. Zero or
	// negative selects DefaultRampSteps.
	Steps int
	// Easing maps normalised ramp progress [0,1] to normalised voltage
	// progress. Nil selects ease.InOutSine.
	Easing ease.Function
}

func (r RampOptions) withDefaults() RampOptions {
	if r.Steps <= 0 {
		r.Steps = DefaultRampSteps
	}
	if r.Easing == nil {
		r.Easing = ease.InOutSine
	}
	return r
}

// RampVoltages walks each channel from its last set voltage to the
// requested one through eased intermediate setpoints, with the same
// current limiting as SetVoltagesSafe: a conservative limit before the
// ramp, a per-channel tightened limit after it. Intermediate setpoints
// are confined between the start and target voltages, so overshooting
// easings are capped at the endpoints.
func (c *Controller) RampVoltages(voltages []float64, ropts RampOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkCount(voltages); err != nil {
		return err
	}
	ropts = ropts.withDefaults()

	targets := make([]float64, len(voltages))
	starts := make([]float64, len(voltages))
	for i, ch := range c.channels {
		targets[i] = math.Max(c.clampVoltage(ch, voltages[i]), 0)
		starts[i] = c.lastV[ch]
	}

	cal := c.conv.Calibration()
	iMaxMA := c.opts.VMax / c.opts.Resistance * cal.CurrentSafetyFactor * 1000

	err := c.withSession(func() error {
		c.log.WithField("limit_ma", iMaxMA).Debug("setting initial current limits")
		code := c.conv.CurrentLimitCode(iMaxMA)
		for _, ch := range c.channels {
			if err := c.send(Command{Channel: ch, Mode: ModeCurrent, Code: code}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set initial current limits: %w", err)
	}

	err = c.withSession(func() error {
		for step := 1; step <= ropts.Steps; step++ {
			t := float64(step) / float64(ropts.Steps)
			f := ropts.Easing(t)
			c.log.WithFields(logrus.Fields{
				"step":     step,
				"of":       ropts.Steps,
				"progress": f,
			}).Debug("ramp step")

			for i, ch := range c.channels {
				v := starts[i] + (targets[i]-starts[i])*f
				lo := math.Min(starts[i], targets[i])
				hi := math.Max(starts[i], targets[i])
				v = math.Min(math.Max(v, lo), hi)
				if err := c.send(Command{Channel: ch, Mode: ModeVoltage, Code: c.conv.VoltageCode(v)}); err != nil {
					return err
				}
			}
		}

		c.log.Debug("setting final current limits")
		for i, ch := range c.channels {
			iChMA := targets[i] / c.opts.Resistance * cal.CurrentSafetyFactor * 1000
			if err := c.send(Command{Channel: ch, Mode: ModeCurrent, Code: c.conv.CurrentLimitCode(iChMA)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ramp voltages: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"channels": c.channels,
		"steps":    ropts.Steps,
	}).Info("voltage ramp complete")
	return nil
}

// easings maps configuration names to easing functions.
var easings = map[string]ease.Function{
	"linear":       ease.Linear,
	"in-quad":      ease.InQuad,
	"out-quad":     ease.OutQuad,
	"in-out-quad":  ease.InOutQuad,
	"in-cubic":     ease.InCubic,
	"out-cubic":    ease.OutCubic,
	"in-out-cubic": ease.InOutCubic,
	"in-sine":      ease.InSine,
	"out-sine":     ease.OutSine,
	"in-out-sine":  ease.InOutSine,
	"in-expo":      ease.InExpo,
	"out-expo":     ease.OutExpo,
	"in-out-expo":  ease.InOutExpo,
}

// EasingByName returns the easing function registered under a
// configuration name, such as "linear" or "in-out-sine".
func EasingByName(name string) (ease.Function, error) {
	fn, ok := easings[name]
	if !ok {
		return nil, fmt.Errorf("unknown easing %q", name)
	}
	return fn, nil
}

// EasingNames returns the supported easing names in sorted order.
func EasingNames() []string {
	names := make([]string, 0, len(easings))
	for name := range easings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
