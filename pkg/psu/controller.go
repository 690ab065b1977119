package psu

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/itohio/gopsu/pkg/dac"
)

const (
	// DefaultVMax is the per-channel output voltage ceiling.
	DefaultVMax = 10.0
	// DefaultResistance is the assumed load resistance in ohms, used to
	// derive current limits.
	DefaultResistance = 50.0
	// DefaultBootSettle is how long the MCU takes to reboot after the
	// serial port opens (Arduino-class boards reset on open).
	DefaultBootSettle = 3 * time.Second
	// DefaultCommandSettle is the pause after each frame, giving the
	// firmware time to parse before more bytes arrive.
	DefaultCommandSettle = 100 * time.Millisecond

	// helloMessage clears the firmware's line buffer after a reboot. It
	// is written once per session and never read back.
	helloMessage = "hello world"
)

var (
	// ErrChannelCountMismatch is returned when a voltage list does not
	// line up with the configured channels. Nothing is transmitted.
	ErrChannelCountMismatch = errors.New("voltage count does not match channel count")
	// ErrNoChannels is returned when a controller is created without
	// any channels.
	ErrNoChannels = errors.New("no channels configured")
	// ErrDuplicateChannel is returned when the same channel number is
	// configured twice.
	ErrDuplicateChannel = errors.New("duplicate channel")
)

// Options configure a Controller. The zero value is usable but keeps
// zero-on-close disabled; start from DefaultOptions for the recommended
// safety behavior.
type Options struct {
	// VMax is the ceiling applied to every requested voltage, in volts.
	VMax float64
	// Resistance is the load resistance in ohms used to derive current
	// limits in the safe paths.
	Resistance float64
	// BootSettle is the wait after opening the transport.
	BootSettle time.Duration
	// CommandSettle is the wait after each transmitted frame.
	CommandSettle time.Duration
	// ZeroOnClose drives every active channel to 0 V / 0 mA in Close.
	ZeroOnClose bool
	// Logger receives structured progress and warning logs.
	Logger *logrus.Logger
	// Clock supplies the settle delays. Tests inject a fake.
	Clock clock.Clock
}

// DefaultOptions returns the standard controller options.
func DefaultOptions() Options {
	return Options{
		VMax:          DefaultVMax,
		Resistance:    DefaultResistance,
		BootSettle:    DefaultBootSettle,
		CommandSettle: DefaultCommandSettle,
		ZeroOnClose:   true,
	}
}

// withDefaults fills unset fields. ZeroOnClose is left alone: false is
// a deliberate choice.
func (o Options) withDefaults() Options {
	if o.VMax == 0 {
		o.VMax = DefaultVMax
	}
	if o.Resistance == 0 {
		o.Resistance = DefaultResistance
	}
	if o.BootSettle == 0 {
		o.BootSettle = DefaultBootSettle
	}
	if o.CommandSettle == 0 {
		o.CommandSettle = DefaultCommandSettle
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	return o
}

// Info summarises a controller's fixed configuration.
type Info struct {
	Channels         []int
	NumChannels      int
	DACResolution    int
	VoltageFullScale float64
	VoltsPerBit      float64
	VMax             float64
	Resistance       float64
}

// Controller drives the supply over a Transport. Each public operation
// runs in its own transport session and assumes exclusive ownership of
// the line; operations are serialised internally.
type Controller struct {
	transport Transport
	conv      *dac.Converter
	channels  []int
	opts      Options
	log       *logrus.Logger
	clk       clock.Clock

	mu     sync.Mutex
	active map[int]bool
	lastV  map[int]float64
}

// New creates a Controller for the given channels.
func New(transport Transport, conv *dac.Converter, channels []int, opts Options) (*Controller, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if conv == nil {
		return nil, fmt.Errorf("converter is required")
	}
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	seen := make(map[int]bool, len(channels))
	for _, ch := range channels {
		if ch < 0 {
			return nil, fmt.Errorf("channel must be non-negative, got %d", ch)
		}
		if seen[ch] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateChannel, ch)
		}
		seen[ch] = true
	}

	opts = opts.withDefaults()

	return &Controller{
		transport: transport,
		conv:      conv,
		channels:  append([]int(nil), channels...),
		opts:      opts,
		log:       opts.Logger,
		clk:       opts.Clock,
		active:    make(map[int]bool),
		lastV:     make(map[int]float64),
	}, nil
}

// With runs fn against a new Controller and closes it on every return
// path, so zero-on-close covers fn's failures too. An error from fn
// takes precedence over a close error.
func With(transport Transport, conv *dac.Converter, channels []int, opts Options, fn func(*Controller) error) (err error) {
	c, err := New(transport, conv, channels, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

// SetVoltages transmits one voltage command per channel with no current
// limiting. Voltages above VMax are clamped silently.
//
// Without current limits the load is unprotected; prefer
// SetVoltagesSafe unless the hardware has its own protection.
func (c *Controller) SetVoltages(voltages []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkCount(voltages); err != nil {
		return err
	}

	err := c.withSession(func() error {
		for i, ch := range c.channels {
			v := math.Min(voltages[i], c.opts.VMax)
			if err := c.send(Command{Channel: ch, Mode: ModeVoltage, Code: c.conv.VoltageCode(v)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set voltages: %w", err)
	}

	c.log.WithField("channels", c.channels).Info("voltages set")
	return nil
}

// SetVoltagesSafe sets voltages with current limiting, in three phases
// over two transport sessions:
//
//  1. a conservative current limit derived from VMax is applied to
//     every channel, so the load is protected before any voltage moves,
//  2. voltages are set, clamped to VMax with a warning where needed,
//  3. each channel's limit is tightened to what its actual voltage
//     requires, minimising fault current if a short develops later.
//
// A failure mid-sequence is not rolled back: commands already sent
// stay in effect, the transport is closed, and the error is returned.
func (c *Controller) SetVoltagesSafe(voltages []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkCount(voltages); err != nil {
		return err
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
		c.log.Debug("setting voltages")
		for i, ch := range c.channels {
			if err := c.send(Command{Channel: ch, Mode: ModeVoltage, Code: c.conv.VoltageCode(c.clampVoltage(ch, voltages[i]))}); err != nil {
				return err
			}
		}

		c.log.Debug("setting final current limits")
		for i, ch := range c.channels {
			v := math.Min(voltages[i], c.opts.VMax)
			iChMA := v / c.opts.Resistance * cal.CurrentSafetyFactor * 1000
			if err := c.send(Command{Channel: ch, Mode: ModeCurrent, Code: c.conv.CurrentLimitCode(iChMA)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set voltages: %w", err)
	}

	c.log.WithField("channels", c.channels).Info("voltage setting complete")
	return nil
}

// ZeroAll drives every configured channel to 0 V and 0 mA in one
// session. Failures are logged and returned.
func (c *Controller) ZeroAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zero(c.channels)
}

// Close zeroes the active channels when ZeroOnClose is set, swallowing
// any zeroing failure, then unconditionally closes the transport. The
// active set resets either way.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.ZeroOnClose && len(c.active) > 0 {
		if err := c.zero(c.activeChannels()); err != nil {
			c.log.WithError(err).Warn("failed to zero channels on close")
		}
	}
	c.active = make(map[int]bool)
	c.lastV = make(map[int]float64)

	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// Active returns the channels addressed since the controller was
// created or last closed, in ascending order.
func (c *Controller) Active() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeChannels()
}

// Info returns the controller's channel and calibration summary.
func (c *Controller) Info() Info {
	cal := c.conv.Calibration()
	return Info{
		Channels:         append([]int(nil), c.channels...),
		NumChannels:      len(c.channels),
		DACResolution:    cal.Resolution,
		VoltageFullScale: cal.VoltageFullScale,
		VoltsPerBit:      c.conv.VoltsPerBit(),
		VMax:             c.opts.VMax,
		Resistance:       c.opts.Resistance,
	}
}

// zero sends voltage=0 then current=0 to each channel, bypassing unit
// conversion.
func (c *Controller) zero(channels []int) error {
	err := c.withSession(func() error {
		for _, ch := range channels {
			if err := c.send(Command{Channel: ch, Mode: ModeVoltage, Code: 0}); err != nil {
				return err
			}
			if err := c.send(Command{Channel: ch, Mode: ModeCurrent, Code: 0}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.log.WithError(err).Error("failed to zero channels")
		return fmt.Errorf("failed to zero channels: %w", err)
	}

	c.log.WithField("channels", channels).Info("channels zeroed")
	return nil
}

// withSession runs fn with the transport open and closes it on every
// return path, including settle and flush failures. The supply resets
// when its port opens, so a fresh session waits out the boot delay and
// flushes the firmware's line buffer before the first real frame.
func (c *Controller) withSession(fn func() error) (err error) {
	fresh := !c.transport.IsOpen()
	if fresh {
		if err = c.transport.Open(); err != nil {
			return fmt.Errorf("failed to open transport: %w", err)
		}
	}
	defer func() {
		if cerr := c.transport.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if fresh {
		if err = c.flushBoot(); err != nil {
			return err
		}
	}
	return fn()
}

// flushBoot waits out the MCU reboot and clears its line buffer.
func (c *Controller) flushBoot() error {
	c.log.WithFields(logrus.Fields{
		"transport":   fmt.Sprintf("%v", c.transport),
		"boot_settle": c.opts.BootSettle,
	}).Debug("transport open, waiting for controller boot")
	c.clk.Sleep(c.opts.BootSettle)

	if _, err := c.transport.Write([]byte(helloMessage)); err != nil {
		return fmt.Errorf("failed to flush line buffer: %w", err)
	}
	c.clk.Sleep(c.opts.CommandSettle)

	return nil
}

// send transmits one command, saturating out-of-range codes first. The
// channel is marked active before the write: a failed write may still
// have reached the hardware.
func (c *Controller) send(cmd Command) error {
	if clamped := c.conv.ClampCode(cmd.Code); clamped != cmd.Code {
		c.log.WithFields(logrus.Fields{
			"channel":   cmd.Channel,
			"mode":      cmd.Mode.String(),
			"code":      int(cmd.Code),
			"saturated": int(clamped),
		}).Warn("DAC code out of range, saturating")
		cmd.Code = clamped
	}

	c.active[cmd.Channel] = true

	if _, err := c.transport.Write(cmd.Frame()); err != nil {
		return fmt.Errorf("failed to send %s command to channel %d: %w", cmd.Mode, cmd.Channel, err)
	}
	c.clk.Sleep(c.opts.CommandSettle)

	if cmd.Mode == ModeVoltage {
		c.lastV[cmd.Channel] = c.conv.CodeVoltage(cmd.Code)
	}

	return nil
}

// clampVoltage caps a requested voltage at VMax, warning when a request
// had to be cut down.
func (c *Controller) clampVoltage(channel int, v float64) float64 {
	if v > c.opts.VMax {
		c.log.WithFields(logrus.Fields{
			"channel": channel,
			"voltage": v,
			"v_max":   c.opts.VMax,
		}).Warn("requested voltage too large, clamping")
		return c.opts.VMax
	}
	return v
}

func (c *Controller) checkCount(voltages []float64) error {
	if len(voltages) != len(c.channels) {
		return fmt.Errorf("%w: expected %d voltages, got %d", ErrChannelCountMismatch, len(c.channels), len(voltages))
	}
	return nil
}

func (c *Controller) activeChannels() []int {
	out := make([]int, 0, len(c.active))
	for ch := range c.active {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}
