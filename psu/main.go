package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/gopsu/pkg/config"
	"github.com/itohio/gopsu/pkg/dac"
	"github.com/itohio/gopsu/pkg/psu"
)

func main() {
	var (
		portFlag        = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag      = flag.String("config", "config.yaml", "Configuration file path")
		writeConfigFlag = flag.Bool("write-config", false, "Write the effective configuration back to the config file and exit")
		listPortsFlag   = flag.Bool("list-ports", false, "List available serial ports and exit")
		infoFlag        = flag.Bool("info", false, "Print the channel configuration and exit")
		zeroFlag        = flag.Bool("zero", false, "Zero all configured channels and exit")
		setFlag         = flag.String("set", "", "Comma-separated voltages, one per configured channel")
		unsafeFlag      = flag.Bool("unsafe", false, "Set voltages without current limiting")
		rampFlag        = flag.Bool("ramp", false, "Ramp voltages gradually instead of stepping")
		mockFlag        = flag.Bool("mock", false, "Use a recording mock transport instead of the serial port")
		vMaxFlag        = flag.Float64("v-max", 0, "Maximum voltage override (V)")
		resistanceFlag  = flag.Float64("resistance", 0, "Load resistance override (ohms)")
	)
	flag.Parse()

	logger := logrus.New()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	// Command line overrides
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *vMaxFlag > 0 {
		cfg.Limits.VMax = *vMaxFlag
	}
	if *resistanceFlag > 0 {
		cfg.Limits.Resistance = *resistanceFlag
	}

	if err := config.Validate(cfg); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	lvl, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.WithError(err).Fatal("invalid log level")
	}
	logger.SetLevel(lvl)

	switch {
	case *listPortsFlag:
		listPorts(logger)
		return
	case *writeConfigFlag:
		if err := cfg.Save(*configFlag); err != nil {
			logger.WithError(err).Fatal("failed to write configuration")
		}
		logger.WithField("path", *configFlag).Info("configuration written")
		return
	}

	conv, err := dac.New(cfg.Calibration())
	if err != nil {
		logger.WithError(err).Fatal("invalid calibration")
	}

	var (
		transport psu.Transport
		mock      *psu.Mock
	)
	if *mockFlag {
		mock = psu.NewMock()
		transport = mock
		// No hardware to settle, keep a mock run snappy.
		cfg.Serial.BootSettle = time.Millisecond
		cfg.Serial.CommandSettle = time.Millisecond
	} else {
		transport = psu.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.ReadTimeout)
	}

	opts := cfg.ControllerOptions()
	opts.Logger = logger

	ctrl, err := psu.New(transport, conv, cfg.Channels, opts)
	if err != nil {
		logger.WithError(err).Fatal("failed to create controller")
	}

	switch {
	case *infoFlag:
		printInfo(ctrl.Info())
	case *zeroFlag:
		if err := ctrl.ZeroAll(); err != nil {
			logger.WithError(err).Fatal("failed to zero channels")
		}
	case *setFlag != "":
		voltages, err := parseVoltages(*setFlag)
		if err != nil {
			logger.WithError(err).Fatal("invalid voltage list")
		}
		if err := runSet(ctrl, cfg, voltages, *unsafeFlag, *rampFlag); err != nil {
			logger.WithError(err).Fatal("failed to set voltages")
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if mock != nil {
		for _, cmd := range mock.Commands() {
			fmt.Println(cmd)
		}
	}
}

// runSet dispatches a voltage list to the requested setting strategy.
func runSet(ctrl *psu.Controller, cfg *config.Config, voltages []float64, unsafe, ramp bool) error {
	switch {
	case unsafe:
		return ctrl.SetVoltages(voltages)
	case ramp:
		ropts, err := cfg.RampOptions()
		if err != nil {
			return err
		}
		return ctrl.RampVoltages(voltages, ropts)
	default:
		return ctrl.SetVoltagesSafe(voltages)
	}
}

func listPorts(logger *logrus.Logger) {
	ports, err := psu.Ports()
	if err != nil {
		logger.WithError(err).Fatal("failed to list serial ports")
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p)
	}
}

func printInfo(info psu.Info) {
	fmt.Printf("Channels:            %v\n", info.Channels)
	fmt.Printf("Number of channels:  %d\n", info.NumChannels)
	fmt.Printf("DAC resolution:      %d\n", info.DACResolution)
	fmt.Printf("Voltage full scale:  %g V\n", info.VoltageFullScale)
	fmt.Printf("Voltage per bit:     %.4f V\n", info.VoltsPerBit)
	fmt.Printf("Max voltage:         %g V\n", info.VMax)
	fmt.Printf("Load resistance:     %g ohm\n", info.Resistance)
}

// parseVoltages parses a comma-separated voltage list such as "3.3,5.0".
func parseVoltages(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid voltage %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
