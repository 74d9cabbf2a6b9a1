package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"gesturebrainz/internal/apds9960"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("GestureBrainz v%s\n", version)
	fmt.Println("APDS-9960 gesture sensor daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  gesturebrainz [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Services the sensor's interrupt line, decodes gesture FIFO data into")
	fmt.Println("  directions and publishes them over WebSocket (/ws). Decoder tuning is")
	fmt.Println("  adjustable at runtime through the IPC socket (see gesture-ctl).")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with a config file")
	fmt.Println("  gesturebrainz -config /etc/gesturebrainz.yaml")
	fmt.Println()
	fmt.Println("  # No interrupt wiring: poll STATUS every 20 ms")
	fmt.Println("  gesturebrainz -interrupt-mode poll -poll-interval-ms 20")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires access to the I2C bus and GPIO (run as root or add user to 'i2c'/'gpio')")
	fmt.Println("  - sysfs mode expects the pin exported with edge set to \"falling\"")
	fmt.Println()
}

func main() {
	var (
		configPath     = flag.String("config", "", "Path to YAML config file")
		i2cBus         = flag.String("i2c-bus", "", "I2C bus name (empty selects the first bus)")
		i2cAddress     = flag.Int("i2c-address", defaultI2CAddress, "Sensor I2C address")
		interruptMode  = flag.String("interrupt-mode", defaultInterruptMode, "Interrupt source: gpio|sysfs|poll")
		gpioPin        = flag.String("gpio-pin", defaultGPIOPin, "GPIO pin wired to the sensor INT line (gpio mode)")
		sysfsValue     = flag.String("sysfs-value", defaultSysfsValuePath, "sysfs GPIO value file (sysfs mode)")
		pollIntervalMS = flag.Int("poll-interval-ms", defaultPollIntervalMS, "STATUS polling period in ms (poll mode)")
		threshold      = flag.Int("threshold", apds9960.DefaultGestureThreshold, "Decoder per-channel threshold (0-255)")
		sensitivity1   = flag.Int("sensitivity-1", apds9960.DefaultSensitivity1, "Decoder directional sensitivity")
		sensitivity2   = flag.Int("sensitivity-2", apds9960.DefaultSensitivity2, "Decoder near/far sensitivity")
		ipcSocketPath  = flag.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
		httpPort       = flag.Int("http-port", defaultHTTPPort, "HTTP listener port for /ws and /metrics (0 disables)")
		logLevelStr    = flag.String("log-level", defaultLogLevel, "Log level: error, warn, info, debug")
		showVersion    = flag.Bool("version", false, "Print version and exit")
		showHelp       = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i2c-bus":
			ov.I2CBus = i2cBus
		case "i2c-address":
			ov.I2CAddress = i2cAddress
		case "interrupt-mode":
			ov.InterruptMode = interruptMode
		case "gpio-pin":
			ov.GPIOPin = gpioPin
		case "sysfs-value":
			ov.SysfsValuePath = sysfsValue
		case "poll-interval-ms":
			ov.PollIntervalMS = pollIntervalMS
		case "threshold":
			ov.Threshold = threshold
		case "sensitivity-1":
			ov.Sensitivity1 = sensitivity1
		case "sensitivity-2":
			ov.Sensitivity2 = sensitivity2
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocketPath
		case "http-port":
			ov.HTTPPort = httpPort
		case "log-level":
			ov.LogLevel = logLevelStr
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel, os.Stderr)

	if err := run(&cfg, logger); err != nil {
		logger.Error("gesturebrainz exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("gesturebrainz shut down gracefully")
}

// run opens the sensor, starts every goroutine and blocks until shutdown.
func run(cfg *Config, logger *slog.Logger) error {
	regs, bus, err := apds9960.OpenI2C(cfg.Sensor.I2CBus, cfg.Sensor.Address)
	if err != nil {
		return fmt.Errorf("open sensor: %w", err)
	}
	defer closeQuietly(bus, "i2c bus", logger)

	broadcasts := make(chan Broadcast, broadcastQueueDepth)
	commands := make(chan Command, commandQueueDepth)
	edges := make(chan struct{}, edgeQueueDepth)

	d := newDaemon(regs, cfg.ToDecoderState(), daemonConfig{
		Sensor:      cfg.Sensor.Name,
		FIFORequest: cfg.Sensor.FIFORequest,
		Probe:       cfg.Interrupt.Mode == interruptModePoll,
	}, broadcasts, logger)
	dev := d.Device()

	id, name, err := dev.ReadChipID()
	if err != nil {
		return fmt.Errorf("probe sensor: %w", err)
	}
	logger.Info("sensor detected", "sensor", cfg.Sensor.Name, "chip", name, "id", fmt.Sprintf("0x%02X", id))

	if err := dev.EnableGesture(cfg.ToGestureConfig()); err != nil {
		return fmt.Errorf("enable gesture engine: %w", err)
	}
	defer func() {
		if err := dev.Disable(); err != nil {
			logger.Warn("failed to power down sensor", "error", err)
		}
	}()

	source, err := newEdgeSource(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gCtx := errgroup.WithContext(ctx)

	// Daemon loop: sole owner of the sensor session.
	g.Go(func() error {
		d.run(gCtx, edges, commands)
		return nil
	})

	g.Go(func() error {
		if err := source.Run(gCtx, edges); err != nil {
			return fmt.Errorf("interrupt source: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return runIPCServer(gCtx, cfg.IPC.SocketPath, commands, logger)
	})

	ws := NewServer(logger, commands, HubConfig{})
	g.Go(func() error {
		ws.Hub().Run(gCtx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(gCtx, ws.Hub(), broadcasts, logger)
		return nil
	})
	if cfg.HTTP.Port > 0 {
		g.Go(func() error {
			return runHTTPServer(gCtx, cfg.HTTP.Port, newHTTPMux(ws), logger)
		})
	}

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	logger.Info("listening",
		"sensor", cfg.Sensor.Name,
		"interrupt_mode", cfg.Interrupt.Mode,
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func closeQuietly(c io.Closer, what string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "what", what, "error", err)
	}
}
