package main

// Sensor defaults
const (
	defaultI2CAddress  = 0x39 // APDS-9960 fixed address
	defaultFIFORequest = 32   // Samples requested per FIFO read (hardware depth)
)

// Interrupt line defaults
const (
	defaultInterruptMode   = "gpio"
	defaultGPIOPin         = "GPIO4"
	defaultSysfsValuePath  = "/sys/class/gpio/gpio4/value"
	defaultPollIntervalMS  = 10  // Poll mode: STATUS polling period (ms)
	defaultEdgeRecheckMS   = 100 // GPIO/sysfs: re-check line level while idle (ms)
	interruptModeGPIO      = "gpio"
	interruptModeSysfs     = "sysfs"
	interruptModePoll      = "poll"
	maxPollIntervalMS      = 1000
	edgeQueueDepth         = 1 // Pending edges are coalesced; one cycle services all latched bits
	commandQueueDepth      = 16
	broadcastQueueDepth    = 64
	defaultIPCSocketPath   = "/tmp/gesturebrainz.sock"
	defaultHTTPPort        = 3002
	defaultLogLevel        = "info"
	interruptCoalesceWinMS = 250 // Raw status tags are batched for WS clients within this window
)
