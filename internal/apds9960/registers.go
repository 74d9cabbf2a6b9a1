package apds9960

// Register addresses (APDS-9960 datasheet, section 8).
const (
	RegEnable   byte = 0x80
	RegATime    byte = 0x81
	RegWTime    byte = 0x83
	RegPers     byte = 0x8C
	RegConfig1  byte = 0x8D
	RegPPulse   byte = 0x8E
	RegControl  byte = 0x8F
	RegConfig2  byte = 0x90
	RegID       byte = 0x92
	RegStatus   byte = 0x93
	RegPData    byte = 0x9C
	RegConfig3  byte = 0x9F
	RegGPEnTh   byte = 0xA0
	RegGExTh    byte = 0xA1
	RegGConf1   byte = 0xA2
	RegGConf2   byte = 0xA3
	RegGOffsetU byte = 0xA4
	RegGOffsetD byte = 0xA5
	RegGPulse   byte = 0xA6
	RegGOffsetL byte = 0xA7
	RegGOffsetR byte = 0xA9
	RegGConf3   byte = 0xAA
	RegGConf4   byte = 0xAB
	RegGFLvl    byte = 0xAE
	RegGStatus  byte = 0xAF
	RegAIClear  byte = 0xE7
	RegGFIFOU   byte = 0xFC
)

// DefaultAddress is the fixed 7-bit I2C address of the sensor.
const DefaultAddress uint16 = 0x39

// Known values of the ID register.
var chipIDs = map[byte]string{
	0xAB: "APDS-9960",
	0x9C: "APDS-9960 (rev 9C)",
	0xA8: "APDS-9960 (rev A8)",
}

// STATUS bits.
const (
	statusCPSat  byte = 1 << 7
	statusPGSat  byte = 1 << 6
	statusPInt   byte = 1 << 5
	statusAInt   byte = 1 << 4
	statusGInt   byte = 1 << 2
	statusPValid byte = 1 << 1
	statusAValid byte = 1 << 0

	// statusIntMask covers the conditions that assert the INT line.
	statusIntMask = statusCPSat | statusPGSat | statusPInt | statusAInt | statusGInt
)

// GSTATUS bits.
const (
	gstatusGFOV   byte = 1 << 1
	gstatusGValid byte = 1 << 0
)

// GCONF4 bits.
const (
	gconf4FIFOClear byte = 1 << 2
	gconf4GIEN      byte = 1 << 1
	gconf4GMode     byte = 1 << 0
)

// ENABLE bits.
const (
	enablePON  byte = 1 << 0
	enableAEN  byte = 1 << 1
	enablePEN  byte = 1 << 2
	enableWEN  byte = 1 << 3
	enableAIEN byte = 1 << 4
	enablePIEN byte = 1 << 5
	enableGEN  byte = 1 << 6
)

// fifoDepth is the number of four-channel entries the gesture FIFO holds.
const fifoDepth = 32

// primaryStatusOrder is the dispatch priority for STATUS bits.
var primaryStatusOrder = []struct {
	mask byte
	tag  Interrupt
}{
	{statusCPSat, InterruptClearSaturation},
	{statusPGSat, InterruptAnalogSaturation},
	{statusPInt, InterruptProximity},
	{statusAInt, InterruptALS},
	{statusGInt, InterruptGesture},
	{statusPValid, InterruptProximityValid},
	{statusAValid, InterruptALSValid},
}

// gestureStatusOrder is the dispatch priority for GSTATUS bits.
var gestureStatusOrder = []struct {
	mask byte
	tag  Interrupt
}{
	{gstatusGFOV, InterruptFIFOOverflow},
	{gstatusGValid, InterruptFIFOValid},
}
