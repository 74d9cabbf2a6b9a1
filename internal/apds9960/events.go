package apds9960

import "strings"

// Interrupt is the tag passed to a Callback. It covers both raw status
// conditions and resolved gesture directions.
type Interrupt int

const (
	InterruptClearSaturation Interrupt = iota + 1
	InterruptAnalogSaturation
	InterruptProximity
	InterruptALS
	InterruptGesture
	InterruptProximityValid
	InterruptALSValid
	InterruptFIFOOverflow
	InterruptFIFOValid

	InterruptGestureFar
	InterruptGestureNear
	InterruptGestureDown
	InterruptGestureUp
	InterruptGestureRight
	InterruptGestureLeft
)

var interruptNames = map[Interrupt]string{
	InterruptClearSaturation:  "clear_saturation",
	InterruptAnalogSaturation: "analog_saturation",
	InterruptProximity:        "proximity",
	InterruptALS:              "als",
	InterruptGesture:          "gesture",
	InterruptProximityValid:   "proximity_valid",
	InterruptALSValid:         "als_valid",
	InterruptFIFOOverflow:     "fifo_overflow",
	InterruptFIFOValid:        "fifo_valid",
	InterruptGestureFar:       "far",
	InterruptGestureNear:      "near",
	InterruptGestureDown:      "down",
	InterruptGestureUp:        "up",
	InterruptGestureRight:     "right",
	InterruptGestureLeft:      "left",
}

func (i Interrupt) String() string {
	if s, ok := interruptNames[i]; ok {
		return s
	}
	return "unknown"
}

// IsGesture reports whether i is a resolved direction rather than a raw status tag.
func (i Interrupt) IsGesture() bool {
	return i >= InterruptGestureFar && i <= InterruptGestureLeft
}

// Callback receives one tag per call. It runs synchronously on the goroutine
// servicing the interrupt and may call back into the Device that invoked it.
type Callback func(Interrupt)

// GestureEvents is the set of directions accumulated by the decoder and
// drained once per dispatch cycle.
type GestureEvents uint8

const (
	GestureFar GestureEvents = 1 << iota
	GestureNear
	GestureDown
	GestureUp
	GestureRight
	GestureLeft
)

// gestureOrder is the report order for a drained set.
var gestureOrder = []struct {
	flag GestureEvents
	tag  Interrupt
}{
	{GestureFar, InterruptGestureFar},
	{GestureNear, InterruptGestureNear},
	{GestureDown, InterruptGestureDown},
	{GestureUp, InterruptGestureUp},
	{GestureRight, InterruptGestureRight},
	{GestureLeft, InterruptGestureLeft},
}

// Has reports whether every flag in f is set.
func (g GestureEvents) Has(f GestureEvents) bool {
	return g&f == f
}

// Empty reports whether no flag is set.
func (g GestureEvents) Empty() bool {
	return g == 0
}

// Each calls fn for every set flag in report order.
func (g GestureEvents) Each(fn func(Interrupt)) {
	for _, o := range gestureOrder {
		if g&o.flag != 0 {
			fn(o.tag)
		}
	}
}

func (g GestureEvents) String() string {
	if g == 0 {
		return "none"
	}
	var parts []string
	g.Each(func(i Interrupt) {
		parts = append(parts, i.String())
	})
	return strings.Join(parts, "|")
}
