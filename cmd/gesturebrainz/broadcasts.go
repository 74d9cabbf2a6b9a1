package main

import "time"

// Broadcast is an outbound event from the daemon loop to WS clients.
type Broadcast interface {
	broadcastMarker()
}

// BroadcastGesture reports one resolved direction.
type BroadcastGesture struct {
	Direction string
	At        time.Time
}

func (BroadcastGesture) broadcastMarker() {}

// BroadcastInterrupt reports one raw status tag.
type BroadcastInterrupt struct {
	Tag string
	At  time.Time
}

func (BroadcastInterrupt) broadcastMarker() {}

// BroadcastCycleError reports an aborted servicing cycle.
type BroadcastCycleError struct {
	Error string
	At    time.Time
}

func (BroadcastCycleError) broadcastMarker() {}

// BroadcastDecoderChanged carries the decoder state after a tuning change or reset.
type BroadcastDecoderChanged struct {
	Snapshot DecoderSnapshot
	At       time.Time
}

func (BroadcastDecoderChanged) broadcastMarker() {}
