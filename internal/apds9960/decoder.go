package apds9960

// Decoder defaults.
const (
	DefaultGestureThreshold = 10
	DefaultSensitivity1     = 50
	DefaultSensitivity2     = 20

	// minBatch is the shortest batch Decode accepts.
	minBatch = 4

	nearCountThreshold = 10
	farCountThreshold  = 2
)

// Sample is one gesture FIFO entry.
type Sample struct {
	Up    uint8
	Down  uint8
	Left  uint8
	Right uint8
}

func (s Sample) above(threshold uint8) bool {
	return s.Up > threshold && s.Down > threshold && s.Left > threshold && s.Right > threshold
}

// ratios returns the up/down and left/right ratios in percent. Callers must
// ensure the sample is above a positive threshold so neither sum is zero.
func (s Sample) ratios() (ud, lr int) {
	up, down := int(s.Up), int(s.Down)
	left, right := int(s.Left), int(s.Right)
	ud = (up - down) * 100 / (up + down)
	lr = (left - right) * 100 / (left + right)
	return ud, lr
}

// DecoderState is the persistent recognition state of one device session.
// It is not safe for concurrent use; see Device.
type DecoderState struct {
	Threshold    uint8
	Sensitivity1 int
	Sensitivity2 int

	UDDelta   int
	LRDelta   int
	UDCount   int
	LRCount   int
	NearCount int
	FarCount  int

	pending GestureEvents
}

// NewDecoderState returns a state with the default threshold and sensitivities.
func NewDecoderState() *DecoderState {
	return &DecoderState{
		Threshold:    DefaultGestureThreshold,
		Sensitivity1: DefaultSensitivity1,
		Sensitivity2: DefaultSensitivity2,
	}
}

// SetThreshold sets the amplitude floor a channel must exceed.
func (s *DecoderState) SetThreshold(t uint8) { s.Threshold = t }

// SetSensitivity1 sets the axis-latch sensitivity.
func (s *DecoderState) SetSensitivity1(v int) { s.Sensitivity1 = v }

// SetSensitivity2 sets the near/far hysteresis sensitivity.
func (s *DecoderState) SetSensitivity2(v int) { s.Sensitivity2 = v }

// Reset zeroes the running accumulators and counters. Pending events and
// tuning parameters are kept.
func (s *DecoderState) Reset() {
	s.UDDelta, s.LRDelta = 0, 0
	s.UDCount, s.LRCount = 0, 0
	s.NearCount, s.FarCount = 0, 0
}

// Pending returns the events accumulated since the last drain.
func (s *DecoderState) Pending() GestureEvents { return s.pending }

// TakePending returns the pending events and clears them.
func (s *DecoderState) TakePending() GestureEvents {
	p := s.pending
	s.pending = 0
	return p
}

// Snapshot returns a copy of the state for reporting.
func (s *DecoderState) Snapshot() DecoderState { return *s }

// Decode runs one pass of the gesture heuristic over batch (oldest sample
// first) and adds at most one direction to the pending set. A batch shorter
// than four samples is rejected with ErrUsage and leaves s untouched.
func (s *DecoderState) Decode(batch []Sample) error {
	if len(batch) < minBatch {
		return usageError("decode", "batch has %d samples, need at least %d", len(batch), minBatch)
	}

	first := -1
	for i, smp := range batch {
		if smp.above(s.Threshold) {
			first = i
			break
		}
	}

	if first >= 0 {
		last := first
		for i := len(batch) - 1; i > first; i-- {
			if batch[i].above(s.Threshold) {
				last = i
				break
			}
		}

		udFirst, lrFirst := batch[first].ratios()
		udLast, lrLast := batch[last].ratios()
		deltaUD := udLast - udFirst
		deltaLR := lrLast - lrFirst

		s.UDDelta += deltaUD
		s.LRDelta += deltaLR

		s.UDCount = latch(s.UDDelta, s.Sensitivity1)
		s.LRCount = latch(s.LRDelta, s.Sensitivity1)

		s.hysteresis(deltaUD, deltaLR)
	}

	s.pending |= s.resolve()
	return nil
}

func latch(delta, sensitivity int) int {
	switch {
	case delta >= sensitivity:
		return 1
	case delta <= -sensitivity:
		return -1
	default:
		return 0
	}
}

// hysteresis confirms near/far once enough low-drift samples have been seen,
// and discards an axis latch that stays still for too long.
func (s *DecoderState) hysteresis(deltaUD, deltaLR int) {
	small := abs(deltaUD) < s.Sensitivity2 && abs(deltaLR) < s.Sensitivity2
	if !small {
		return
	}
	still := deltaUD == 0 && deltaLR == 0

	if s.UDCount == 0 && s.LRCount == 0 {
		if still {
			s.NearCount++
		} else {
			s.FarCount++
		}
		if s.NearCount >= nearCountThreshold && s.FarCount >= farCountThreshold {
			switch {
			case still:
				s.pending |= GestureNear
			case deltaUD != 0 && deltaLR != 0:
				s.pending |= GestureFar
			}
			// One axis moving and the other still emits nothing.
		}
		return
	}

	if still {
		s.NearCount++
	}
	if s.NearCount >= nearCountThreshold {
		s.UDCount, s.LRCount = 0, 0
		s.UDDelta, s.LRDelta = 0, 0
	}
}

// resolve maps the latched axis signs to a direction.
func (s *DecoderState) resolve() GestureEvents {
	udDominant := abs(s.UDDelta) > abs(s.LRDelta)
	switch {
	case s.UDCount == -1 && s.LRCount == 0:
		return GestureRight
	case s.UDCount == 1 && s.LRCount == 0:
		return GestureLeft
	case s.UDCount == 0 && s.LRCount == 1:
		return GestureDown
	case s.UDCount == 0 && s.LRCount == -1:
		return GestureUp
	case s.UDCount == -1 && s.LRCount == 1:
		if udDominant {
			return GestureRight
		}
		return GestureDown
	case s.UDCount == 1 && s.LRCount == -1:
		if udDominant {
			return GestureLeft
		}
		return GestureUp
	case s.UDCount == -1 && s.LRCount == -1:
		if udDominant {
			return GestureRight
		}
		return GestureUp
	case s.UDCount == 1 && s.LRCount == 1:
		if udDominant {
			return GestureLeft
		}
		return GestureDown
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
