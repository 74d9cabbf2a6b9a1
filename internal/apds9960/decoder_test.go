package apds9960

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() Sample { return Sample{Up: 1, Down: 1, Left: 1, Right: 1} }

func TestDecode_ShortBatchIsUsageErrorWithoutMutation(t *testing.T) {
	for n := 0; n < 4; n++ {
		s := NewDecoderState()
		s.UDDelta, s.LRDelta, s.UDCount, s.NearCount = 7, -3, 1, 4
		before := *s

		batch := make([]Sample, n)
		for i := range batch {
			batch[i] = Sample{Up: 200, Down: 10, Left: 100, Right: 100}
		}

		err := s.Decode(batch)
		require.Error(t, err, "len=%d", n)
		assert.ErrorIs(t, err, ErrUsage)
		assert.NotErrorIs(t, err, ErrIO)
		assert.Equal(t, before, *s, "state mutated for len=%d", n)
	}
}

func TestDecode_SwipeRight(t *testing.T) {
	s := NewDecoderState()
	// ud: 4900/71 = 69 -> -69, lr: 200/62 = 3 -> -3
	batch := []Sample{
		{Up: 60, Down: 11, Left: 32, Right: 30},
		quiet(),
		quiet(),
		{Up: 11, Down: 60, Left: 30, Right: 32},
	}

	require.NoError(t, s.Decode(batch))

	assert.Equal(t, -138, s.UDDelta)
	assert.Equal(t, -6, s.LRDelta)
	assert.Equal(t, -1, s.UDCount)
	assert.Equal(t, 0, s.LRCount)
	assert.Equal(t, GestureRight, s.Pending())
}

func TestDecode_ChannelAtThresholdDisqualifiesSample(t *testing.T) {
	s := NewDecoderState()
	// Down and Up of 5 are below the default threshold of 10 at both ends.
	batch := []Sample{
		{Up: 60, Down: 5, Left: 32, Right: 30},
		quiet(),
		quiet(),
		{Up: 5, Down: 60, Left: 30, Right: 32},
	}

	require.NoError(t, s.Decode(batch))

	assert.Zero(t, s.UDDelta)
	assert.Zero(t, s.LRDelta)
	assert.Zero(t, s.UDCount)
	assert.Zero(t, s.LRCount)
	assert.Zero(t, s.NearCount)
	assert.Zero(t, s.FarCount)
	assert.True(t, s.Pending().Empty())
}

func TestDecode_NoSignalKeepsAccumulators(t *testing.T) {
	s := NewDecoderState()
	s.UDDelta, s.LRDelta = 12, -4
	s.NearCount, s.FarCount = 3, 1

	batch := []Sample{quiet(), quiet(), quiet(), {Up: 10, Down: 200, Left: 200, Right: 200}}
	require.NoError(t, s.Decode(batch))

	assert.Equal(t, 12, s.UDDelta)
	assert.Equal(t, -4, s.LRDelta)
	assert.Equal(t, 3, s.NearCount)
	assert.Equal(t, 1, s.FarCount)
	assert.True(t, s.Pending().Empty())
}

func TestDecode_NoSignalStillResolvesLatchedDirection(t *testing.T) {
	s := NewDecoderState()
	s.UDCount, s.LRCount = 0, -1

	require.NoError(t, s.Decode([]Sample{quiet(), quiet(), quiet(), quiet()}))
	assert.Equal(t, GestureUp, s.Pending())
}

func TestDecode_AccumulatesAcrossCalls(t *testing.T) {
	s := NewDecoderState()
	s.SetSensitivity1(1000)
	s.SetSensitivity2(0)

	// delta_ud = ud(last) - ud(first) = 0 - 69 = -69
	b1 := []Sample{
		{Up: 60, Down: 11, Left: 40, Right: 40},
		quiet(), quiet(),
		{Up: 40, Down: 40, Left: 40, Right: 40},
	}
	// delta_ud = 33 - 0 = 33 (80-40)*100/120
	b2 := []Sample{
		{Up: 40, Down: 40, Left: 40, Right: 40},
		quiet(), quiet(),
		{Up: 80, Down: 40, Left: 40, Right: 40},
	}

	require.NoError(t, s.Decode(b1))
	assert.Equal(t, -69, s.UDDelta)
	require.NoError(t, s.Decode(b2))
	assert.Equal(t, -69+33, s.UDDelta)
	assert.Equal(t, 0, s.LRDelta)
	assert.Equal(t, 0, s.UDCount)
}

func TestDecode_SingleQualifyingSampleIsFirstAndLast(t *testing.T) {
	s := NewDecoderState()
	batch := []Sample{quiet(), {Up: 90, Down: 20, Left: 50, Right: 20}, quiet(), quiet()}

	require.NoError(t, s.Decode(batch))
	assert.Equal(t, 0, s.UDDelta)
	assert.Equal(t, 0, s.LRDelta)
	assert.Equal(t, 1, s.NearCount)
	assert.Equal(t, 0, s.FarCount)
}

func TestDecode_LastIsTemporallyLastQualifyingSample(t *testing.T) {
	s := NewDecoderState()
	s.SetSensitivity1(1000)
	batch := []Sample{
		{Up: 50, Down: 50, Left: 50, Right: 50},
		{Up: 90, Down: 30, Left: 50, Right: 50}, // ud 50, not last
		{Up: 30, Down: 90, Left: 50, Right: 50}, // ud -50, last
		quiet(),
	}
	require.NoError(t, s.Decode(batch))
	assert.Equal(t, -50, s.UDDelta)
}

func TestDecode_ThresholdIsStrict(t *testing.T) {
	s := NewDecoderState()
	batch := []Sample{
		{Up: 10, Down: 200, Left: 200, Right: 200},
		quiet(), quiet(),
		{Up: 10, Down: 10, Left: 10, Right: 10},
	}
	require.NoError(t, s.Decode(batch))
	assert.Equal(t, 0, s.NearCount+s.FarCount)
}

// still returns a batch whose first and last qualifying samples are identical.
func still() []Sample {
	v := Sample{Up: 40, Down: 40, Left: 40, Right: 40}
	return []Sample{v, quiet(), quiet(), v}
}

// drift returns a batch with small non-zero deltas on both axes.
func drift() []Sample {
	return []Sample{
		{Up: 40, Down: 40, Left: 40, Right: 40},
		quiet(), quiet(),
		{Up: 44, Down: 40, Left: 44, Right: 40}, // ud 4, lr 4
	}
}

func TestDecode_NearAfterHysteresis(t *testing.T) {
	s := NewDecoderState()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Decode(drift()))
	}
	// Keep the accumulators under the latch sensitivity.
	s.UDDelta, s.LRDelta = 0, 0

	for i := 0; i < 9; i++ {
		require.NoError(t, s.Decode(still()))
		assert.True(t, s.Pending().Empty(), "near reported early at %d", i)
	}
	require.NoError(t, s.Decode(still()))

	assert.Equal(t, 10, s.NearCount)
	assert.Equal(t, 2, s.FarCount)
	assert.Equal(t, GestureNear, s.Pending())
}

func TestDecode_FarAfterHysteresis(t *testing.T) {
	s := NewDecoderState()
	s.NearCount = 10

	require.NoError(t, s.Decode(drift()))
	assert.True(t, s.Pending().Empty())
	require.NoError(t, s.Decode(drift()))

	assert.Equal(t, 2, s.FarCount)
	assert.Equal(t, GestureFar, s.Pending())
}

func TestDecode_SingleAxisDriftEmitsNothing(t *testing.T) {
	s := NewDecoderState()
	s.NearCount, s.FarCount = 10, 5

	batch := []Sample{
		{Up: 40, Down: 40, Left: 40, Right: 40},
		quiet(), quiet(),
		{Up: 44, Down: 40, Left: 40, Right: 40}, // ud 4, lr 0
	}
	require.NoError(t, s.Decode(batch))

	assert.Equal(t, 6, s.FarCount)
	assert.True(t, s.Pending().Empty())
}

func TestDecode_StaleAxisLatchIsDiscarded(t *testing.T) {
	s := NewDecoderState()
	s.UDDelta, s.UDCount = 60, 1
	s.NearCount = 9

	require.NoError(t, s.Decode(still()))

	assert.Equal(t, 0, s.UDCount)
	assert.Equal(t, 0, s.LRCount)
	assert.Equal(t, 0, s.UDDelta)
	assert.Equal(t, 0, s.LRDelta)
	assert.True(t, s.Pending().Empty())
}

func TestResolve_Table(t *testing.T) {
	tests := []struct {
		name     string
		ud, lr   int
		udDelta  int
		lrDelta  int
		expected GestureEvents
	}{
		{"ud- only", -1, 0, -60, 0, GestureRight},
		{"ud+ only", 1, 0, 60, 0, GestureLeft},
		{"lr+ only", 0, 1, 0, 60, GestureDown},
		{"lr- only", 0, -1, 0, -60, GestureUp},
		{"ud- lr+ ud dominant", -1, 1, -90, 60, GestureRight},
		{"ud- lr+ lr dominant", -1, 1, -60, 90, GestureDown},
		{"ud+ lr- ud dominant", 1, -1, 90, -60, GestureLeft},
		{"ud+ lr- lr dominant", 1, -1, 60, -90, GestureUp},
		{"ud- lr- ud dominant", -1, -1, -90, -60, GestureRight},
		{"ud- lr- tie", -1, -1, -60, -60, GestureUp},
		{"ud+ lr+ ud dominant", 1, 1, 90, 60, GestureLeft},
		{"ud+ lr+ lr dominant", 1, 1, 60, 90, GestureDown},
		{"none", 0, 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewDecoderState()
			s.UDCount, s.LRCount = tt.ud, tt.lr
			s.UDDelta, s.LRDelta = tt.udDelta, tt.lrDelta
			assert.Equal(t, tt.expected, s.resolve())
		})
	}
}

func TestGestureEvents_EachOrder(t *testing.T) {
	all := GestureLeft | GestureRight | GestureUp | GestureDown | GestureNear | GestureFar
	var got []Interrupt
	all.Each(func(i Interrupt) { got = append(got, i) })

	assert.Equal(t, []Interrupt{
		InterruptGestureFar,
		InterruptGestureNear,
		InterruptGestureDown,
		InterruptGestureUp,
		InterruptGestureRight,
		InterruptGestureLeft,
	}, got)
	assert.Equal(t, "far|near|down|up|right|left", all.String())
	assert.Equal(t, "none", GestureEvents(0).String())
}
