package lma

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gpsCycle builds the 12 GPS words a receiver at the given position would
// multiplex across one cycle.
func gpsCycle(lat, lon, alt float64) [12]uint16 {
	latRaw := uint32(int32(math.Round(lat * 324000000.0 / 90.0)))
	lonRaw := uint32(int32(math.Round(lon * 324000000.0 / 90.0)))
	altRaw := uint32(math.Round(alt * 100.0))

	return [12]uint16{
		uint16(latRaw >> 16), uint16(latRaw & 0xFFFF),
		uint16(lonRaw >> 16), uint16(lonRaw & 0xFFFF),
		uint16(altRaw >> 16), uint16(altRaw & 0xFFFF),
		0, 0, // velocity
		90,             // bearing
		7<<8 | 11,      // tracked, visible
		0x003,          // satellite status
		(22 + 40) << 8, // temperature
	}
}

func TestAlmanacCycle(t *testing.T) {
	cycle := gpsCycle(33.98, -107.19, 3195.0)

	var a Almanac
	for second := 0; second < 12; second++ {
		a.Observe(&StatusRecord{Second: second, GPSInfo: cycle[second]})
		if second < 11 {
			assert.False(t, a.Complete(), "cycle complete after %d slots", second+1)
		}
	}
	require.True(t, a.Complete())

	pos, ok := a.Position()
	require.True(t, ok)
	assert.InDelta(t, 33.98, pos.Lat, 1e-6)
	assert.InDelta(t, -107.19, pos.Lon, 1e-6)
	assert.InDelta(t, 3195.0, pos.Alt, 0.01)

	assert.Equal(t, uint16(90), a.Bearing)
	assert.Equal(t, 7, a.SatTracked)
	assert.Equal(t, 11, a.SatVisible)
	assert.Equal(t, uint16(0x003), a.SatStatus)
	assert.Equal(t, 22, a.Temperature)
}

func TestAlmanacPosition(t *testing.T) {
	t.Run("empty almanac has no position", func(t *testing.T) {
		var a Almanac
		_, ok := a.Position()
		assert.False(t, ok)
	})

	t.Run("position needs all three components", func(t *testing.T) {
		cycle := gpsCycle(33.98, -107.19, 3195.0)
		var a Almanac
		// Latitude and longitude only; altitude slots never arrive.
		for _, second := range []int{0, 1, 2, 3} {
			a.Observe(&StatusRecord{Second: second, GPSInfo: cycle[second]})
		}
		_, ok := a.Position()
		assert.False(t, ok)
		assert.False(t, a.Complete())
	})

	t.Run("slots observed out of order still latch", func(t *testing.T) {
		cycle := gpsCycle(40.0, -105.0, 1650.0)
		var a Almanac
		for _, second := range []int{5, 4, 1, 0, 3, 2, 11, 10, 9, 8, 7, 6} {
			a.Observe(&StatusRecord{Second: second, GPSInfo: cycle[second]})
		}
		require.True(t, a.Complete())
		pos, ok := a.Position()
		require.True(t, ok)
		assert.InDelta(t, 40.0, pos.Lat, 1e-6)
		assert.InDelta(t, -105.0, pos.Lon, 1e-6)
	})
}

func TestConvertLatLon(t *testing.T) {
	assert.InDelta(t, 90.0, convertLatLon(324000000), 1e-9)
	// Negative angles arrive as 32-bit two's complement.
	assert.InDelta(t, -90.0, convertLatLon(uint32(1<<32-324000000)), 1e-9)
	assert.Zero(t, convertLatLon(0))
}
