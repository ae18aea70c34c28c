package roster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRoster = `# Example network location table.
Example LMA
33.98
-107.19
3195.0

# West station, fielded 2019.
West Knoll
W
33.9812
-107.2034
3214.5
210.5
3
1

East Ridge
E
33.9756
-107.1488
3102.0
185.0
3
2
`

func TestParse(t *testing.T) {
	r, err := Parse(strings.NewReader(sampleRoster))
	require.NoError(t, err)

	require.NotNil(t, r.Network)
	assert.Equal(t, "Example LMA", r.Network.Name)
	assert.InDelta(t, 33.98, r.Network.Geodetic.Lat, 1e-9)
	assert.InDelta(t, -107.19, r.Network.Geodetic.Lon, 1e-9)
	assert.NotZero(t, r.Network.Cartesian.X)

	require.Equal(t, 2, r.Len())

	w, ok := r.Lookup("W")
	require.True(t, ok)
	assert.Equal(t, "West Knoll", w.Name)
	assert.InDelta(t, 33.9812, w.Geodetic.Lat, 1e-9)
	assert.InDelta(t, 210.5, w.DelayNs, 1e-9)
	assert.Equal(t, 3, w.BoardVersion)
	assert.Equal(t, 1, w.Channel)

	e, ok := r.Lookup("E")
	require.True(t, ok)
	assert.Equal(t, "East Ridge", e.Name)
	assert.Equal(t, 2, e.Channel)

	_, ok = r.Lookup("Q")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"W", "E"}, r.IDs())
}

func TestParseErrors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := Parse(strings.NewReader(""))
		assert.Error(t, err)
	})

	t.Run("truncated station block", func(t *testing.T) {
		head := strings.Join(strings.Split(sampleRoster, "\n")[:11], "\n")
		_, err := Parse(strings.NewReader(head))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "station")
	})

	t.Run("malformed coordinate", func(t *testing.T) {
		bad := strings.Replace(sampleRoster, "33.9812", "north-ish", 1)
		_, err := Parse(strings.NewReader(bad))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "West Knoll")
	})

	t.Run("malformed cable delay", func(t *testing.T) {
		bad := strings.Replace(sampleRoster, "210.5", "soon", 1)
		_, err := Parse(strings.NewReader(bad))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cable delay")
	})
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	assert.Zero(t, r.Len())

	r.Register(&Station{ID: "V", Name: "Valley"})
	s, ok := r.Lookup("V")
	require.True(t, ok)
	assert.Equal(t, "Valley", s.Name)

	// Registering the same id replaces the entry.
	r.Register(&Station{ID: "V", Name: "Valley South"})
	s, _ = r.Lookup("V")
	assert.Equal(t, "Valley South", s.Name)
	assert.Equal(t, 1, r.Len())
}
