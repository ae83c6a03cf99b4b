package journey

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoute(t *testing.T) {
	c := NewCache()
	payload := []byte(`{"polyline":"_p~iF~ps|U"}`)

	c.PutRoute("hotelA", Driving, payload)

	got, ok := c.GetRoute("hotelA", Driving)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	_, ok = c.GetRoute("hotelA", Walking)
	assert.False(t, ok, "modes are separate keys")

	_, ok = c.GetExtents("hotelA", Driving)
	assert.False(t, ok, "extents before any capture")
}

func TestPutRouteKeepsExtents(t *testing.T) {
	c := NewCache()
	c.PutRoute("hotelA", Driving, []byte("v1"))
	require.True(t, c.PutExtents("hotelA", Driving, ScreenPoint{X: 120, Y: 48}, 13))

	c.PutRoute("hotelA", Driving, []byte("v2"))

	got, _ := c.GetRoute("hotelA", Driving)
	assert.Equal(t, []byte("v2"), got)

	ext, ok := c.GetExtents("hotelA", Driving)
	require.True(t, ok)
	assert.Equal(t, Extents{Point: ScreenPoint{X: 120, Y: 48}, Zoom: 13}, ext)
	assert.Equal(t, 1, c.Len())
}

func TestPutExtentsWithoutRouteIsNoop(t *testing.T) {
	c := NewCache()

	if c.PutExtents("ghost", Transit, ScreenPoint{X: 1, Y: 1}, 10) {
		t.Error("PutExtents() = true for a missing journey, want false")
	}
	_, ok := c.GetExtents("ghost", Transit)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "no entry is created")
}

func TestCompositeKeyNoCollision(t *testing.T) {
	c := NewCache()
	// joined with a dot these two would both read "a.b.driving"
	c.PutRoute("a.b", Driving, []byte("1"))
	c.PutRoute("a", TravelMode("b.driving"), []byte("2"))

	got, _ := c.GetRoute("a.b", Driving)
	assert.Equal(t, []byte("1"), got)
	assert.Equal(t, 2, c.Len())
}

func TestReturnedPayloadIsACopy(t *testing.T) {
	c := NewCache()
	payload := []byte("abc")
	c.PutRoute("x", Walking, payload)
	payload[0] = 'z'

	got, _ := c.GetRoute("x", Walking)
	got[1] = 'z'

	again, _ := c.GetRoute("x", Walking)
	assert.Equal(t, []byte("abc"), again)
}

func TestEntriesAndRestore(t *testing.T) {
	c := NewCache()
	c.PutRoute("b", Walking, []byte("bw"))
	c.PutRoute("a", Walking, []byte("aw"))
	c.PutRoute("a", Driving, []byte("ad"))
	c.PutExtents("a", Driving, ScreenPoint{X: 3, Y: 4}, 9)

	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, Key{DestinationID: "a", Mode: Driving}, entries[0].Key)
	assert.Equal(t, Key{DestinationID: "a", Mode: Walking}, entries[1].Key)
	assert.Equal(t, Key{DestinationID: "b", Mode: Walking}, entries[2].Key)

	restored := NewCache()
	restored.PutRoute("stale", Transit, []byte("x"))
	restored.Restore(entries)

	assert.Equal(t, entries, restored.Entries())
	_, ok := restored.GetRoute("stale", Transit)
	assert.False(t, ok)

	ext, ok := restored.GetExtents("a", Driving)
	require.True(t, ok)
	assert.Equal(t, 9, ext.Zoom)

	assert.True(t, restored.Remove("a", Driving))
	assert.False(t, restored.Remove("a", Driving))
}

func TestParseTravelMode(t *testing.T) {
	for _, m := range TravelModes {
		got, err := ParseTravelMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseTravelMode("teleport")
	if !errors.Is(err, ErrUnknownTravelMode) {
		t.Errorf("ParseTravelMode(teleport) error = %v, want ErrUnknownTravelMode", err)
	}
}
