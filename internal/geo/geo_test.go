package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceZero(t *testing.T) {
	assert.Equal(t, 0.0, Distance(37.5, 127.0, 37.5, 127.0))
}

func TestDistanceKnownPair(t *testing.T) {
	// Seoul City Hall to Gangnam Station is roughly 9 km.
	d := Distance(37.5663, 126.9779, 37.4979, 127.0276)
	assert.InDelta(t, 8.8, d, 0.5)
}

func TestDistanceSymmetric(t *testing.T) {
	a := Distance(37.5, 127.0, 35.1, 129.0)
	b := Distance(35.1, 129.0, 37.5, 127.0)
	assert.InDelta(t, a, b, 1e-9)
}

func TestDistanceClampHandlesRoundoff(t *testing.T) {
	// Nearly identical points can push the cosine marginally above 1.
	d := Distance(37.5, 127.0, 37.5+1e-13, 127.0+1e-13)
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, 0, d, 0.001)
}

func TestBoxAroundContainsRadius(t *testing.T) {
	box := BoxAround(37.5, 127.0, 5)

	// A point 4.9 km due north must fall inside the box.
	north := 37.5 + 4.9/111.32
	assert.True(t, north <= box.MaxLat)
	assert.True(t, box.MinLat <= 37.5)

	// Longitude delta must widen with latitude.
	equator := BoxAround(0, 127.0, 5)
	assert.Greater(t, box.MaxLng-box.MinLng, equator.MaxLng-equator.MinLng)
}

func TestBoxAroundPolarFallback(t *testing.T) {
	box := BoxAround(90, 0, 5)
	assert.InDelta(t, 180.0, box.MaxLng, 1e-9)
	assert.InDelta(t, -180.0, box.MinLng, 1e-9)
}
