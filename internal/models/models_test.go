package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundCoordinate(t *testing.T) {
	assert.Equal(t, 46.51965, RoundCoordinate(46.519654))
	assert.Equal(t, -74.00601, RoundCoordinate(-74.006012))
	assert.Equal(t, 0.0, RoundCoordinate(0.000001))
}

func TestCoordinatesRounded(t *testing.T) {
	coords := Coordinates{Lat: 46.5196549, Lng: 6.6322734}

	rounded := coords.Rounded()

	assert.Equal(t, 46.51965, rounded.Lat)
	assert.Equal(t, 6.63227, rounded.Lng)
}

func TestCoordinatesCreation(t *testing.T) {
	coords := Coordinates{
		Lat: 35.6762,
		Lng: 139.6503,
	}

	assert.Equal(t, 35.6762, coords.Lat)
	assert.Equal(t, 139.6503, coords.Lng)
}
