package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOccupancyPercent(t *testing.T) {
	assert.Equal(t, 0.0, OccupancyPercent(0, 10))
	assert.Equal(t, 50.0, OccupancyPercent(5, 10))
	assert.Equal(t, 33.33, OccupancyPercent(1, 3))
	assert.Equal(t, 100.0, OccupancyPercent(4, 4))
	assert.Equal(t, 0.0, OccupancyPercent(3, 0))
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("")
	assert.NoError(t, err)
	assert.Equal(t, ByDay, g)

	g, err = ParseGranularity("month")
	assert.NoError(t, err)
	assert.Equal(t, ByMonth, g)

	_, err = ParseGranularity("week")
	assert.Error(t, err)
}
