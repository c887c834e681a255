package util

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestGetWindowSum_DropsOldValues(t *testing.T) {
	// GIVEN
	window := CreateRollingWindow(3)
	for _, v := range []float64{10, 1, 2, 3} {
		window.Append(v)
	}

	// WHEN
	sum := GetWindowSum(window)

	// THEN
	assert.Equal(t, 6.0, sum)
}
