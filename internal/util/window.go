package util

import "github.com/asecurityteam/rolling"

func CreateRollingWindow(size int) *rolling.PointPolicy {
	return rolling.NewPointPolicy(rolling.NewWindow(size))
}

// GetWindowSum returns the sum of all values in the window
func GetWindowSum(window *rolling.PointPolicy) float64 {
	return window.Reduce(rolling.Sum)
}
