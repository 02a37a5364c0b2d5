package formulas

import (
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// LinearSlope fits a least squares line y = a + b*x through the points
// and returns the slope b. Returns 0 for fewer than two points.
func LinearSlope(xs, ys []float64) float64 {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope
}
