package math

// Maximum calculates the maximum value among two integers
func Maximum(a int, b int) int {
	if a > b {
		return a
	}
	return b
}

//Minimum calculates the minimum value among two integers
func Minimum(a int, b int) int {
	if a > b {
		return b
	}
	return a
}

//Adjustment contains rule of three for calculating an integer given another integer representing a percentage
func Adjustment(a int, b int) int {
	return (a * b / 100)
}

// Clamp bounds v to the [lo, hi] interval.
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Interpolate produces the value of step i on a linear ramp from start to
// end across steps points, both endpoints included. A single step yields
// start.
func Interpolate(start, end float64, i, steps int) float64 {
	if steps <= 1 {
		return start
	}
	return start - float64(i)*(start-end)/float64(steps-1)
}
