package geom

import "math"

func Abs(v Element) Element {
	return math.Abs(v)
}

func Clamp(v, min, max Element) Element {
	return math.Max(min, math.Min(v, max))
}

func Radians(deg Element) Element {
	return deg * math.Pi / 180
}

func Degrees(rad Element) Element {
	return rad * 180 / math.Pi
}
