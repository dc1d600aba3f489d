package geom

import (
	"math"
	"testing"
)

func TestUtils(t *testing.T) {
	if Clamp(2, -1, 1) != 1 || Clamp(-2, -1, 1) != -1 || Clamp(0.5, -1, 1) != 0.5 {
		t.Error("Clamp")
	}
	if Abs(Radians(180)-math.Pi) > 1e-12 || Abs(Degrees(math.Pi/2)-90) > 1e-12 {
		t.Error("Radians/Degrees")
	}
}
