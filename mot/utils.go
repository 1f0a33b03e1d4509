package mot

import "math"

// IoU calculates Intersection over Union between two rectangles.
func IoU(r1, r2 Rectangle) float64 {
	xA := maxFloat64(r1.X, r2.X)
	yA := maxFloat64(r1.Y, r2.Y)
	xB := minFloat64(r1.X+r1.Width, r2.X+r2.Width)
	yB := minFloat64(r1.Y+r1.Height, r2.Y+r2.Height)

	interArea := maxFloat64(0, xB-xA) * maxFloat64(0, yB-yA)
	if interArea == 0 {
		return 0.0
	}

	r1Area := r1.Width * r1.Height
	r2Area := r2.Width * r2.Height

	return interArea / (r1Area + r2Area - interArea)
}

// normalizeAngle maps an ellipse orientation into (-pi/2, pi/2].
// Orientation is pi-periodic: the major axis has no head or tail.
func normalizeAngle(angle float64) float64 {
	angle = math.Mod(angle, math.Pi)
	if angle <= -math.Pi/2 {
		angle += math.Pi
	} else if angle > math.Pi/2 {
		angle -= math.Pi
	}
	return angle
}

// angleDifference returns the smallest absolute difference between two orientations
func angleDifference(a1, a2 float64) float64 {
	return math.Abs(normalizeAngle(a1 - a2))
}

// lerpAngle interpolates orientations along the shortest pi-periodic arc
func lerpAngle(a1, a2, t float64) float64 {
	return normalizeAngle(a1 + normalizeAngle(a2-a1)*t)
}

func lerpFloat64(v1, v2, t float64) float64 {
	return v1 + (v2-v1)*t
}

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
