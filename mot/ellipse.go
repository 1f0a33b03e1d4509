package mot

import (
	"math"
)

// Ellipse is a single shape observation fitted to a foreground blob.
// Major and Minor are semi-axis lengths; Angle is the orientation of the
// major axis in radians, normalized into (-pi/2, pi/2].
type Ellipse struct {
	Center Point   `yaml:"center"`
	Angle  float64 `yaml:"angle"`
	Major  float64 `yaml:"major"`
	Minor  float64 `yaml:"minor"`
	Area   float64 `yaml:"area"`
	// Areas of the blobs combined into this observation by the mask producer.
	// Empty when the observation comes from a single connected component.
	MergedAreas []float64 `yaml:"merged_areas,omitempty"`
}

// Empty reports whether the ellipse is a degenerate (zero-area) detection
func (e Ellipse) Empty() bool {
	return e.Area <= 0
}

// BBox returns axis-aligned bounding box of the ellipse
func (e Ellipse) BBox() Rectangle {
	cos := math.Cos(e.Angle)
	sin := math.Sin(e.Angle)
	halfW := math.Sqrt(e.Major*e.Major*cos*cos + e.Minor*e.Minor*sin*sin)
	halfH := math.Sqrt(e.Major*e.Major*sin*sin + e.Minor*e.Minor*cos*cos)
	return Rectangle{
		X:      e.Center.X - halfW,
		Y:      e.Center.Y - halfH,
		Width:  2 * halfW,
		Height: 2 * halfH,
	}
}

// Copy returns deep copy of the ellipse
func (e Ellipse) Copy() Ellipse {
	cp := e
	if e.MergedAreas != nil {
		cp.MergedAreas = append([]float64(nil), e.MergedAreas...)
	}
	return cp
}

// covariance returns second central moments of a uniformly filled ellipse
func (e Ellipse) covariance() (sxx, sxy, syy float64) {
	cos := math.Cos(e.Angle)
	sin := math.Sin(e.Angle)
	// Variance along a semi-axis of length a is a^2/4
	l1 := e.Major * e.Major / 4
	l2 := e.Minor * e.Minor / 4
	sxx = l1*cos*cos + l2*sin*sin
	syy = l1*sin*sin + l2*cos*cos
	sxy = (l1 - l2) * cos * sin
	return sxx, sxy, syy
}

// Merge combines two ellipses into the one matching the union of their
// pixel moments. Used when two observations turn out to be one object.
func (e Ellipse) Merge(other Ellipse) Ellipse {
	total := e.Area + other.Area
	if total <= 0 {
		return e.Copy()
	}
	w1 := e.Area / total
	w2 := other.Area / total
	center := Point{
		X: e.Center.X*w1 + other.Center.X*w2,
		Y: e.Center.Y*w1 + other.Center.Y*w2,
	}
	sxx1, sxy1, syy1 := e.covariance()
	sxx2, sxy2, syy2 := other.covariance()
	d1x, d1y := e.Center.X-center.X, e.Center.Y-center.Y
	d2x, d2y := other.Center.X-center.X, other.Center.Y-center.Y
	sxx := w1*(sxx1+d1x*d1x) + w2*(sxx2+d2x*d2x)
	syy := w1*(syy1+d1y*d1y) + w2*(syy2+d2y*d2y)
	sxy := w1*(sxy1+d1x*d1y) + w2*(sxy2+d2x*d2y)

	merged := ellipseFromMoments(center, sxx, sxy, syy, total)
	merged.MergedAreas = mergedAreasOf(e, other)
	return merged
}

func mergedAreasOf(parts ...Ellipse) []float64 {
	areas := make([]float64, 0, len(parts))
	for _, part := range parts {
		if len(part.MergedAreas) > 0 {
			areas = append(areas, part.MergedAreas...)
		} else {
			areas = append(areas, part.Area)
		}
	}
	return areas
}

// ellipseFromMoments builds ellipse from centroid and 2x2 covariance.
// Closed-form eigen decomposition of symmetric 2x2 matrix.
func ellipseFromMoments(center Point, sxx, sxy, syy, area float64) Ellipse {
	tr := (sxx + syy) / 2
	det := math.Sqrt(maxFloat64(0, (sxx-syy)*(sxx-syy)/4+sxy*sxy))
	l1 := tr + det
	l2 := maxFloat64(0, tr-det)
	angle := 0.5 * math.Atan2(2*sxy, sxx-syy)
	return Ellipse{
		Center: center,
		Angle:  normalizeAngle(angle),
		Major:  2 * math.Sqrt(l1),
		Minor:  2 * math.Sqrt(l2),
		Area:   area,
	}
}

// interpolateEllipse returns the shape at fraction t between e1 and e2
func interpolateEllipse(e1, e2 Ellipse, t float64) Ellipse {
	return Ellipse{
		Center: lerpPoint(e1.Center, e2.Center, t),
		Angle:  lerpAngle(e1.Angle, e2.Angle, t),
		Major:  lerpFloat64(e1.Major, e2.Major, t),
		Minor:  lerpFloat64(e1.Minor, e2.Minor, t),
		Area:   lerpFloat64(e1.Area, e2.Area, t),
	}
}
