package mot

import "math"

// CostFunc scores matching an observation to a track whose predicted shape is `predicted`.
// Lower is better; the displacement gate is applied separately, so a CostFunc only ranks admissible pairs.
type CostFunc func(predicted Ellipse, obs Ellipse) float64

// DistanceCost is squared center distance plus angleWeight times squared orientation difference
func DistanceCost(angleWeight float64) CostFunc {
	return func(predicted Ellipse, obs Ellipse) float64 {
		dAngle := angleDifference(predicted.Angle, obs.Angle)
		return squaredDistance(predicted.Center, obs.Center) + angleWeight*dAngle*dAngle
	}
}

// OverlapCost ranks pairs by bounding box overlap, falling back to distance for disjoint shapes.
// scale should be comparable to squared max jump so both terms share units.
func OverlapCost(scale float64) CostFunc {
	return func(predicted Ellipse, obs Ellipse) float64 {
		iou := IoU(predicted.BBox(), obs.BBox())
		if iou > 0 {
			return (1.0 - iou) * scale
		}
		return scale + squaredDistance(predicted.Center, obs.Center)
	}
}

const costTieEpsilon = 1e-9

func costsTie(c1, c2 float64) bool {
	return math.Abs(c1-c2) <= costTieEpsilon*maxFloat64(1, maxFloat64(math.Abs(c1), math.Abs(c2)))
}
