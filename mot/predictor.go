package mot

import (
	kalman_filter "github.com/LdDl/kalman-filter"
)

// MotionPredictor estimates where a track will be at the next frame.
// history holds the most recent centers of the track, oldest first; it has one or two entries.
type MotionPredictor interface {
	Predict(history []Point) Point
}

// ConstantVelocity extrapolates the last displacement, damped by Dampen in [0, 1]
type ConstantVelocity struct {
	Dampen float64
}

// Predict implements MotionPredictor
func (predictor ConstantVelocity) Predict(history []Point) Point {
	switch len(history) {
	case 0:
		return Point{}
	case 1:
		return history[0]
	}
	p2 := history[len(history)-2]
	p1 := history[len(history)-1]
	k := 1.0 - predictor.Dampen
	return Point{
		X: p1.X + k*(p1.X-p2.X),
		Y: p1.Y + k*(p1.Y-p2.Y),
	}
}

// KalmanPredictor replays the history through 2D Kalman filter and returns its a priori estimate
type KalmanPredictor struct {
	dt       float64
	stdDevA  float64
	stdDevMx float64
	stdDevMy float64
}

// NewKalmanPredictorDefault creates KalmanPredictor with unit time step
func NewKalmanPredictorDefault() *KalmanPredictor {
	return NewKalmanPredictor(1.0, 2.0, 0.1, 0.1)
}

// NewKalmanPredictor creates KalmanPredictor
func NewKalmanPredictor(dt, stdDevA, stdDevMx, stdDevMy float64) *KalmanPredictor {
	return &KalmanPredictor{
		dt:       dt,
		stdDevA:  stdDevA,
		stdDevMx: stdDevMx,
		stdDevMy: stdDevMy,
	}
}

// Predict implements MotionPredictor
func (predictor *KalmanPredictor) Predict(history []Point) Point {
	if len(history) == 0 {
		return Point{}
	}
	if len(history) == 1 {
		return history[0]
	}
	/* No control input: the filter only follows observed motion */
	ux := 0.0
	uy := 0.0
	kf := kalman_filter.NewKalman2D(predictor.dt, ux, uy, predictor.stdDevA, predictor.stdDevMx, predictor.stdDevMy, kalman_filter.WithState2D(history[0].X, history[0].Y))
	for _, pt := range history[1:] {
		kf.Predict()
		if err := kf.Update(pt.X, pt.Y); err != nil {
			logger.WithError(err).Warn("kalman update failed, falling back to last position")
			return history[len(history)-1]
		}
	}
	kf.Predict()
	x, y := kf.GetState()
	return Point{X: x, Y: y}
}
