package mot

// shadowCandidate is the best observation found so far on one side of the chamber
type shadowCandidate struct {
	idx  int
	dist float64
	good bool
}

// FilterShadows keeps at most one observation on each side of the chamber split: the best one.
// A trusted observation (large enough, or a merge with at least one large enough part) beats an untrusted one;
// among equally trusted observations the one closer to that side's expected center wins.
// Observations below MinShapeArea are discarded. The result holds the left side first.
func FilterShadows(observations []Ellipse, chamber Chamber, cfg Config) []Ellipse {
	bx := chamber.SplitX()
	best := [2]shadowCandidate{{idx: -1}, {idx: -1}}
	for ei, obs := range observations {
		if obs.Area < cfg.MinShapeArea {
			continue
		}
		good := obs.Area >= cfg.ShadowDetectorMinArea && hasTrustedPart(obs, cfg.MinShapeArea)
		side := 0
		if obs.Center.X > bx {
			side = 1
		}
		dist := euclideanDistance(obs.Center, chamber.Centers[side])
		current := best[side]
		if current.idx < 0 || (good && !current.good) || (dist < current.dist && good == current.good) {
			best[side] = shadowCandidate{idx: ei, dist: dist, good: good}
		}
	}
	kept := make([]Ellipse, 0, 2)
	for _, candidate := range best {
		if candidate.idx >= 0 {
			kept = append(kept, observations[candidate.idx])
		}
	}
	if len(kept) < len(observations) {
		logger.WithField("observations", len(observations)).WithField("kept", len(kept)).Debug("shadow filter discarded observations")
	}
	return kept
}

func hasTrustedPart(obs Ellipse, minArea float64) bool {
	if len(obs.MergedAreas) == 0 {
		return true
	}
	for _, area := range obs.MergedAreas {
		if area >= minArea {
			return true
		}
	}
	return false
}
