package mot

import (
	"math"
)

// mergeAbsorber finds the track that swallowed `lost` while it was missing, given that `born` is where it came out again.
// The absorber is present from the frame before the merge until `born` appears, stays within max jump of the lost
// track when it vanished and within max jump split of the newborn. Nearest absorber wins, ties go to the lowest identity.
func (h *Hindsight) mergeAbsorber(w *hindsightWindow, lost, born *trackSpan) (int, bool) {
	if h.cfg.MergedDetectionLength <= 0 || !w.dead(lost) || !w.born(born) {
		return 0, false
	}
	merge := lost.last + 1
	separate := born.first
	if separate-merge < 1 || separate-merge > h.cfg.MergedDetectionLength {
		return 0, false
	}
	before, _ := lost.at(lost.last)
	after, _ := born.at(separate)
	if euclideanDistance(before.Center, after.Center) > h.cfg.MaxJump*float64(separate-lost.last) {
		return 0, false
	}
	bestID := 0
	bestDist := math.MaxFloat64
	for _, id := range w.ids {
		if id == lost.id || id == born.id {
			continue
		}
		absorber := w.tracks[id]
		if !absorber.covers(lost.last, separate) {
			continue
		}
		atMerge, _ := absorber.at(merge)
		dist := euclideanDistance(before.Center, atMerge.Center)
		if dist > h.cfg.MaxJump {
			continue
		}
		atSeparate, _ := absorber.at(separate)
		if euclideanDistance(after.Center, atSeparate.Center) > h.cfg.MaxJumpSplit {
			continue
		}
		if dist < bestDist {
			bestDist = dist
			bestID = id
		}
	}
	return bestID, bestID != 0
}

// fixMerged restores a track that was hidden inside a neighbour's blob for a few frames.
// The newborn identity that emerged from the blob is relabelled to the hidden track and both tracks are
// back-filled across the merged interval.
func (h *Hindsight) fixMerged(w *hindsightWindow, claims claimSet, c *Corrections) error {
	queue := make(distanceHeap, 0)
	absorbers := make(map[[2]int]int)
	for _, lostID := range w.ids {
		lost := w.tracks[lostID]
		if !w.dead(lost) {
			continue
		}
		for _, bornID := range w.ids {
			born := w.tracks[bornID]
			if bornID == lostID {
				continue
			}
			absorberID, ok := h.mergeAbsorber(w, lost, born)
			if !ok {
				continue
			}
			before, _ := lost.at(lost.last)
			after, _ := born.at(born.first)
			steps := float64(born.first - lost.last)
			absorbers[[2]int{lostID, bornID}] = absorberID
			queue.Push(candidatePair{track: lostID, obs: bornID, cost: euclideanDistance(before.Center, after.Center) / steps})
		}
	}

	for queue.Len() > 0 {
		pair := queue.Pop()
		absorberID := absorbers[[2]int{pair.track, pair.obs}]
		if !claims.claim(RuleMerged, c, pair.track, pair.obs, absorberID) {
			continue
		}
		if err := h.separate(w.tracks[pair.track], w.tracks[pair.obs], w.tracks[absorberID]); err != nil {
			return err
		}
		c.Merged++
		logger.WithField("identity", pair.track).WithField("relabelled", pair.obs).WithField("absorber", absorberID).Debug("merged tracks separated")
	}
	return nil
}

// separate back-fills `lost` and `absorber` over the merged interval and hands the newborn's frames to `lost`
func (h *Hindsight) separate(lost, born, absorber *trackSpan) error {
	lostBefore, _ := lost.at(lost.last)
	lostAfter, _ := born.at(born.first)
	absorberBefore, _ := absorber.at(lost.last)
	absorberAfter, _ := absorber.at(born.first)
	steps := float64(born.first - lost.last)
	for f := lost.last + 1; f < born.first; f++ {
		t := float64(f-lost.last) / steps
		lostShape := interpolateEllipse(lostBefore, lostAfter, t)
		absorberShape := interpolateEllipse(absorberBefore, absorberAfter, t)
		if blob, _ := absorber.at(f); len(blob.MergedAreas) >= 2 {
			absorberShape.Area, lostShape.Area = resolveMergedAreas(blob.MergedAreas, absorberBefore.Area, lostBefore.Area)
			// The observed blob stays on record with the absorber
			absorberShape.MergedAreas = append([]float64(nil), blob.MergedAreas...)
		}
		if err := h.put(f, absorber.id, absorberShape); err != nil {
			return err
		}
		if err := h.put(f, lost.id, lostShape); err != nil {
			return err
		}
	}
	return h.relabel(born.first, born.last, born.id, lost.id)
}

// resolveMergedAreas gives each identity the sub-area closest to its area before the merge.
// The first identity picks first; the second picks among the remaining sub-areas.
func resolveMergedAreas(areas []float64, first, second float64) (float64, float64) {
	pick := func(target float64, skip int) int {
		best := -1
		for i, area := range areas {
			if i == skip {
				continue
			}
			if best < 0 || math.Abs(area-target) < math.Abs(areas[best]-target) {
				best = i
			}
		}
		return best
	}
	a := pick(first, -1)
	b := pick(second, a)
	return areas[a], areas[b]
}
