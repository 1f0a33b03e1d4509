package mot

// fixLost joins a track that vanished for a few frames with the track born where it reappeared.
// The newborn identity is relabelled to the old one and the gap is interpolated.
func (h *Hindsight) fixLost(w *hindsightWindow, claims claimSet, c *Corrections) error {
	queue := make(distanceHeap, 0)
	for _, deadID := range w.ids {
		dead := w.tracks[deadID]
		if !w.dead(dead) {
			continue
		}
		for _, bornID := range w.ids {
			born := w.tracks[bornID]
			if bornID == deadID || !w.born(born) {
				continue
			}
			steps := born.first - dead.last
			gap := steps - 1
			if gap < 1 || gap >= h.cfg.LostDetectionLength {
				continue
			}
			from, _ := dead.at(dead.last)
			to, _ := born.at(born.first)
			dist := euclideanDistance(from.Center, to.Center)
			if dist > h.cfg.MaxJump*float64(steps) {
				continue
			}
			// Disappearing into a neighbour is a merge, not a loss
			if _, merged := h.mergeAbsorber(w, dead, born); merged {
				continue
			}
			queue.Push(candidatePair{track: deadID, obs: bornID, cost: dist / float64(steps)})
		}
	}

	for queue.Len() > 0 {
		pair := queue.Pop()
		if !claims.claim(RuleLost, c, pair.track, pair.obs) {
			continue
		}
		dead := w.tracks[pair.track]
		born := w.tracks[pair.obs]
		from, _ := dead.at(dead.last)
		to, _ := born.at(born.first)
		steps := float64(born.first - dead.last)
		for f := dead.last + 1; f < born.first; f++ {
			shape := interpolateEllipse(from, to, float64(f-dead.last)/steps)
			if err := h.put(f, dead.id, shape); err != nil {
				return err
			}
		}
		if err := h.relabel(born.first, born.last, born.id, dead.id); err != nil {
			return err
		}
		c.Lost++
		logger.WithField("identity", dead.id).WithField("relabelled", born.id).WithField("gap_from", dead.last+1).WithField("gap_to", born.first-1).Debug("lost track joined")
	}
	return nil
}
