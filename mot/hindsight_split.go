package mot

// fixSplit unifies a short-lived track that shadowed an older one: an over-segmented piece of the same object.
// The piece's shapes are merged into the older track and the piece identity is retired.
// The decision waits until the piece has been gone longer than the merged rule can reach, so a young neighbour
// hidden in a blob is separated rather than swallowed.
func (h *Hindsight) fixSplit(w *hindsightWindow, claims claimSet, c *Corrections) error {
	queue := make(distanceHeap, 0)
	for _, pieceID := range w.ids {
		piece := w.tracks[pieceID]
		if !w.born(piece) || !w.dead(piece) {
			continue
		}
		if w.last-piece.last <= h.cfg.MergedDetectionLength && !w.leaving(piece) {
			continue
		}
		parentID, cost, ok := h.splitParent(w, piece)
		if !ok {
			continue
		}
		queue.Push(candidatePair{track: parentID, obs: pieceID, cost: cost})
	}

	for queue.Len() > 0 {
		pair := queue.Pop()
		if !claims.claim(RuleSplit, c, pair.track, pair.obs) {
			continue
		}
		parent := w.tracks[pair.track]
		piece := w.tracks[pair.obs]
		for f := piece.first; f <= piece.last; f++ {
			whole, _ := parent.at(f)
			part, _ := piece.at(f)
			if err := h.put(f, parent.id, whole.Merge(part)); err != nil {
				return err
			}
		}
		if err := h.remove(piece.first, piece.last, piece.id); err != nil {
			return err
		}
		c.Split++
		logger.WithField("identity", parent.id).WithField("retired", piece.id).WithField("first", piece.first).WithField("last", piece.last).Debug("split track unified")
	}
	return nil
}

// splitParent finds an older track that was present on every frame of the piece's life and never farther than
// max jump split from it, and that shrank when the piece appeared. Smallest mean distance wins, ties go to the
// lowest identity.
func (h *Hindsight) splitParent(w *hindsightWindow, piece *trackSpan) (int, float64, bool) {
	if h.cfg.SplitDetectionLength <= 0 || piece.last-piece.first+1 > h.cfg.SplitDetectionLength {
		return 0, 0, false
	}
	bestID := 0
	bestCost := 0.0
	for _, id := range w.ids {
		if id == piece.id {
			continue
		}
		parent := w.tracks[id]
		if !parent.covers(piece.first-1, piece.last) || !splitEvidence(parent, piece) {
			continue
		}
		sum := 0.0
		near := true
		for f := piece.first; f <= piece.last; f++ {
			whole, _ := parent.at(f)
			part, _ := piece.at(f)
			dist := euclideanDistance(whole.Center, part.Center)
			if dist > h.cfg.MaxJumpSplit {
				near = false
				break
			}
			sum += dist
		}
		if !near {
			continue
		}
		cost := sum / float64(piece.last-piece.first+1)
		if bestID == 0 || cost < bestCost && !costsTie(cost, bestCost) {
			bestID = id
			bestCost = cost
		}
	}
	return bestID, bestCost, bestID != 0
}

// splitEvidence reports whether the parent lost at least half of the piece's area on the frame the piece appeared
func splitEvidence(parent, piece *trackSpan) bool {
	before, _ := parent.at(piece.first - 1)
	whole, _ := parent.at(piece.first)
	part, _ := piece.at(piece.first)
	return before.Area-whole.Area >= part.Area/2
}
