package mot

// fixSpurious deletes short-lived tracks that have been gone long enough to be sure they will not continue.
// A track about to leave the mutable window is decided early. Tracks a later rule can explain as a merge or a
// split are left to that rule.
func (h *Hindsight) fixSpurious(w *hindsightWindow, claims claimSet, c *Corrections) error {
	minLife := h.cfg.SpuriousDetectionLength
	for _, id := range w.ids {
		span := w.tracks[id]
		if !w.born(span) || !w.dead(span) {
			continue
		}
		if span.last-span.first+1 >= minLife {
			continue
		}
		if w.last-span.last < minLife && !w.leaving(span) {
			continue
		}
		if h.explained(w, span) {
			continue
		}
		if !claims.claim(RuleSpurious, c, id) {
			continue
		}
		if err := h.remove(span.first, span.last, id); err != nil {
			return err
		}
		c.Spurious++
		logger.WithField("identity", id).WithField("first", span.first).WithField("last", span.last).Debug("spurious track deleted")
	}
	return nil
}

// explained reports whether the dead track disappeared into a neighbour's blob or is a split piece of one
func (h *Hindsight) explained(w *hindsightWindow, span *trackSpan) bool {
	for _, id := range w.ids {
		if id == span.id {
			continue
		}
		if _, ok := h.mergeAbsorber(w, span, w.tracks[id]); ok {
			return true
		}
	}
	_, _, ok := h.splitParent(w, span)
	return ok
}
