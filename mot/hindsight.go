package mot

import (
	"sort"

	"github.com/pkg/errors"
)

// Corrections counts hindsight corrections by rule
type Corrections struct {
	Lost     int `yaml:"lost"`
	Spurious int `yaml:"spurious"`
	Merged   int `yaml:"merged"`
	Split    int `yaml:"split"`
	// Candidates skipped because an earlier rule had already claimed one of their identities
	Conflicts int `yaml:"conflicts"`
}

// Total returns number of applied corrections
func (c Corrections) Total() int {
	return c.Lost + c.Spurious + c.Merged + c.Split
}

// Add sums two summaries
func (c Corrections) Add(other Corrections) Corrections {
	return Corrections{
		Lost:      c.Lost + other.Lost,
		Spurious:  c.Spurious + other.Spurious,
		Merged:    c.Merged + other.Merged,
		Split:     c.Split + other.Split,
		Conflicts: c.Conflicts + other.Conflicts,
	}
}

// Hindsight rewrites identity decisions inside the trailing window of the annotation store
type Hindsight struct {
	store *AnnotationStore
	cfg   Config
}

// NewHindsight creates hindsight engine over the store
func NewHindsight(store *AnnotationStore, cfg Config) *Hindsight {
	return &Hindsight{
		store: store,
		cfg:   cfg,
	}
}

// hindsightPass is one correction rule
type hindsightPass struct {
	rule    string
	enabled bool
	run     func(w *hindsightWindow, claims claimSet, c *Corrections) error
}

// FixErrors applies lost, spurious, merged and split corrections in that order.
// Rounds repeat until nothing changes, so calling it again right away is a no-op.
// Heuristic failures are never errors; only store faults are returned.
func (h *Hindsight) FixErrors() (Corrections, error) {
	total := Corrections{}
	// Every applied correction retires one identity of the window, so rounds terminate
	for {
		round, err := h.fixRound()
		if err != nil {
			return total, err
		}
		total = total.Add(round)
		if round.Total() == 0 {
			break
		}
	}
	if total.Total() > 0 || total.Conflicts > 0 {
		logger.WithField("frame", h.store.Last()).
			WithField(RuleLost, total.Lost).
			WithField(RuleSpurious, total.Spurious).
			WithField(RuleMerged, total.Merged).
			WithField(RuleSplit, total.Split).
			WithField("conflicts", total.Conflicts).
			Debug("hindsight corrections applied")
	}
	return total, nil
}

func (h *Hindsight) fixRound() (Corrections, error) {
	c := Corrections{}
	claims := make(claimSet)
	passes := []hindsightPass{
		{rule: RuleLost, enabled: h.cfg.LostDetectionLength > 0, run: h.fixLost},
		{rule: RuleSpurious, enabled: h.cfg.SpuriousDetectionLength > 0, run: h.fixSpurious},
		{rule: RuleMerged, enabled: h.cfg.MergedDetectionLength > 0, run: h.fixMerged},
		{rule: RuleSplit, enabled: h.cfg.SplitDetectionLength > 0, run: h.fixSplit},
	}
	for _, pass := range passes {
		if !pass.enabled {
			continue
		}
		w, err := h.load()
		if err != nil {
			return c, err
		}
		if w == nil {
			return c, nil
		}
		if err := pass.run(w, claims, &c); err != nil {
			return c, errors.Wrapf(err, "%s correction", pass.rule)
		}
	}
	return c, nil
}

// claimSet maps identity to the rule that already changed it during the current round
type claimSet map[int]string

// claim reserves identities for a rule. Identities taken by an earlier rule make a conflict;
// identities taken by the same rule are skipped silently and retried on the next round.
func (claims claimSet) claim(rule string, c *Corrections, ids ...int) bool {
	for _, id := range ids {
		owner, ok := claims[id]
		if !ok {
			continue
		}
		if owner != rule {
			c.Conflicts++
			logger.WithField("rule", rule).WithField("identity", id).WithField("claimed_by", owner).Warn("hindsight correction conflict")
		}
		return false
	}
	for _, id := range ids {
		claims[id] = rule
	}
	return true
}

// trackSpan is the part of one track visible in the window
type trackSpan struct {
	id     int
	first  int
	last   int
	shapes map[int]Ellipse
}

func (span *trackSpan) at(frame int) (Ellipse, bool) {
	shape, ok := span.shapes[frame]
	return shape, ok
}

// covers reports whether the track is present on every frame of [from, to]
func (span *trackSpan) covers(from, to int) bool {
	if from < span.first || to > span.last {
		return false
	}
	for f := from; f <= to; f++ {
		if _, ok := span.shapes[f]; !ok {
			return false
		}
	}
	return true
}

// hindsightWindow is a snapshot of the frames hindsight may read: [lo-1, last]
type hindsightWindow struct {
	// Oldest frame that may be rewritten
	lo int
	// Oldest frame that will still be rewritable once the next frame arrives
	nextLo int
	// Newest frame
	last   int
	tracks map[int]*trackSpan
	// Identities in ascending order
	ids []int
}

// born reports whether the track first appears inside the mutable part of the window
func (w *hindsightWindow) born(span *trackSpan) bool {
	return span.first >= w.lo
}

// leaving reports whether the track's first frame becomes immutable when the next frame arrives.
// Rules that wait before deciding must decide now or never.
func (w *hindsightWindow) leaving(span *trackSpan) bool {
	return span.first < w.nextLo
}

// dead reports whether the track is missing from the newest frame
func (w *hindsightWindow) dead(span *trackSpan) bool {
	return span.last < w.last
}

func (h *Hindsight) load() (*hindsightWindow, error) {
	last := h.store.Last()
	if last < h.store.First() {
		return nil, nil
	}
	lo := maxInt(last-h.cfg.MaxLookback(), h.store.MutableFrom())
	from := maxInt(lo-1, h.store.First())
	nextLo := maxInt(last+1-h.cfg.MaxLookback(), maxInt(last+1-h.store.Window(), h.store.First()))
	w := &hindsightWindow{
		lo:     lo,
		nextLo: nextLo,
		last:   last,
		tracks: make(map[int]*trackSpan),
	}
	for f := from; f <= last; f++ {
		rec, err := h.store.Frame(f)
		if err != nil {
			return nil, err
		}
		for _, target := range rec.Targets {
			span, ok := w.tracks[target.ID]
			if !ok {
				span = &trackSpan{
					id:     target.ID,
					first:  f,
					shapes: make(map[int]Ellipse),
				}
				w.tracks[target.ID] = span
				w.ids = append(w.ids, target.ID)
			}
			span.last = f
			span.shapes[f] = target.Ellipse
		}
	}
	sort.Ints(w.ids)
	return w, nil
}

// put replaces or inserts one target of a frame
func (h *Hindsight) put(frame, id int, shape Ellipse) error {
	return h.store.Update(frame, func(rec *FrameRecord) error {
		rec.put(NewTarget(id, frame, shape))
		return nil
	})
}

func (h *Hindsight) relabel(from, to, oldID, newID int) error {
	for f := from; f <= to; f++ {
		err := h.store.Update(f, func(rec *FrameRecord) error {
			if !rec.Has(oldID) {
				return nil
			}
			if rec.Has(newID) {
				return errors.Wrapf(ErrDuplicateIdentity, "relabel %d -> %d at frame %d", oldID, newID, f)
			}
			rec.relabel(oldID, newID)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Hindsight) remove(from, to, id int) error {
	for f := from; f <= to; f++ {
		err := h.store.Update(f, func(rec *FrameRecord) error {
			rec.remove(id)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
