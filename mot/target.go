package mot

import (
	"sort"

	"github.com/pkg/errors"
)

// Target is the state of one tracked individual at one frame
type Target struct {
	ID    int `yaml:"id"`
	Frame int `yaml:"frame"`
	Ellipse `yaml:",inline"`
}

// NewTarget creates target with given identity from the observation
func NewTarget(id, frame int, obs Ellipse) Target {
	return Target{
		ID:      id,
		Frame:   frame,
		Ellipse: obs.Copy(),
	}
}

// FrameRecord holds every target assigned at one frame
type FrameRecord struct {
	Frame   int      `yaml:"frame"`
	Targets []Target `yaml:"targets"`
}

// NewFrameRecord creates empty frame record
func NewFrameRecord(frame int) FrameRecord {
	return FrameRecord{
		Frame:   frame,
		Targets: make([]Target, 0),
	}
}

// Len returns number of targets
func (rec FrameRecord) Len() int {
	return len(rec.Targets)
}

// Find returns target with given identity
func (rec FrameRecord) Find(id int) (Target, bool) {
	idx := rec.indexOf(id)
	if idx < 0 {
		return Target{}, false
	}
	return rec.Targets[idx], true
}

// Has reports whether the identity is present in the frame
func (rec FrameRecord) Has(id int) bool {
	return rec.indexOf(id) >= 0
}

func (rec FrameRecord) indexOf(id int) int {
	for i := range rec.Targets {
		if rec.Targets[i].ID == id {
			return i
		}
	}
	return -1
}

// IDs returns sorted identities present in the frame
func (rec FrameRecord) IDs() []int {
	ids := make([]int, len(rec.Targets))
	for i := range rec.Targets {
		ids[i] = rec.Targets[i].ID
	}
	sort.Ints(ids)
	return ids
}

// Clone returns deep copy of the frame record
func (rec FrameRecord) Clone() FrameRecord {
	cp := FrameRecord{
		Frame:   rec.Frame,
		Targets: make([]Target, len(rec.Targets)),
	}
	for i, target := range rec.Targets {
		cp.Targets[i] = target
		cp.Targets[i].Ellipse = target.Ellipse.Copy()
	}
	return cp
}

// Validate checks that no identity appears twice and every target carries the frame index
func (rec FrameRecord) Validate() error {
	seen := make(map[int]struct{}, len(rec.Targets))
	for _, target := range rec.Targets {
		if target.ID <= 0 {
			return errors.Errorf("frame %d: invalid identity %d", rec.Frame, target.ID)
		}
		if target.Frame != rec.Frame {
			return errors.Errorf("frame %d: target %d is stamped with frame %d", rec.Frame, target.ID, target.Frame)
		}
		if _, ok := seen[target.ID]; ok {
			return errors.Wrapf(ErrDuplicateIdentity, "frame %d: identity %d", rec.Frame, target.ID)
		}
		seen[target.ID] = struct{}{}
	}
	return nil
}

// put replaces target with the same identity or appends a new one
func (rec *FrameRecord) put(target Target) {
	target.Frame = rec.Frame
	if idx := rec.indexOf(target.ID); idx >= 0 {
		rec.Targets[idx] = target
		return
	}
	rec.Targets = append(rec.Targets, target)
}

// remove drops target with given identity; reports whether it was present
func (rec *FrameRecord) remove(id int) bool {
	idx := rec.indexOf(id)
	if idx < 0 {
		return false
	}
	rec.Targets = append(rec.Targets[:idx], rec.Targets[idx+1:]...)
	return true
}

// relabel changes identity of a target; caller guarantees newID is absent
func (rec *FrameRecord) relabel(oldID, newID int) bool {
	idx := rec.indexOf(oldID)
	if idx < 0 {
		return false
	}
	rec.Targets[idx].ID = newID
	return true
}
