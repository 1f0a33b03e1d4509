package mot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func fillStore(t *testing.T, store *AnnotationStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		frame := store.Last() + 1
		id := store.NewID()
		rec := recordOf(frame, NewTarget(id, frame, circle(float64(i), 0, 20)))
		if err := store.Append(rec); err != nil {
			t.Fatalf("Append frame %d: %v", frame, err)
		}
	}
}

func TestAnnotationStoreAppend(t *testing.T) {
	store := NewAnnotationStore(10, 3, nil)
	if store.Last() != 9 {
		t.Errorf("Empty store: expected Last 9, got %d", store.Last())
	}
	err := store.Append(NewFrameRecord(11))
	if !errors.Is(err, ErrNonContiguousFrame) {
		t.Errorf("Expected ErrNonContiguousFrame, got %v", err)
	}
	if err := store.Append(NewFrameRecord(10)); err != nil {
		t.Fatalf("Append empty frame: %v", err)
	}

	id := store.NewID()
	dup := recordOf(11, NewTarget(id, 11, circle(0, 0, 20)), NewTarget(id, 11, circle(5, 0, 20)))
	if err := store.Append(dup); !errors.Is(err, ErrDuplicateIdentity) {
		t.Errorf("Expected ErrDuplicateIdentity, got %v", err)
	}
	unknown := recordOf(11, NewTarget(id+1, 11, circle(0, 0, 20)))
	if err := store.Append(unknown); err == nil {
		t.Errorf("Expected error for identity that was never allocated")
	}
	if store.Len() != 1 {
		t.Errorf("Rejected frames must not be stored, got %d frames", store.Len())
	}
}

func TestAnnotationStoreIdentitiesAreMonotonic(t *testing.T) {
	store := NewAnnotationStore(0, 2, nil)
	prev := 0
	for i := 0; i < 10; i++ {
		id := store.NewID()
		if id <= prev {
			t.Fatalf("Identity %d allocated after %d", id, prev)
		}
		prev = id
	}
	if store.LastID() != prev {
		t.Errorf("Expected LastID %d, got %d", prev, store.LastID())
	}
}

func TestAnnotationStoreBoundedMutation(t *testing.T) {
	sink := &recordingSink{}
	store := NewAnnotationStore(0, 2, sink)
	fillStore(t, store, 5)

	if store.MutableFrom() != 2 {
		t.Errorf("Expected MutableFrom 2, got %d", store.MutableFrom())
	}
	err := store.Update(1, func(rec *FrameRecord) error {
		rec.Targets = rec.Targets[:0]
		return nil
	})
	if !errors.Is(err, ErrFrameImmutable) {
		t.Errorf("Expected ErrFrameImmutable, got %v", err)
	}
	err = store.Update(2, func(rec *FrameRecord) error {
		rec.Targets = rec.Targets[:0]
		return nil
	})
	if err != nil {
		t.Errorf("Update inside window: %v", err)
	}
	rec, _ := store.Frame(2)
	if rec.Len() != 0 {
		t.Errorf("Update was not applied")
	}

	if len(sink.committed) != 2 {
		t.Fatalf("Expected 2 committed frames, got %d", len(sink.committed))
	}
	for i, committed := range sink.committed {
		if committed.Frame != i {
			t.Errorf("Committed out of order: position %d holds frame %d", i, committed.Frame)
		}
	}
	if _, err := store.Committed(1); err != nil {
		t.Errorf("Committed(1): %v", err)
	}
	if _, err := store.Committed(2); !errors.Is(err, ErrFrameOutOfRange) {
		t.Errorf("Frame 2 is not committed yet, got %v", err)
	}
}

func TestAnnotationStoreUpdateValidates(t *testing.T) {
	store := NewAnnotationStore(0, 5, nil)
	fillStore(t, store, 2)
	err := store.Update(1, func(rec *FrameRecord) error {
		rec.Targets = append(rec.Targets, rec.Targets[0])
		return nil
	})
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Errorf("Expected ErrDuplicateIdentity, got %v", err)
	}
	rec, _ := store.Frame(1)
	if rec.Len() != 1 {
		t.Errorf("Failed update must leave frame untouched, got %d targets", rec.Len())
	}
}

func TestAnnotationStoreFrameIsCopy(t *testing.T) {
	store := NewAnnotationStore(0, 5, nil)
	fillStore(t, store, 1)
	rec, _ := store.Frame(0)
	rec.Targets[0].Center.X = 1000
	again, _ := store.Frame(0)
	if again.Targets[0].Center.X == 1000 {
		t.Errorf("Frame must return a copy")
	}
}

func TestAnnotationStoreFinish(t *testing.T) {
	sink := &recordingSink{}
	store := NewAnnotationStore(0, 3, sink)
	fillStore(t, store, 5)
	if err := store.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(sink.committed) != 5 {
		t.Errorf("Expected all 5 frames committed, got %d", len(sink.committed))
	}
	if sink.flushed != 1 {
		t.Errorf("Expected one flush, got %d", sink.flushed)
	}
	if err := store.Append(NewFrameRecord(5)); !errors.Is(err, ErrStoreFinished) {
		t.Errorf("Expected ErrStoreFinished, got %v", err)
	}
	if err := store.Finish(); err != nil {
		t.Errorf("Second Finish must be a no-op, got %v", err)
	}
	if sink.flushed != 1 {
		t.Errorf("Second Finish flushed again")
	}
}

func TestResumeAnnotationStore(t *testing.T) {
	original := NewAnnotationStore(0, 3, nil)
	fillStore(t, original, 6)
	frames := original.Tail(6)

	resumed, err := ResumeAnnotationStore(frames, 3, nil)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Last() != 4 {
		t.Errorf("Expected last frame 4 after cropping, got %d", resumed.Last())
	}
	// Identity 6 lives only on the dropped frame but was already allocated
	if resumed.LastID() != 6 {
		t.Errorf("Expected LastID 6, got %d", resumed.LastID())
	}
	if diff := cmp.Diff(frames[:5], resumed.Tail(5)); diff != "" {
		t.Errorf("Resumed frames differ (-want +got):\n%s", diff)
	}
	if id := resumed.NewID(); id != 7 {
		t.Errorf("Expected next identity 7, got %d", id)
	}

	broken := append([]FrameRecord{}, frames...)
	broken[2].Frame = 7
	if _, err := ResumeAnnotationStore(broken, 3, nil); !errors.Is(err, ErrNonContiguousFrame) {
		t.Errorf("Expected ErrNonContiguousFrame, got %v", err)
	}
	if _, err := ResumeAnnotationStore(nil, 3, nil); err == nil {
		t.Errorf("Expected error for empty resume")
	}
}
