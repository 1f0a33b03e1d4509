package mot

import (
	"sync"

	"github.com/pkg/errors"
)

// AnnotationSink receives frames once they can no longer be changed by hindsight
type AnnotationSink interface {
	Commit(rec FrameRecord) error
	Flush() error
}

// AnnotationStore is an append-only log of frame records.
// Only the trailing window of frames may be edited in place; older frames are committed to the sink and read-only.
type AnnotationStore struct {
	mu sync.RWMutex
	// Frame index of frames[0]
	first  int
	frames []FrameRecord
	// Number of leading frames already handed to the sink
	committed int
	window    int
	lastID    int
	sink      AnnotationSink
	finished  bool
}

// NewAnnotationStore creates an empty store whose first appended frame must be `start`.
// window is the number of frames behind the newest one that may still be edited.
func NewAnnotationStore(start, window int, sink AnnotationSink) *AnnotationStore {
	if window < 0 {
		window = 0
	}
	return &AnnotationStore{
		first:  start,
		frames: make([]FrameRecord, 0, 128),
		window: window,
		sink:   sink,
	}
}

// ResumeAnnotationStore rebuilds a store from previously written frames.
// The final frame is dropped because its write may have been interrupted; tracking resumes at Last()+1.
// Identities seen on the dropped frame still count as allocated, so they are never handed out again.
func ResumeAnnotationStore(frames []FrameRecord, window int, sink AnnotationSink) (*AnnotationStore, error) {
	if len(frames) == 0 {
		return nil, errors.New("nothing to resume from")
	}
	store := NewAnnotationStore(frames[0].Frame, window, sink)
	kept := frames[:len(frames)-1]
	for i, rec := range kept {
		if rec.Frame != frames[0].Frame+i {
			return nil, errors.Wrapf(ErrNonContiguousFrame, "resume: expected frame %d, got %d", frames[0].Frame+i, rec.Frame)
		}
		if err := rec.Validate(); err != nil {
			return nil, errors.Wrap(err, "resume")
		}
		for _, target := range rec.Targets {
			if target.ID > store.lastID {
				store.lastID = target.ID
			}
		}
		store.frames = append(store.frames, rec.Clone())
	}
	for _, target := range frames[len(frames)-1].Targets {
		if target.ID > store.lastID {
			store.lastID = target.ID
		}
	}
	// Frames of the previous run are already persisted, the sink only sees new commits
	store.committed = store.mutableFrom() - store.first
	if store.committed < 0 {
		store.committed = 0
	}
	logger.WithField("dropped_frame", frames[len(frames)-1].Frame).WithField("resume_frame", store.next()).Info("annotation store resumed")
	return store, nil
}

// First returns index of the first frame of the store
func (store *AnnotationStore) First() int {
	return store.first
}

// Last returns index of the newest appended frame, or First()-1 when empty
func (store *AnnotationStore) Last() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.last()
}

func (store *AnnotationStore) last() int {
	return store.first + len(store.frames) - 1
}

func (store *AnnotationStore) next() int {
	return store.first + len(store.frames)
}

// Len returns number of appended frames
func (store *AnnotationStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.frames)
}

// Window returns number of trailing frames that may still be edited
func (store *AnnotationStore) Window() int {
	return store.window
}

// LastID returns the most recently allocated identity
func (store *AnnotationStore) LastID() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.lastID
}

// NewID allocates a fresh identity. Identities are never reused.
func (store *AnnotationStore) NewID() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.lastID++
	return store.lastID
}

// Append adds record of the next frame
func (store *AnnotationStore) Append(rec FrameRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.finished {
		return ErrStoreFinished
	}
	if rec.Frame != store.next() {
		return errors.Wrapf(ErrNonContiguousFrame, "expected frame %d, got %d", store.next(), rec.Frame)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	for _, target := range rec.Targets {
		if target.ID > store.lastID {
			return errors.Errorf("frame %d: identity %d was never allocated", rec.Frame, target.ID)
		}
	}
	store.frames = append(store.frames, rec.Clone())
	return store.commitOutOfWindow()
}

// Frame returns copy of the record of given frame
func (store *AnnotationStore) Frame(frame int) (FrameRecord, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	if frame < store.first || frame > store.last() {
		return FrameRecord{}, errors.Wrapf(ErrFrameOutOfRange, "frame %d", frame)
	}
	return store.frames[frame-store.first].Clone(), nil
}

// Tail returns copies of up to n newest frames, oldest first
func (store *AnnotationStore) Tail(n int) []FrameRecord {
	store.mu.RLock()
	defer store.mu.RUnlock()
	if n > len(store.frames) {
		n = len(store.frames)
	}
	out := make([]FrameRecord, n)
	for i := 0; i < n; i++ {
		out[i] = store.frames[len(store.frames)-n+i].Clone()
	}
	return out
}

// Committed returns a frame that has left the hindsight window.
// It is safe to call from a reader running concurrently with the tracking loop.
func (store *AnnotationStore) Committed(frame int) (FrameRecord, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	if frame < store.first || frame >= store.first+store.committed {
		return FrameRecord{}, errors.Wrapf(ErrFrameOutOfRange, "frame %d is not committed", frame)
	}
	return store.frames[frame-store.first].Clone(), nil
}

// MutableFrom returns oldest frame index that may still be edited
func (store *AnnotationStore) MutableFrom() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.mutableFrom()
}

func (store *AnnotationStore) mutableFrom() int {
	from := store.last() - store.window
	if from < store.first {
		return store.first
	}
	return from
}

// Update edits the record of a frame inside the mutable window
func (store *AnnotationStore) Update(frame int, fn func(rec *FrameRecord) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.finished {
		return ErrStoreFinished
	}
	if frame < store.first || frame > store.last() {
		return errors.Wrapf(ErrFrameOutOfRange, "frame %d", frame)
	}
	if frame < store.mutableFrom() {
		return errors.Wrapf(ErrFrameImmutable, "frame %d (mutable from %d)", frame, store.mutableFrom())
	}
	rec := store.frames[frame-store.first].Clone()
	if err := fn(&rec); err != nil {
		return err
	}
	rec.Frame = frame
	if err := rec.Validate(); err != nil {
		return err
	}
	store.frames[frame-store.first] = rec
	return nil
}

// Finish commits every remaining frame and flushes the sink. The store rejects writes afterwards.
func (store *AnnotationStore) Finish() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.finished {
		return nil
	}
	store.finished = true
	for store.committed < len(store.frames) {
		if err := store.commitNext(); err != nil {
			return err
		}
	}
	if store.sink == nil {
		return nil
	}
	return errors.Wrap(store.sink.Flush(), "flush annotation sink")
}

// Finished reports whether Finish was called
func (store *AnnotationStore) Finished() bool {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.finished
}

func (store *AnnotationStore) commitOutOfWindow() error {
	for store.first+store.committed < store.mutableFrom() {
		if err := store.commitNext(); err != nil {
			return err
		}
	}
	return nil
}

func (store *AnnotationStore) commitNext() error {
	rec := store.frames[store.committed]
	if store.sink != nil {
		if err := store.sink.Commit(rec.Clone()); err != nil {
			return errors.Wrapf(err, "commit frame %d", rec.Frame)
		}
	}
	store.committed++
	return nil
}
