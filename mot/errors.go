package mot

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrFrameImmutable is returned when a frame older than the hindsight window is edited
	ErrFrameImmutable = errors.New("frame is outside of the mutable window")
	// ErrFrameOutOfRange is returned when a frame index was never appended
	ErrFrameOutOfRange = errors.New("frame index out of range")
	// ErrNonContiguousFrame is returned when a frame is appended out of order
	ErrNonContiguousFrame = errors.New("frame index is not contiguous")
	// ErrDuplicateIdentity is returned when two targets of one frame share identity
	ErrDuplicateIdentity = errors.New("duplicate identity in frame")
	// ErrStoreFinished is returned when a finished annotation store is written to
	ErrStoreFinished = errors.New("annotation store is finished")
	// ErrLoopFinished is returned when a finished tracking loop is run again
	ErrLoopFinished = errors.New("tracking loop is finished")
)

// InputError reports a malformed frame, mask or labeling. It is fatal to a tracking run.
type InputError struct {
	Frame  int
	Reason string
}

func (e *InputError) Error() string {
	if e.Frame < 0 {
		return fmt.Sprintf("input error: %s", e.Reason)
	}
	return fmt.Sprintf("input error at frame %d: %s", e.Frame, e.Reason)
}

func newInputError(frame int, format string, args ...interface{}) *InputError {
	return &InputError{
		Frame:  frame,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsInputError reports whether the cause of err is an InputError
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(*InputError)
	return ok
}
