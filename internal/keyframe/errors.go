package keyframe

import "errors"

var (
	// ErrInvalidValue reports a malformed keyframe payload: a value without
	// exactly three finite components, a negative or non-finite time, or an
	// unknown interpolation kind.
	ErrInvalidValue = errors.New("invalid keyframe value")
	// ErrCapacityExceeded reports an insert into a full track.
	ErrCapacityExceeded = errors.New("track capacity exceeded")
	// ErrDuplicateTime reports an insert or retime within the track epsilon of
	// an existing keyframe.
	ErrDuplicateTime = errors.New("duplicate keyframe time")
	// ErrDuplicateID reports an explicit id that already exists in the track.
	ErrDuplicateID = errors.New("duplicate keyframe id")
	// ErrNotFound reports an update or removal that references an unknown id.
	ErrNotFound = errors.New("keyframe not found")
)
