package cas

import "errors"

// ErrCollision is returned when two entries being merged into the same
// directory tree disagree, or when a directory is also targeted as a file.
var ErrCollision = errors.New("cas: entry collision")

// ErrNotFound is returned when a digest has no corresponding content in the
// store.
var ErrNotFound = errors.New("cas: digest not found")
