package runner

import "github.com/localbuild/runner/cas"

// Digest is the content-addressed identifier type used throughout the runner
// package; it is the same type the store operates on.
type Digest = cas.Digest
