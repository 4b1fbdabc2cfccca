// Package sandboxer defines the optional out-of-process materializer that
// the workdir materializer delegates to when configured: a helper that can
// realize a digest under a different uid or mount namespace than the calling
// process, and therefore cannot share in-memory trie state with it.
package sandboxer

import "github.com/localbuild/runner/cas"

// Sandboxer materializes a previously-persisted digest into workdir, scoped
// under base. Because the helper runs out-of-process (and potentially in a
// different mount namespace), it is handed a digest that has already been
// recorded in the shared store rather than an in-memory Trie.
type Sandboxer interface {
	MaterializeDirectory(workdir, base string, persisted cas.Digest, mutablePaths []string) error
}
