package main

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/localbuild/runner/cas"
)

// runMaterialize implements the hidden "__materialize" subcommand that
// sandboxer.BwrapSandboxer re-execs this binary as, inside a bwrap namespace,
// to realize a digest that was persisted into the shared store ahead of the
// call (the helper cannot see the caller process's in-memory trie).
func runMaterialize(stderr io.Writer, args []string) int {
	flags := flag.NewFlagSet(materializeSubcommand, flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	flagStore := flags.String("store", "", "Store directory")
	flagDigest := flags.String("digest", "", "Tree digest fingerprint")
	flagSize := flags.Int64("size", 0, "Tree digest size")
	flagDest := flags.String("dest", "", "Destination directory")
	flagMutable := flags.StringArray("mutable", nil, "Mutable relative path (repeatable)")

	if err := flags.Parse(args); err != nil {
		fprintError(stderr, err)

		return 1
	}

	if *flagStore == "" || *flagDigest == "" || *flagDest == "" {
		fprintError(stderr, fmt.Errorf("__materialize: --store, --digest, and --dest are required"))

		return 1
	}

	store, err := cas.NewStore(*flagStore)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	digest := cas.Digest{Fingerprint: *flagDigest, SizeBytes: *flagSize}

	if err := store.MaterializeDirectory(*flagDest, digest, *flagMutable, cas.Writable); err != nil {
		fprintError(stderr, err)

		return 1
	}

	return 0
}
