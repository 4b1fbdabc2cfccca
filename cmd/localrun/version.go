package main

// version, commit, and date are overridden at build time via -ldflags.
var (
	version = "source"
	commit  = "none"
	date    = "unknown"
)

func formatVersion() string {
	if version == "source" {
		return "localrun (built from source, " + date + ")"
	}

	return "localrun " + version + " (" + commit + ", " + date + ")"
}
