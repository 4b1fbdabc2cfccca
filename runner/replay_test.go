package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReplayScriptProducesExecutableBashQuotedScript(t *testing.T) {
	sandboxPath := t.TempDir()

	err := WriteReplayScript(sandboxPath, "", map[string]string{"X": "it's a test"}, []string{"/bin/echo", "hello world"})
	require.NoError(t, err)

	path := filepath.Join(sandboxPath, replayScriptName)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	s := string(contents)
	require.Contains(t, s, "#!/usr/bin/env bash")
	require.Contains(t, s, "cd '"+sandboxPath+"'")
	require.Contains(t, s, `X='it'\''s a test'`)
	require.Contains(t, s, "'hello world'")
}

func TestWriteReplayScriptFailsIfAlreadyExists(t *testing.T) {
	sandboxPath := t.TempDir()

	require.NoError(t, WriteReplayScript(sandboxPath, "", nil, []string{"/bin/true"}))
	require.Error(t, WriteReplayScript(sandboxPath, "", nil, []string{"/bin/true"}))
}

func TestShellQuoteEscapesEmbeddedSingleQuotes(t *testing.T) {
	require.Equal(t, `'it'\''s'`, shellQuote("it's"))
	require.Equal(t, `'plain'`, shellQuote("plain"))
}
