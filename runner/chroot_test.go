package runner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubstituteChrootReplacesArgvAndEnvValuesOnly(t *testing.T) {
	env := map[string]string{
		"X":        "{chroot}/marker",
		"UNCHANGED": "plain",
	}
	argv := []string{"/bin/sh", "-c", "echo {chroot}/out"}

	outEnv, outArgv := substituteChroot(env, argv, "/sandboxes/abc123")

	require.Equal(t, "/sandboxes/abc123/marker", outEnv["X"])
	require.Equal(t, "plain", outEnv["UNCHANGED"])
	require.Equal(t, []string{"/bin/sh", "-c", "echo /sandboxes/abc123/out"}, outArgv)
}

func TestSubstituteChrootLeavesKeysAlone(t *testing.T) {
	env := map[string]string{"{chroot}": "value"}

	outEnv, _ := substituteChroot(env, nil, "/sandbox")

	_, stillLiteral := outEnv["{chroot}"]
	require.True(t, stillLiteral, "keys must never be substituted")
}
