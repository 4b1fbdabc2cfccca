package runner

import "strings"

const chrootPlaceholder = "{chroot}"

// substituteChroot replaces every literal occurrence of "{chroot}" in each
// env value and each argv element with sandboxPath. Keys and
// working_directory are never touched.
func substituteChroot(env map[string]string, argv []string, sandboxPath string) (map[string]string, []string) {
	outEnv := make(map[string]string, len(env))
	for k, v := range env {
		outEnv[k] = strings.ReplaceAll(v, chrootPlaceholder, sandboxPath)
	}

	outArgv := make([]string, len(argv))
	for i, a := range argv {
		outArgv[i] = strings.ReplaceAll(a, chrootPlaceholder, sandboxPath)
	}

	return outEnv, outArgv
}
