//go:build !windows

package tools

// shellCommand returns the platform shell invocation for a command string.
func shellCommand(command string) (string, []string) {
	if command == "" {
		return "/bin/sh", nil
	}
	return "/bin/sh", []string{"-c", command}
}
