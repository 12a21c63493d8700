//go:build windows

package tools

// shellCommand returns the platform shell invocation for a command string.
func shellCommand(command string) (string, []string) {
	if command == "" {
		return "powershell", nil
	}
	return "powershell", []string{"-NoProfile", "-Command", command}
}
