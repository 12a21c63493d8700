package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const maxShellOutput = 50000

// ShellTool runs a command through the platform shell and returns stdout,
// stderr, and the exit code verbatim. No retries.
type ShellTool struct{}

func NewShellTool() *ShellTool { return &ShellTool{} }

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	shell, _ := shellCommand("")
	return fmt.Sprintf("Execute a shell command (%s). Returns stdout, stderr, and the exit code.", shell)
}

func (t *ShellTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Command to execute"},
			"timeout": {"type": "integer", "description": "Timeout in seconds (default: 60)"}
		},
		"required": ["command"]
	}`)
}

type shellInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

func (t *ShellTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in shellInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &ToolResult{Content: fmt.Sprintf("Failed to parse input: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(in.Command) == "" {
		return &ToolResult{Content: "No command provided", IsError: true}, nil
	}

	timeout := 60 * time.Second
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := shellCommand(in.Command)
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if ctx.Err() == context.DeadlineExceeded {
			return &ToolResult{
				Content: fmt.Sprintf("Command timed out after %s", timeout),
				IsError: true,
			}, nil
		} else {
			return &ToolResult{Content: fmt.Sprintf("Failed to run command: %v", runErr), IsError: true}, nil
		}
	}

	var sb strings.Builder
	out := truncateOutput(stdout.String())
	if out != "" {
		sb.WriteString(out)
	}
	if errOut := truncateOutput(stderr.String()); errOut != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("STDERR:\n")
		sb.WriteString(errOut)
	}
	if sb.Len() == 0 {
		sb.WriteString("(no output)")
	}
	fmt.Fprintf(&sb, "\nexit code: %d", exitCode)

	return &ToolResult{Content: sb.String(), IsError: exitCode != 0}, nil
}

func truncateOutput(s string) string {
	if len(s) <= maxShellOutput {
		return strings.TrimRight(s, "\n")
	}
	return s[:maxShellOutput] + "\n... [output truncated]"
}
