package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CheckAssembler reports whether the configured assembler binary can be
// launched. Bare names resolve through PATH and the resolved location lands
// in Command, so status output shows the binary workers will actually run.
func CheckAssembler(command string) Status {
	status := Status{
		Name:        "Assembler",
		Description: "Renders assembly jobs claimed by the worker pool",
	}

	command = strings.TrimSpace(command)
	if command == "" {
		status.Detail = "command not configured"
		return status
	}
	status.Command = command

	// A command containing a path separator is tried directly, matching
	// exec.LookPath's rule, so a misconfigured absolute path reports
	// whether the file is missing or merely not executable.
	if strings.ContainsRune(command, os.PathSeparator) {
		info, err := os.Stat(command)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", command)
			return status
		}
		if !isExecutable(info) {
			status.Detail = fmt.Sprintf("%q is not executable", command)
			return status
		}
		status.Available = true
		return status
	}

	resolved, err := exec.LookPath(command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found in PATH", command)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
