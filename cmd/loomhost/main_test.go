package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

func TestRunCLINoArgsPrintsUsage(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI(nil)
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Fatalf("expected usage output, got: %s", stdout)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"frobnicate"})
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Fatalf("expected unknown command message, got: %s", stderr)
	}
}

func TestRunCLIHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"help"})
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	for _, cmd := range []string{"start", "send", "status", "watch", "version"} {
		if !strings.Contains(stdout, cmd) {
			t.Fatalf("usage missing %q:\n%s", cmd, stdout)
		}
	}
}

func TestRunVersionPlain(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abcdef1234567890", "2026-01-01T00:00:00Z")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version"})
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout, "loomhost 1.2.3") {
		t.Fatalf("expected version line, got: %s", stdout)
	}
	if !strings.Contains(stdout, "commit: abcdef123456") {
		t.Fatalf("expected shortened commit, got: %s", stdout)
	}
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "deadbeef", "2026-01-01T00:00:00Z")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version", "--json"})
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("version --json output is not JSON: %v\n%s", err, stdout)
	}
	if info.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %q", info.Version)
	}
	if info.Commit != "deadbeef" {
		t.Fatalf("expected commit deadbeef, got %q", info.Commit)
	}
}

func TestRunSendRequiresCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runSend(nil)
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "--command is required") {
		t.Fatalf("expected missing command error, got: %s", stderr)
	}
}

func TestRunSendRejectsBadPayload(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runSend([]string{"--command", "host.ping", "--payload", "{not json"})
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "must be a JSON object") {
		t.Fatalf("expected payload error, got: %s", stderr)
	}
}

func TestRunStartRejectsMissingConfigFile(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runStart([]string{"--config", "/nonexistent/loomhost.yaml"})
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "Failed to load config") {
		t.Fatalf("expected config load error, got: %s", stderr)
	}
}

func TestShortenCommit(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcdef1234567890", "abcdef123456"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := shortenCommit(tt.in); got != tt.want {
			t.Fatalf("shortenCommit(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
