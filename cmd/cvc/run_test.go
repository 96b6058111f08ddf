package main

import (
	"bytes"
	"strings"
	"testing"
)

func runCmd(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = Run(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestInitThenStatus(t *testing.T) {
	repo := t.TempDir()
	if _, stderr, code := runCmd(t, "init", "--repo", repo); code != 0 {
		t.Fatalf("init failed: code=%d stderr=%s", code, stderr)
	}
	out, stderr, code := runCmd(t, "status", "--repo", repo)
	if code != 0 {
		t.Fatalf("status failed: code=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(out, "branch:  main") {
		t.Fatalf("status output missing branch line: %q", out)
	}
}

func TestInitTwiceFails(t *testing.T) {
	repo := t.TempDir()
	if _, _, code := runCmd(t, "init", "--repo", repo); code != 0 {
		t.Fatalf("first init should succeed")
	}
	if _, stderr, code := runCmd(t, "init", "--repo", repo); code == 0 {
		t.Fatalf("second init should fail, stderr=%s", stderr)
	}
}

func TestPushMessageCommitAndLog(t *testing.T) {
	repo := t.TempDir()
	runCmd(t, "init", "--repo", repo)
	if _, stderr, code := runCmd(t, "push-message", "--repo", repo, "--role", "user", "--content", "hello world"); code != 0 {
		t.Fatalf("push-message failed: stderr=%s", stderr)
	}
	if _, stderr, code := runCmd(t, "commit", "--repo", repo, "--message", "first checkpoint"); code != 0 {
		t.Fatalf("commit failed: stderr=%s", stderr)
	}
	out, stderr, code := runCmd(t, "log", "--repo", repo)
	if code != 0 {
		t.Fatalf("log failed: stderr=%s", stderr)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %v, want 2 (genesis + checkpoint)", lines)
	}
	if !strings.Contains(lines[0], "first checkpoint") {
		t.Fatalf("newest log line = %q, want it to contain the commit subject", lines[0])
	}
}

func TestBranchSwitchAndMerge(t *testing.T) {
	repo := t.TempDir()
	runCmd(t, "init", "--repo", repo)
	runCmd(t, "push-message", "--repo", repo, "--content", "base message")
	runCmd(t, "commit", "--repo", repo, "--message", "base")
	if _, stderr, code := runCmd(t, "branch", "--repo", repo, "feature"); code != 0 {
		t.Fatalf("branch failed: stderr=%s", stderr)
	}
	if _, stderr, code := runCmd(t, "switch", "--repo", repo, "feature"); code != 0 {
		t.Fatalf("switch failed: stderr=%s", stderr)
	}
	runCmd(t, "push-message", "--repo", repo, "--content", "feature message")
	runCmd(t, "commit", "--repo", repo, "--message", "feature work")
	if _, stderr, code := runCmd(t, "switch", "--repo", repo, "main"); code != 0 {
		t.Fatalf("switch back failed: stderr=%s", stderr)
	}
	out, stderr, code := runCmd(t, "merge", "--repo", repo, "feature")
	if code != 0 {
		t.Fatalf("merge failed: stderr=%s", stderr)
	}
	if strings.TrimSpace(out) == "" {
		t.Fatal("merge should print the new commit hash")
	}
}

func TestUnknownCommandReturnsUsageExitCode(t *testing.T) {
	_, stderr, code := runCmd(t, "frobnicate")
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr, "unknown command") {
		t.Fatalf("stderr = %q, want it to mention unknown command", stderr)
	}
}

func TestNoArgsPrintsUsage(t *testing.T) {
	out, _, code := runCmd(t)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(out, "Usage: cvc") {
		t.Fatalf("usage output missing: %q", out)
	}
}
