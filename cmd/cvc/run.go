package main

import (
	"fmt"
	"io"
	"strings"
)

// Run dispatches args to the matching subcommand and returns a process
// exit code. Grounded on suju297-mem's internal/app.Run: a plain
// switch over args[0], each branch delegating to a runXxx(args[1:], out,
// errOut) int function rather than a kong/cobra command tree, which this
// repo's small, fixed command surface has no need for.
func Run(args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		writeUsage(out)
		return 2
	}
	cmd := strings.ToLower(args[0])
	rest := args[1:]
	switch cmd {
	case "init":
		return runInit(rest, out, errOut)
	case "status":
		return runStatus(rest, out, errOut)
	case "push-message":
		return runPushMessage(rest, out, errOut)
	case "commit":
		return runCommit(rest, out, errOut)
	case "branch":
		return runBranch(rest, out, errOut)
	case "switch":
		return runSwitch(rest, out, errOut)
	case "restore":
		return runRestore(rest, out, errOut)
	case "merge":
		return runMerge(rest, out, errOut)
	case "log":
		return runLog(rest, out, errOut)
	case "gc":
		return runGC(rest, out, errOut)
	case "version", "--version", "-v":
		fmt.Fprintln(out, versionString())
		return 0
	case "help", "-h", "--help":
		writeUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "cvc: unknown command %q\n", cmd)
		writeUsage(errOut)
		return 2
	}
}

func writeUsage(w io.Writer) {
	fmt.Fprint(w, `cvc - cognitive version control

Usage: cvc <command> [flags]

Commands:
  init                          create the genesis commit and default branch
  status                        show the active branch, head and window state
  push-message                  append a message to the context window
  commit                        snapshot the window as a new commit
  branch <name>                 create a branch at the active branch's head
  switch <name>                 change the active branch
  restore <ref>                 roll forward to a prior commit's state
  merge <branch>                three-way merge a branch into the active one
  log                           show commit history, newest first
  gc                            remove blobs no longer referenced by any commit
  version                       print version information

Global flags (accepted by every command):
  --repo <path>                 repository root (default ".")
  --agent-id <id>                agent identifier recorded on new commits
`)
}
