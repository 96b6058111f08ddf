package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/model"
)

func runInit(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	if err := e.Init(); err != nil {
		return exitCodeFor(err, errOut)
	}
	fmt.Fprintf(out, "initialized cvc repository at %s\n", *repo)
	return 0
}

func runStatus(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	st, err := e.Status()
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	fmt.Fprintf(out, "branch:  %s\n", st.ActiveBranch)
	fmt.Fprintf(out, "head:    %s\n", st.HeadHash)
	fmt.Fprintf(out, "window:  %d message(s)\n", st.WindowSize)
	dirty := "clean"
	if st.Dirty {
		dirty = fmt.Sprintf("dirty, auto-commit in %d turn(s)", st.PendingAutoCommitIn)
	}
	fmt.Fprintf(out, "state:   %s\n", dirty)
	return 0
}

func runPushMessage(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("push-message", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	role := fs.String("role", string(model.RoleUser), "message role: system|user|assistant|tool")
	content := fs.String("content", "", "message content; reads stdin if empty")
	name := fs.String("name", "", "optional speaker name")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	body := *content
	if body == "" {
		if raw, err := io.ReadAll(os.Stdin); err == nil {
			body = strings.TrimRight(string(raw), "\n")
		}
	}
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	msg := model.Message{Role: model.Role(*role), Content: body, Name: *name}
	if err := e.PushMessage(msg); err != nil {
		return exitCodeFor(err, errOut)
	}
	return 0
}

func runCommit(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	message := fs.String("message", "", "commit message")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	commit, err := e.Commit(model.CommitCheckpoint, *message, nil)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	fmt.Fprintln(out, commit.CommitHash.String())
	return 0
}

func runBranch(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("branch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	if len(rest) == 0 {
		branches, err := e.ListBranches()
		if err != nil {
			return exitCodeFor(err, errOut)
		}
		for _, b := range branches {
			marker := "  "
			if b.Name == e.ActiveBranch() {
				marker = "* "
			}
			fmt.Fprintf(out, "%s%s\n", marker, b.Name)
		}
		return 0
	}
	if _, err := e.Branch(rest[0]); err != nil {
		return exitCodeFor(err, errOut)
	}
	return 0
}

func runSwitch(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("switch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(errOut, "usage: cvc switch <branch>")
		return 2
	}
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	if err := e.Switch(rest[0]); err != nil {
		return exitCodeFor(err, errOut)
	}
	return 0
}

func runRestore(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(errOut, "usage: cvc restore <commit-hash-or-prefix>")
		return 2
	}
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	commit, err := e.Restore(rest[0])
	if err != nil {
		if ambiguous, ok := asAmbiguous(err); ok {
			fmt.Fprintf(errOut, "cvc: %q is ambiguous, matches:\n", rest[0])
			for _, m := range ambiguous.Matches {
				fmt.Fprintf(errOut, "  %s\n", m)
			}
			return 1
		}
		return exitCodeFor(err, errOut)
	}
	fmt.Fprintln(out, commit.CommitHash.String())
	return 0
}

func asAmbiguous(err error) (*cvcerr.AmbiguousError, bool) {
	a, ok := err.(*cvcerr.AmbiguousError)
	return a, ok
}

func runMerge(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	synth := fs.String("synthesize", "", "extra reasoning-trace note to append to the merge")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(errOut, "usage: cvc merge <branch>")
		return 2
	}
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	commit, err := e.Merge(rest[0], *synth)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	fmt.Fprintln(out, commit.CommitHash.String())
	return 0
}

func runLog(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	limit := fs.Int("limit", 0, "maximum number of commits to show (0 = unbounded)")
	all := fs.Bool("all", false, "show the full DAG timeline (all parents) instead of first-parent only")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	var commits []model.CognitiveCommit
	if *all {
		commits, err = e.Timeline(*limit)
	} else {
		commits, err = e.Log(*limit)
	}
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	for _, c := range commits {
		fmt.Fprintf(out, "%s %s %s\n", c.CommitHash.String()[:8], c.Metadata.CommitType, subject(c.Metadata.Message))
	}
	return 0
}

// subject takes the first line of a commit message, the same one-line
// log-rendering convention spec §12.5 adds on top of spec.md.
func subject(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return message[:i]
	}
	return message
}

func runGC(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("gc", flag.ContinueOnError)
	fs.SetOutput(errOut)
	repo, agentID := globalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	e, err := openEngine(*repo, *agentID)
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	defer e.Close()
	removed, err := e.GC()
	if err != nil {
		return exitCodeFor(err, errOut)
	}
	fmt.Fprintf(out, "removed %d object(s)\n", len(removed))
	return 0
}
