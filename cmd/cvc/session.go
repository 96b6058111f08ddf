package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/antgroup/cvc/modules/cvc/config"
	"github.com/antgroup/cvc/modules/cvc/engine"
	"github.com/antgroup/cvc/modules/model"
)

// globalFlags registers the --repo/--agent-id flags every subcommand
// accepts, mirroring suju297-mem's splitGlobalFlags idiom but kept
// per-command (flag.FlagSet) rather than pre-split, since cvc has far
// fewer global flags to thread through.
func globalFlags(fs *flag.FlagSet) (repo, agentID *string) {
	repo = fs.String("repo", ".", "repository root")
	agentID = fs.String("agent-id", "", "agent identifier recorded on new commits (overrides config)")
	return repo, agentID
}

// openEngine loads the on-disk configuration for repo (falling back to
// defaults) and opens an Engine session against it.
func openEngine(repo, agentID string) (*engine.Engine, error) {
	cfg, err := config.Load(repo, model.ModeCLI)
	if err != nil {
		return nil, err
	}
	if agentID != "" {
		cfg.AgentID = agentID
	}
	return engine.Open(cfg, nil)
}

// exitCodeFor maps an Engine error to a process exit code, printing it to
// errOut. 1 is the generic failure code; 2 is reserved for flag/usage
// errors raised before an Engine is even opened.
func exitCodeFor(err error, errOut io.Writer) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(errOut, "cvc: %v\n", err)
	return 1
}
