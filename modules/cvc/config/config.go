// Package config carries cvc's typed configuration record and the
// <repo_root>/.cvc directory layout. Grounded on suju297-mem's
// internal/config package (flat TOML struct, write-temp-then-rename
// Save), in preference to hugescm's own modules/zeta/config, which is a
// generic git-style multi-key INI system sized for remote/credential/proxy
// settings cvc has no use for.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/model"
)

// Config is the typed configuration record an Engine session is
// constructed from (spec §4.J).
type Config struct {
	RepoRoot            string    `toml:"repo_root"`
	AgentID             string    `toml:"agent_id"`
	DefaultBranch       string    `toml:"default_branch"`
	Mode                model.Mode `toml:"mode"`
	AnchorInterval      int       `toml:"anchor_interval"`
	AutoCommitInterval  int       `toml:"auto_commit_interval"`
	VectorEnabled       bool      `toml:"vector_enabled"`
	Provider            string    `toml:"provider"`
	Model               string    `toml:"model"`
	DeltaRatio          float64   `toml:"delta_ratio"`
	DeltaMinSizeBytes   int64     `toml:"delta_min_size_bytes"`
}

// Default returns the configuration defaults enumerated in spec §6.4 for
// the given repository root and mode. AutoCommitInterval defaults per
// mode: 2 for interactive (cli), 3 otherwise (proxy/mcp/unknown).
func Default(repoRoot string, mode model.Mode) Config {
	autoCommitInterval := 3
	if mode == model.ModeCLI {
		autoCommitInterval = 2
	}
	return Config{
		RepoRoot:           repoRoot,
		AgentID:            "default",
		DefaultBranch:      "main",
		Mode:               mode,
		AnchorInterval:     10,
		AutoCommitInterval: autoCommitInterval,
		VectorEnabled:      false,
		DeltaRatio:         0.5,
		DeltaMinSizeBytes:  4 * 1024,
	}
}

// Load reads repo_root/.cvc/cvc.toml if present, overlaying it onto the
// defaults for mode; a missing file is not an error.
func Load(repoRoot string, mode model.Mode) (Config, error) {
	cfg := Default(repoRoot, mode)
	path := filepath.Join(PathsFor(repoRoot).Root, "cvc.toml")
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, cvcerr.NewIoError("config.load", err)
		}
	}
	cfg.RepoRoot = repoRoot
	return cfg, nil
}

// Save writes the configuration to repo_root/.cvc/cvc.toml via
// write-temp-then-rename.
func (c Config) Save() error {
	dir := PathsFor(c.RepoRoot).Root
	if err := os.MkdirAll(dir, 0755); err != nil {
		return cvcerr.NewIoError("config.save.mkdir", err)
	}
	path := filepath.Join(dir, "cvc.toml")
	tmp, err := os.CreateTemp(dir, "tmp-cvc-toml-")
	if err != nil {
		return cvcerr.NewIoError("config.save.tempfile", err)
	}
	tmpPath := tmp.Name()
	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(c); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("config.save.encode", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("config.save.close", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("config.save.rename", err)
	}
	return nil
}

// Paths is the resolved <repo_root>/.cvc directory layout (spec §4.J).
type Paths struct {
	Root          string // <repo_root>/.cvc
	IndexDBPath   string // <repo_root>/.cvc/cvc.db
	ObjectsDir    string // <repo_root>/.cvc/objects
	CachePath     string // <repo_root>/.cvc/context_cache.json
	SemanticDir   string // <repo_root>/.cvc/chroma
}

// PathsFor resolves the directory layout for a given repository root.
func PathsFor(repoRoot string) Paths {
	root := filepath.Join(repoRoot, ".cvc")
	return Paths{
		Root:        root,
		IndexDBPath: filepath.Join(root, "cvc.db"),
		ObjectsDir:  filepath.Join(root, "objects"),
		CachePath:   filepath.Join(root, "context_cache.json"),
		SemanticDir: filepath.Join(root, "chroma"),
	}
}

// EnsureLayout creates every directory the layout requires.
func EnsureLayout(repoRoot string) (Paths, error) {
	p := PathsFor(repoRoot)
	for _, dir := range []string{p.Root, p.ObjectsDir, p.SemanticDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Paths{}, cvcerr.NewIoError("config.ensure_layout", err)
		}
	}
	return p, nil
}

// WorkspaceEnvVar is the environment variable front-ends may set to
// override workspace discovery (spec §4.J).
const WorkspaceEnvVar = "CVC_WORKSPACE"

// DiscoverMarkers are the directory entries that stop the ancestor walk
// during workspace discovery, in the order front-ends should check.
var DiscoverMarkers = []string{".cvc", ".git"}
