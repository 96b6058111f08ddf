// Package engine implements the cvc Engine: the single-writer session
// object a front-end (cmd/cvc, a proxy, an MCP server) drives through one
// conversation. It owns the active branch, the in-memory message window,
// the turn counter that drives auto-commit, and the PersistentCache used
// to resume a session without replaying history. Grounded on
// modules/zeta/backend/odb.go's Database, which likewise composes storage
// tiers behind session-shaped operations (checkout, commit, status)
// rather than exposing the tiers directly to cmd/.
package engine

import (
	"fmt"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/antgroup/cvc/modules/cvc/blobstore"
	"github.com/antgroup/cvc/modules/cvc/branchname"
	"github.com/antgroup/cvc/modules/cvc/cache"
	"github.com/antgroup/cvc/modules/cvc/config"
	"github.com/antgroup/cvc/modules/cvc/contextdb"
	"github.com/antgroup/cvc/modules/cvc/cvclog"
	"github.com/antgroup/cvc/modules/cvc/deltaengine"
	"github.com/antgroup/cvc/modules/cvc/indexdb"
	"github.com/antgroup/cvc/modules/cvc/merge"
	"github.com/antgroup/cvc/modules/cvc/semanticstore"
	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
)

// Engine is the session object one front-end process holds for the
// lifetime of one conversation against one repository.
type Engine struct {
	cfg    config.Config
	paths  config.Paths
	db     *contextdb.ContextDatabase
	merger *merge.Resolver
	pcache *cache.Cache
	log    *logrus.Logger
	steps  *cvclog.Tracker

	// sessionID identifies this process's attachment to the repository.
	// It never enters a commit hash; it is purely a correlation ID for
	// log lines, carried per spec's ambient-logging convention.
	sessionID uuid.UUID

	activeBranch string
	window       []model.Message
	turnCount    int
}

// Status is the snapshot status() reports (spec §4.H, plus the
// dirty/pending_auto_commit_in supplement SPEC_FULL.md §12.1 adds).
type Status struct {
	ActiveBranch        string
	HeadHash            cvchash.Hash
	WindowSize          int
	TurnCount           int
	Dirty               bool
	PendingAutoCommitIn int
}

// Open wires up the three storage tiers under repoRoot/.cvc, restores a
// prior session's window from the persistent cache if one exists, and
// returns a ready-to-use Engine. log may be nil, in which case cvclog.New
// is used.
func Open(cfg config.Config, log *logrus.Logger) (*Engine, error) {
	if log == nil {
		log = cvclog.New()
	}
	paths, err := config.EnsureLayout(cfg.RepoRoot)
	if err != nil {
		return nil, err
	}

	blobs := blobstore.New(paths.ObjectsDir)
	delta := deltaengine.New(blobs, deltaengine.Config{
		AnchorInterval: cfg.AnchorInterval,
		DeltaRatio:     cfg.DeltaRatio,
		DeltaMinSize:   cfg.DeltaMinSizeBytes,
		Level:          deltaengine.DefaultConfig().Level,
	})
	index, err := indexdb.Open(paths.IndexDBPath)
	if err != nil {
		return nil, err
	}

	var semantic *semanticstore.Store
	if cfg.VectorEnabled {
		semantic, err = semanticstore.Open(paths.SemanticDir)
		if err != nil {
			log.WithError(err).Warn("semantic store unavailable, continuing without recall")
			semantic = nil
		}
	}

	db := contextdb.New(blobs, delta, index, semantic)
	e := &Engine{
		cfg:          cfg,
		paths:        paths,
		db:           db,
		merger:       merge.New(db),
		pcache:       cache.Open(paths.CachePath),
		log:          log,
		steps:        cvclog.NewTracker(log, cfg.Mode == model.ModeCLI),
		sessionID:    uuid.New(),
		activeBranch: cfg.DefaultBranch,
	}

	if state, ok, err := e.pcache.Load(); err != nil {
		log.WithError(err).Warn("persistent cache unreadable, starting from last commit")
	} else if ok {
		e.activeBranch = state.Branch
		e.window = state.Messages
	}
	e.steps.StepNext("engine opened for %s", cfg.RepoRoot)
	return e, nil
}

// Close releases the underlying storage handles.
func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (e *Engine) saveCache() error {
	return e.pcache.Save(cache.State{
		Messages:         e.window,
		TimestampSeconds: e.now(),
		Mode:             e.cfg.Mode,
		Branch:           e.activeBranch,
	})
}

// Init creates the genesis commit and the default branch. It is an
// InvariantViolationError to call Init on a repository that already has
// a genesis commit (spec §4.A: exactly one genesis per repository).
func (e *Engine) Init() error {
	has, err := e.db.HasAnyCommit()
	if err != nil {
		return err
	}
	if has {
		return cvcerr.NewInvariantViolationError("repository at %s is already initialized", e.cfg.RepoRoot)
	}
	genesis, err := e.db.StoreCommit(nil, model.ContentBlob{}, model.CommitMetadata{
		TimestampSeconds: e.now(),
		AgentID:          e.cfg.AgentID,
		Mode:             e.cfg.Mode,
		Message:          "genesis",
		CommitType:       model.CommitGenesis,
	})
	if err != nil {
		return err
	}
	if err := e.db.CreateBranch(model.BranchPointer{
		Name:      e.cfg.DefaultBranch,
		HeadHash:  genesis.CommitHash,
		CreatedAt: e.now(),
	}); err != nil {
		return err
	}
	e.activeBranch = e.cfg.DefaultBranch
	e.window = nil
	e.turnCount = 0
	e.steps.StepNext("genesis %s on %s", genesis.CommitHash.String(), e.activeBranch)
	return e.saveCache()
}

// PushMessage appends one message to the in-memory window and, once
// AutoCommitInterval assistant turns have accumulated since the last
// commit, fires an automatic checkpoint commit (spec §4.C / §6.4). Only
// assistant-role messages advance the auto-commit counter: a turn is
// complete once the assistant has responded, not on every user/tool/system
// message appended in between.
func (e *Engine) PushMessage(m model.Message) error {
	e.window = append(e.window, m)
	if m.Role == model.RoleAssistant {
		e.turnCount++
	}
	if err := e.saveCache(); err != nil {
		e.log.WithError(err).Warn("failed to persist context cache after push_message")
	}
	if e.turnCount >= e.cfg.AutoCommitInterval {
		if _, err := e.Commit(model.CommitCheckpoint, "auto-commit", nil); err != nil {
			return err
		}
	}
	return nil
}

// Commit snapshots the current window as a new commit on the active
// branch, advances the branch head, and resets the auto-commit counter.
// The window itself is not truncated: a ContentBlob is always the full
// conversation state at that point, never a diff (spec §4.B).
func (e *Engine) Commit(commitType model.CommitType, message string, tags []string) (model.CognitiveCommit, error) {
	branch, err := e.db.GetBranch(e.activeBranch)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	blob := model.ContentBlob{Messages: e.window}
	meta := model.CommitMetadata{
		TimestampSeconds: e.now(),
		AgentID:          e.cfg.AgentID,
		Mode:             e.cfg.Mode,
		Provider:         e.cfg.Provider,
		Model:            e.cfg.Model,
		Tags:             tags,
		Message:          message,
		CommitType:       commitType,
	}
	commit, err := e.db.StoreCommit([]cvchash.Hash{branch.HeadHash}, blob, meta)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	if err := e.db.SetBranchHead(e.activeBranch, commit.CommitHash); err != nil {
		return model.CognitiveCommit{}, err
	}
	e.turnCount = 0
	e.steps.StepNext("commit %s on %s", commit.CommitHash.String(), e.activeBranch)
	if err := e.saveCache(); err != nil {
		e.log.WithError(err).Warn("failed to persist context cache after commit")
	}
	return commit, nil
}

// Branch creates a new branch pointing at the active branch's current
// head, without switching to it (spec §4.G).
func (e *Engine) Branch(name string) (model.BranchPointer, error) {
	if !branchname.Valid(name) {
		return model.BranchPointer{}, cvcerr.NewInvariantViolationError("%q is not a valid branch name", name)
	}
	cur, err := e.db.GetBranch(e.activeBranch)
	if err != nil {
		return model.BranchPointer{}, err
	}
	b := model.BranchPointer{Name: name, HeadHash: cur.HeadHash, CreatedAt: e.now()}
	if err := e.db.CreateBranch(b); err != nil {
		return model.BranchPointer{}, err
	}
	return b, nil
}

// Switch changes the active branch and reloads the in-memory window from
// that branch's head commit.
func (e *Engine) Switch(name string) error {
	target, err := e.db.GetBranch(name)
	if err != nil {
		return err
	}
	head, err := e.db.GetCommit(target.HeadHash)
	if err != nil {
		return err
	}
	blob, err := e.db.RetrieveBlob(head.ContentHash)
	if err != nil {
		return err
	}
	e.activeBranch = name
	e.window = blob.Messages
	e.turnCount = 0
	return e.saveCache()
}

// Restore creates a new commit on the active branch whose ContentBlob is
// byte-identical to the ContentBlob of the commit ref resolves to (a
// "rollback forward" rather than history mutation, spec §4.I). Because
// the content hash is a pure function of the canonical blob bytes, the
// resulting commit's content_hash automatically equals the restored
// commit's content_hash; only the commit's own hash, parent and
// timestamp differ.
func (e *Engine) Restore(ref string) (model.CognitiveCommit, error) {
	targetHash, err := e.db.ResolveCommit(ref)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	target, err := e.db.GetCommit(targetHash)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	blob, err := e.db.RetrieveBlob(target.ContentHash)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	branch, err := e.db.GetBranch(e.activeBranch)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	meta := model.CommitMetadata{
		TimestampSeconds: e.now(),
		AgentID:          e.cfg.AgentID,
		Mode:             e.cfg.Mode,
		Message:          fmt.Sprintf("restore to %s", targetHash.String()[:8]),
		CommitType:       model.CommitRollback,
		RestoredFrom:     targetHash.String(),
	}
	commit, err := e.db.StoreCommit([]cvchash.Hash{branch.HeadHash}, blob, meta)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	if err := e.db.SetBranchHead(e.activeBranch, commit.CommitHash); err != nil {
		return model.CognitiveCommit{}, err
	}
	e.window = blob.Messages
	e.turnCount = 0
	e.steps.StepNext("restore %s -> %s", targetHash.String(), commit.CommitHash.String())
	return commit, e.saveCache()
}

// Merge three-way merges sourceBranch into the active branch, creating a
// two-parent merge commit (spec §4.F). The active branch supplies "ours",
// sourceBranch supplies "theirs".
func (e *Engine) Merge(sourceBranch, synthesize string) (model.CognitiveCommit, error) {
	target, err := e.db.GetBranch(e.activeBranch)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	source, err := e.db.GetBranch(sourceBranch)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	lcaHash, err := e.merger.LowestCommonAncestor(target.HeadHash, source.HeadHash)
	if err != nil {
		return model.CognitiveCommit{}, err
	}

	baseBlob, err := e.blobAt(lcaHash)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	oursBlob, err := e.blobAt(target.HeadHash)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	theirsBlob, err := e.blobAt(source.HeadHash)
	if err != nil {
		return model.CognitiveCommit{}, err
	}

	merged := merge.Merge(baseBlob, oursBlob, theirsBlob, synthesize)
	meta := model.CommitMetadata{
		TimestampSeconds: e.now(),
		AgentID:          e.cfg.AgentID,
		Mode:             e.cfg.Mode,
		Message:          fmt.Sprintf("merge %s into %s", sourceBranch, e.activeBranch),
		CommitType:       model.CommitMerge,
		SourceBranch:     sourceBranch,
		TargetBranch:     e.activeBranch,
		LCA:              lcaHash.String(),
	}
	commit, err := e.db.StoreCommit([]cvchash.Hash{target.HeadHash, source.HeadHash}, merged, meta)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	if err := e.db.SetBranchHead(e.activeBranch, commit.CommitHash); err != nil {
		return model.CognitiveCommit{}, err
	}
	e.window = merged.Messages
	e.turnCount = 0
	e.steps.StepNext("merge %s -> %s", source.HeadHash.String(), commit.CommitHash.String())
	return commit, e.saveCache()
}

func (e *Engine) blobAt(commitHash cvchash.Hash) (model.ContentBlob, error) {
	c, err := e.db.GetCommit(commitHash)
	if err != nil {
		return model.ContentBlob{}, err
	}
	return e.db.RetrieveBlob(c.ContentHash)
}

// Log returns up to limit commits from the active branch's head,
// following first parents only (spec §4.H); limit <= 0 means unbounded.
// Grounded on modules/zeta/object/commit_walker.go's first-parent walk.
func (e *Engine) Log(limit int) ([]model.CognitiveCommit, error) {
	branch, err := e.db.GetBranch(e.activeBranch)
	if err != nil {
		return nil, err
	}
	var out []model.CognitiveCommit
	cur := branch.HeadHash
	for i := 0; limit <= 0 || i < limit; i++ {
		if cur.IsZero() {
			break
		}
		commit, err := e.db.GetCommit(cur)
		if err != nil {
			if cvcerr.IsNotFound(err) {
				break
			}
			return nil, err
		}
		out = append(out, commit)
		if len(commit.ParentHashes) == 0 {
			break
		}
		cur = commit.ParentHashes[0]
	}
	return out, nil
}

// Timeline walks every ancestor of the active branch's head in
// descending commit-timestamp order, following all parents rather than
// first-parent only, so merge commits contribute both sides of history
// instead of hiding the merged-in branch. Grounded on
// modules/zeta/object/commit_walker_ctime.go's max-heap-ordered walker,
// adapted from a *Commit-typed heap entry to a plain
// model.CognitiveCommit and from its own object store lookups to
// ContextDatabase.GetCommit. limit <= 0 means unbounded.
func (e *Engine) Timeline(limit int) ([]model.CognitiveCommit, error) {
	branch, err := e.db.GetBranch(e.activeBranch)
	if err != nil {
		return nil, err
	}
	head, err := e.db.GetCommit(branch.HeadHash)
	if err != nil {
		return nil, err
	}

	heap := binaryheap.NewWith(func(a, b any) int {
		ca, cb := a.(model.CognitiveCommit), b.(model.CognitiveCommit)
		if ca.Metadata.TimestampSeconds < cb.Metadata.TimestampSeconds {
			return 1
		}
		if ca.Metadata.TimestampSeconds > cb.Metadata.TimestampSeconds {
			return -1
		}
		return 0
	})
	heap.Push(head)
	seen := map[cvchash.Hash]bool{head.CommitHash: true}

	var out []model.CognitiveCommit
	for limit <= 0 || len(out) < limit {
		v, ok := heap.Pop()
		if !ok {
			break
		}
		c := v.(model.CognitiveCommit)
		out = append(out, c)
		for _, p := range c.ParentHashes {
			if seen[p] {
				continue
			}
			seen[p] = true
			pc, err := e.db.GetCommit(p)
			if err != nil {
				if cvcerr.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			heap.Push(pc)
		}
	}
	return out, nil
}

// ListBranches returns every branch pointer, lexicographically ordered
// (spec §12.4 supplement).
func (e *Engine) ListBranches() ([]model.BranchPointer, error) {
	return e.db.ListBranches()
}

// GetBlob resolves ref to a commit and returns its full ContentBlob.
func (e *Engine) GetBlob(ref string) (model.ContentBlob, error) {
	hash, err := e.db.ResolveCommit(ref)
	if err != nil {
		return model.ContentBlob{}, err
	}
	commit, err := e.db.GetCommit(hash)
	if err != nil {
		return model.ContentBlob{}, err
	}
	return e.db.RetrieveBlob(commit.ContentHash)
}

// SetGitLink records that the active branch's current head corresponds
// to gitSHA in the host repository's own Git history (spec §4.K).
func (e *Engine) SetGitLink(gitSHA string) error {
	branch, err := e.db.GetBranch(e.activeBranch)
	if err != nil {
		return err
	}
	return e.db.SetGitLink(gitSHA, branch.HeadHash)
}

// GC removes every blob not referenced by any commit (spec §12.2
// supplement). The keep-set is the content hash of every commit row in
// the index, and commit rows are never deleted, so only blobs that no
// commit row names (for example left by an aborted write) are removed.
func (e *Engine) GC() ([]cvchash.Hash, error) {
	removed, err := e.db.GC()
	if err != nil {
		return nil, err
	}
	e.steps.StepNext("gc removed %d objects", len(removed))
	return removed, nil
}

// Status reports the active branch, its head, window size and the
// dirty/pending_auto_commit_in pair SPEC_FULL.md §12.1 adds on top of
// spec §4.H's plain status().
func (e *Engine) Status() (Status, error) {
	branch, err := e.db.GetBranch(e.activeBranch)
	if err != nil {
		return Status{}, err
	}
	pending := e.cfg.AutoCommitInterval - e.turnCount
	if pending < 0 {
		pending = 0
	}
	return Status{
		ActiveBranch:        e.activeBranch,
		HeadHash:            branch.HeadHash,
		WindowSize:          len(e.window),
		TurnCount:           e.turnCount,
		Dirty:               e.turnCount > 0,
		PendingAutoCommitIn: pending,
	}, nil
}

// ActiveBranch returns the name of the branch the session is currently
// attached to.
func (e *Engine) ActiveBranch() string {
	return e.activeBranch
}

// Window returns a copy of the in-memory message window.
func (e *Engine) Window() []model.Message {
	return append([]model.Message(nil), e.window...)
}

// SessionID identifies this Engine attachment for log correlation; it
// never participates in any hash.
func (e *Engine) SessionID() uuid.UUID {
	return e.sessionID
}
