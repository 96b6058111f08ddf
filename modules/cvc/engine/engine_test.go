package engine

import (
	"testing"

	"github.com/antgroup/cvc/modules/cvc/config"
	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default(t.TempDir(), model.ModeCLI)
	cfg.AutoCommitInterval = 2
	e, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e
}

func TestInitCreatesGenesisAndIsNotReentrant(t *testing.T) {
	e := newTestEngine(t)
	status, err := e.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.ActiveBranch != "main" {
		t.Fatalf("active branch = %q, want main", status.ActiveBranch)
	}
	if err := e.Init(); !cvcerr.IsInvariantViolation(err) {
		t.Fatalf("second Init err = %v, want InvariantViolationError", err)
	}
}

func TestPushMessageTriggersAutoCommit(t *testing.T) {
	e := newTestEngine(t)
	if err := e.PushMessage(model.Message{Role: model.RoleUser, Content: "one"}); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	status, _ := e.Status()
	if status.Dirty {
		t.Fatalf("a user-role message must not advance the auto-commit counter: %+v", status)
	}
	if err := e.PushMessage(model.Message{Role: model.RoleAssistant, Content: "one reply"}); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	status, _ = e.Status()
	if status.Dirty != true || status.TurnCount != 1 {
		t.Fatalf("status after 1 assistant turn = %+v", status)
	}
	if err := e.PushMessage(model.Message{Role: model.RoleUser, Content: "two"}); err != nil {
		t.Fatalf("push 3: %v", err)
	}
	if err := e.PushMessage(model.Message{Role: model.RoleAssistant, Content: "two reply"}); err != nil {
		t.Fatalf("push 4: %v", err)
	}
	status, _ = e.Status()
	if status.Dirty {
		t.Fatalf("status after auto-commit should not be dirty: %+v", status)
	}
	log, err := e.Log(0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("len(log) = %d, want 2 (genesis + auto-commit)", len(log))
	}
}

func TestCommitPreservesFullWindowAsSnapshot(t *testing.T) {
	e := newTestEngine(t)
	_ = e.PushMessage(model.Message{Role: model.RoleUser, Content: "hello"})
	commit, err := e.Commit(model.CommitCheckpoint, "manual", nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	blob, err := e.GetBlob(commit.CommitHash.String())
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if len(blob.Messages) != 1 || blob.Messages[0].Content != "hello" {
		t.Fatalf("unexpected blob messages: %+v", blob.Messages)
	}
}

func TestBranchSwitchRestoresWindow(t *testing.T) {
	e := newTestEngine(t)
	_ = e.PushMessage(model.Message{Role: model.RoleUser, Content: "main line"})
	if _, err := e.Commit(model.CommitCheckpoint, "c1", nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := e.Branch("feature"); err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if err := e.Switch("feature"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if e.ActiveBranch() != "feature" {
		t.Fatalf("active branch = %q, want feature", e.ActiveBranch())
	}
	if len(e.Window()) != 1 {
		t.Fatalf("window after switch = %v, want 1 message carried over", e.Window())
	}
}

func TestRestoreContentHashMatchesTarget(t *testing.T) {
	e := newTestEngine(t)
	_ = e.PushMessage(model.Message{Role: model.RoleUser, Content: "v1"})
	first, err := e.Commit(model.CommitCheckpoint, "c1", nil)
	if err != nil {
		t.Fatalf("Commit 1: %v", err)
	}
	_ = e.PushMessage(model.Message{Role: model.RoleUser, Content: "v2"})
	if _, err := e.Commit(model.CommitCheckpoint, "c2", nil); err != nil {
		t.Fatalf("Commit 2: %v", err)
	}
	restored, err := e.Restore(first.CommitHash.String())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.ContentHash != first.ContentHash {
		t.Fatalf("restored content hash = %s, want %s matching the restored target", restored.ContentHash, first.ContentHash)
	}
	if restored.Metadata.CommitType != model.CommitRollback {
		t.Fatalf("restored commit type = %q, want rollback", restored.Metadata.CommitType)
	}
}

func TestMergeUnionsBothBranchesMessages(t *testing.T) {
	e := newTestEngine(t)
	_ = e.PushMessage(model.Message{Role: model.RoleUser, Content: "shared base"})
	if _, err := e.Commit(model.CommitCheckpoint, "base", nil); err != nil {
		t.Fatalf("base commit: %v", err)
	}
	if _, err := e.Branch("feature"); err != nil {
		t.Fatalf("Branch: %v", err)
	}
	_ = e.PushMessage(model.Message{Role: model.RoleUser, Content: "main only"})
	if _, err := e.Commit(model.CommitCheckpoint, "main work", nil); err != nil {
		t.Fatalf("main commit: %v", err)
	}
	if err := e.Switch("feature"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	_ = e.PushMessage(model.Message{Role: model.RoleUser, Content: "feature only"})
	if _, err := e.Commit(model.CommitCheckpoint, "feature work", nil); err != nil {
		t.Fatalf("feature commit: %v", err)
	}
	if err := e.Switch("main"); err != nil {
		t.Fatalf("Switch back: %v", err)
	}
	merged, err := e.Merge("feature", "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.ParentHashes) != 2 {
		t.Fatalf("merge commit parents = %v, want 2", merged.ParentHashes)
	}
	if len(e.Window()) != 3 {
		t.Fatalf("merged window = %v, want 3 messages (base + both sides)", e.Window())
	}
}

func TestTimelineOrdersNewestFirstAndCoversBothMergeParents(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Branch("feature"); err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if _, err := e.Commit(model.CommitCheckpoint, "main work", nil); err != nil {
		t.Fatalf("main commit: %v", err)
	}
	if err := e.Switch("feature"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if _, err := e.Commit(model.CommitCheckpoint, "feature work", nil); err != nil {
		t.Fatalf("feature commit: %v", err)
	}
	if err := e.Switch("main"); err != nil {
		t.Fatalf("Switch back: %v", err)
	}
	merge, err := e.Merge("feature", "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	timeline, err := e.Timeline(0)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if timeline[0].CommitHash != merge.CommitHash {
		t.Fatalf("timeline[0] = %s, want merge commit %s first", timeline[0].CommitHash, merge.CommitHash)
	}
	if len(timeline) != 4 {
		t.Fatalf("len(timeline) = %d, want 4 (genesis, main work, feature work, merge)", len(timeline))
	}
}

func TestGCRemovesNothingWhenAllBlobsReferenced(t *testing.T) {
	e := newTestEngine(t)
	_ = e.PushMessage(model.Message{Role: model.RoleUser, Content: "kept"})
	if _, err := e.Commit(model.CommitCheckpoint, "c1", nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	removed, err := e.GC()
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("GC removed %v, want nothing (every blob still referenced)", removed)
	}
}
