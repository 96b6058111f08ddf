package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
)

type fakeReader map[cvchash.Hash]model.CognitiveCommit

func (f fakeReader) GetCommit(h cvchash.Hash) (model.CognitiveCommit, error) {
	c, ok := f[h]
	if !ok {
		return model.CognitiveCommit{}, cvcerr.NewNotFoundError("commit", h.String())
	}
	return c, nil
}

func h(s string) cvchash.Hash {
	var b [32]byte
	copy(b[:], s)
	return cvchash.Hash(b)
}

// Builds:
//
//	base
//	├── sourceHead (one extra commit)
//	└── targetMid ── targetHead (two extra commits)
func diamondHistory() (reader fakeReader, base, sourceHead, targetHead cvchash.Hash) {
	base = h("base")
	sourceHead = h("source")
	targetMid := h("tmid")
	targetHead = h("target")
	reader = fakeReader{
		base:       {CommitHash: base},
		sourceHead: {CommitHash: sourceHead, ParentHashes: []cvchash.Hash{base}},
		targetMid:  {CommitHash: targetMid, ParentHashes: []cvchash.Hash{base}},
		targetHead: {CommitHash: targetHead, ParentHashes: []cvchash.Hash{targetMid}},
	}
	return
}

func TestLowestCommonAncestor_Diamond(t *testing.T) {
	reader, base, sourceHead, targetHead := diamondHistory()
	r := New(reader)

	lca, err := r.LowestCommonAncestor(sourceHead, targetHead)
	require.NoError(t, err)
	assert.Equal(t, base, lca)
}

func TestLowestCommonAncestor_SameCommit(t *testing.T) {
	reader, _, sourceHead, _ := diamondHistory()
	r := New(reader)
	lca, err := r.LowestCommonAncestor(sourceHead, sourceHead)
	require.NoError(t, err)
	assert.Equal(t, sourceHead, lca)
}

func TestLowestCommonAncestor_DisjointHistoriesError(t *testing.T) {
	reader := fakeReader{
		h("a"): {CommitHash: h("a")},
		h("b"): {CommitHash: h("b")},
	}
	r := New(reader)
	_, err := r.LowestCommonAncestor(h("a"), h("b"))
	assert.True(t, cvcerr.IsNoCommonAncestor(err))
}

func TestMerge_UnionDeduplicatesByContent(t *testing.T) {
	base := model.ContentBlob{Messages: []model.Message{
		{Role: model.RoleUser, Content: "hi"},
	}}
	ours := model.ContentBlob{Messages: []model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "from ours"},
	}}
	theirs := model.ContentBlob{Messages: []model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "from theirs"},
	}}

	merged := Merge(base, ours, theirs, "")
	assert.Len(t, merged.Messages, 3)
	assert.Equal(t, "hi", merged.Messages[0].Content)
	assert.Equal(t, "from ours", merged.Messages[1].Content)
	assert.Equal(t, "from theirs", merged.Messages[2].Content)
}

func TestMerge_IdenticalAdditionOnBothSidesAppearsOnce(t *testing.T) {
	base := model.ContentBlob{}
	shared := model.Message{Role: model.RoleUser, Content: "same addition"}
	ours := model.ContentBlob{Messages: []model.Message{shared}}
	theirs := model.ContentBlob{Messages: []model.Message{shared}}

	merged := Merge(base, ours, theirs, "")
	assert.Len(t, merged.Messages, 1)
}

func TestMerge_SynthesizeAppendedToReasoningTrace(t *testing.T) {
	merged := Merge(model.ContentBlob{}, model.ContentBlob{}, model.ContentBlob{}, "synthesis note")
	assert.Equal(t, "synthesis note", merged.ReasoningTrace)
}
