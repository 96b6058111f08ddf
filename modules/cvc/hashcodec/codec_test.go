package hashcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
)

func TestCanonicalizeContentBlob_Deterministic(t *testing.T) {
	b1 := model.ContentBlob{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hi"},
			{Role: model.RoleAssistant, Content: "hello"},
		},
	}
	b2 := b1
	b2.Messages = append([]model.Message(nil), b1.Messages...)

	c1, err := CanonicalizeContentBlob(b1)
	require.NoError(t, err)
	c2, err := CanonicalizeContentBlob(b2)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestCanonicalizeContentBlob_OmitsAbsentOptionals(t *testing.T) {
	b := model.ContentBlob{Messages: []model.Message{{Role: model.RoleSystem, Content: "x"}}}
	canon, err := CanonicalizeContentBlob(b)
	require.NoError(t, err)
	s := string(canon)
	assert.NotContains(t, s, "reasoning_trace")
	assert.NotContains(t, s, "tool_outputs")
	assert.NotContains(t, s, "source_files")
	assert.NotContains(t, s, "token_count")
	assert.NotContains(t, s, "null")
}

func TestCanonicalizeContentBlob_NFCNormalization(t *testing.T) {
	// "e" + combining acute accent (NFD) should canonicalize the same as
	// the precomposed "é" (NFC).
	nfd := "é"
	nfc := "é"
	bNFD := model.ContentBlob{Messages: []model.Message{{Role: model.RoleUser, Content: nfd}}}
	bNFC := model.ContentBlob{Messages: []model.Message{{Role: model.RoleUser, Content: nfc}}}
	cNFD, err := CanonicalizeContentBlob(bNFD)
	require.NoError(t, err)
	cNFC, err := CanonicalizeContentBlob(bNFC)
	require.NoError(t, err)
	assert.Equal(t, cNFD, cNFC)
}

func TestCanonicalizeCommitMetadata_RejectsNonFiniteFloat(t *testing.T) {
	m := model.CommitMetadata{TimestampSeconds: 0}
	_, err := CanonicalizeCommitMetadata(m)
	require.NoError(t, err)

	bad := model.CommitMetadata{TimestampSeconds: 1}
	bad.TimestampSeconds = bad.TimestampSeconds / 0 // +Inf, constant-folded at runtime via division
	_, err = CanonicalizeCommitMetadata(bad)
	assert.Error(t, err)
}

func TestCommitHash_OrdersParentsLexically(t *testing.T) {
	blob := model.ContentBlob{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}}
	meta := model.CommitMetadata{AgentID: "a1", Mode: model.ModeCLI, Message: "m", CommitType: model.CommitCheckpoint}
	contentCanon, err := CanonicalizeContentBlob(blob)
	require.NoError(t, err)
	metaCanon, err := CanonicalizeCommitMetadata(meta)
	require.NoError(t, err)

	pA := cvchash.New("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	pB := cvchash.New("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	h1 := CommitHash([]cvchash.Hash{pA, pB}, contentCanon, metaCanon)
	h2 := CommitHash([]cvchash.Hash{pB, pA}, contentCanon, metaCanon)
	assert.Equal(t, h1, h2)
}

func TestParseContentBlob_RoundTrips(t *testing.T) {
	tokenCount := int64(42)
	b := model.ContentBlob{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hi", Attachments: []string{"a", "b"}},
		},
		ReasoningTrace: "thinking...",
		ToolOutputs:    map[string]string{"search": "result"},
		TokenCount:     &tokenCount,
	}
	canon, err := CanonicalizeContentBlob(b)
	require.NoError(t, err)

	got, err := ParseContentBlob(canon)
	require.NoError(t, err)
	assert.Equal(t, b.Messages, got.Messages)
	assert.Equal(t, b.ReasoningTrace, got.ReasoningTrace)
	assert.Equal(t, b.ToolOutputs, got.ToolOutputs)
	require.NotNil(t, got.TokenCount)
	assert.Equal(t, *b.TokenCount, *got.TokenCount)

	recanon, err := CanonicalizeContentBlob(got)
	require.NoError(t, err)
	assert.Equal(t, canon, recanon)
}

func TestParseCommitMetadata_RoundTrips(t *testing.T) {
	m := model.CommitMetadata{
		TimestampSeconds: 1700000000.5,
		AgentID:          "agent-1",
		Mode:             model.ModeCLI,
		Tags:             []string{"b-tag", "a-tag"},
		Message:          "checkpoint",
		CommitType:       model.CommitCheckpoint,
	}
	canon, err := CanonicalizeCommitMetadata(m)
	require.NoError(t, err)

	got, err := ParseCommitMetadata(canon)
	require.NoError(t, err)
	assert.Equal(t, m.AgentID, got.AgentID)
	assert.Equal(t, m.TimestampSeconds, got.TimestampSeconds)
	assert.Equal(t, []string{"a-tag", "b-tag"}, got.Tags)

	recanon, err := CanonicalizeCommitMetadata(got)
	require.NoError(t, err)
	assert.Equal(t, canon, recanon)
}
