package deltaengine

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antgroup/cvc/modules/cvc/blobstore"
	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	return New(blobstore.New(filepath.Join(t.TempDir(), "objects")), cfg)
}

func big(suffix string) []byte {
	return []byte(strings.Repeat("x", 5*1024) + suffix)
}

func TestWrite_BelowDeltaMinSizeAlwaysAnchors(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	anchorHash, kind, err := e.Write([]byte("tiny"), Predecessor{})
	require.NoError(t, err)
	assert.Equal(t, model.BlobAnchor, kind)

	_, kind, err = e.Write([]byte("also tiny"), Predecessor{
		HasAnchor: true, AnchorHash: anchorHash, CommitsSinceAnchor: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BlobAnchor, kind, "below DeltaMinSize never deltas regardless of history")
}

func TestWrite_AnchorIntervalBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AnchorInterval = 3
	cfg.DeltaMinSize = 1 // force every payload above the size floor

	e := newTestEngine(t, cfg)

	anchorCanonical := big("c1")
	anchorHash, kind, err := e.Write(anchorCanonical, Predecessor{})
	require.NoError(t, err)
	require.Equal(t, model.BlobAnchor, kind)
	anchorRec, err := e.store.Get(anchorHash)
	require.NoError(t, err)

	pred := func(sinceAnchor int) Predecessor {
		return Predecessor{
			HasAnchor:          true,
			AnchorHash:         anchorHash,
			AnchorCanonical:    anchorCanonical,
			AnchorCompressed:   int64(len(anchorRec.Compressed)),
			CommitsSinceAnchor: sinceAnchor,
		}
	}

	// With AnchorInterval=3, an anchor at c1 must yield deltas at c2/c3 and
	// force a fresh anchor at c4 (spec §8 scenario S3: interval 3 anchors
	// c1/c4/c7 -- two deltas between anchors, not three).
	_, kind, err = e.Write(big("c2"), pred(0))
	require.NoError(t, err)
	assert.Equal(t, model.BlobDelta, kind, "first commit after the anchor must delta")

	_, kind, err = e.Write(big("c3"), pred(1))
	require.NoError(t, err)
	assert.Equal(t, model.BlobDelta, kind, "second commit after the anchor must still delta")

	_, kind, err = e.Write(big("c4"), pred(2))
	require.NoError(t, err)
	assert.Equal(t, model.BlobAnchor, kind, "third commit after the anchor must force a new anchor")
}

func TestWrite_AnchorIntervalOneForcesEveryCommitToAnchor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AnchorInterval = 1
	cfg.DeltaMinSize = 1

	e := newTestEngine(t, cfg)
	anchorHash, kind, err := e.Write(big("c1"), Predecessor{})
	require.NoError(t, err)
	require.Equal(t, model.BlobAnchor, kind)

	anchorRec, err := e.store.Get(anchorHash)
	require.NoError(t, err)
	_, kind, err = e.Write(big("c2"), Predecessor{
		HasAnchor: true, AnchorHash: anchorHash, AnchorCanonical: big("c1"),
		AnchorCompressed: int64(len(anchorRec.Compressed)), CommitsSinceAnchor: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BlobAnchor, kind, "AnchorInterval=1 forces every commit to anchor")
}

func TestWrite_DeltaRatioGuardFallsBackToAnchor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeltaMinSize = 1
	cfg.DeltaRatio = 0.0001 // practically impossible to satisfy

	e := newTestEngine(t, cfg)
	anchorCanonical := big("v0")
	anchorHash, _, err := e.Write(anchorCanonical, Predecessor{})
	require.NoError(t, err)
	anchorRec, err := e.store.Get(anchorHash)
	require.NoError(t, err)

	// A payload unrelated to the anchor dictionary compresses poorly against
	// it, so the ratio guard should reject the delta and fall back to anchor.
	unrelated := []byte(strings.Repeat("unrelated-content-", 400))
	_, kind, err := e.Write(unrelated, Predecessor{
		HasAnchor: true, AnchorHash: anchorHash, AnchorCanonical: anchorCanonical,
		AnchorCompressed: int64(len(anchorRec.Compressed)), CommitsSinceAnchor: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BlobAnchor, kind)
}

func TestReconstruct_ChainReplaysThroughAnchor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeltaMinSize = 1
	cfg.AnchorInterval = 10

	e := newTestEngine(t, cfg)
	anchorCanonical := big("v0")
	anchorHash, kind, err := e.Write(anchorCanonical, Predecessor{})
	require.NoError(t, err)
	require.Equal(t, model.BlobAnchor, kind)

	anchorRec, err := e.store.Get(anchorHash)
	require.NoError(t, err)
	deltaCanonical := big("v1")
	deltaHash, kind, err := e.Write(deltaCanonical, Predecessor{
		HasAnchor: true, AnchorHash: anchorHash, AnchorCanonical: anchorCanonical,
		AnchorCompressed: int64(len(anchorRec.Compressed)), CommitsSinceAnchor: 0,
	})
	require.NoError(t, err)
	require.Equal(t, model.BlobDelta, kind)

	got, err := e.Reconstruct(deltaHash)
	require.NoError(t, err)
	assert.Equal(t, deltaCanonical, got)
	assert.Equal(t, deltaHash, cvchash.Sum256(got))

	gotAnchor, err := e.Reconstruct(anchorHash)
	require.NoError(t, err)
	assert.Equal(t, anchorCanonical, gotAnchor)
}

func TestWrite_IdempotentOnRepeatedContentHash(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	payload := []byte("repeat me")
	hash1, kind1, err := e.Write(payload, Predecessor{})
	require.NoError(t, err)
	hash2, kind2, err := e.Write(payload, Predecessor{})
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)
	assert.Equal(t, kind1, kind2)
}
