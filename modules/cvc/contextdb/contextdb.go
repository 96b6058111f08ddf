// Package contextdb is the ContextDatabase facade: it sequences a commit
// write across the DeltaEngine (blob first) and IndexDB (commit row and
// parent edges second), and the reverse on read, so that a commit row
// never refers to a blob that does not yet exist on disk. Grounded on
// hugescm's modules/zeta/backend/odb.go, which composes its own object
// store and metadata cache behind one facade rather than exposing either
// to callers directly.
package contextdb

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/antgroup/cvc/modules/cvc/blobstore"
	"github.com/antgroup/cvc/modules/cvc/deltaengine"
	"github.com/antgroup/cvc/modules/cvc/hashcodec"
	"github.com/antgroup/cvc/modules/cvc/indexdb"
	"github.com/antgroup/cvc/modules/cvc/semanticstore"
	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
)

// ContextDatabase composes the three storage tiers behind the operations
// spec §4 describes in terms of commits and branches rather than blobs and
// rows.
type ContextDatabase struct {
	Blobs    *blobstore.Store
	Delta    *deltaengine.Engine
	Index    *indexdb.DB
	Semantic *semanticstore.Store // nil when vector_enabled is false

	// blobCache holds reconstructed ContentBlobs keyed by content hash hex,
	// sparing a delta-chain replay on repeated restore()/log() reads of the
	// same blob. Nil when caching is disabled; every lookup falls through
	// to Delta.Reconstruct regardless.
	blobCache *ristretto.Cache[string, model.ContentBlob]
}

// New composes an already-opened set of storage tiers. Semantic may be
// nil. Grounded on modules/zeta/backend/odb.go's metaLRU, sized down from
// that database's 100k-entry object cache to a budget fitting a single
// conversation's hot working set.
func New(blobs *blobstore.Store, delta *deltaengine.Engine, index *indexdb.DB, semantic *semanticstore.Store) *ContextDatabase {
	cache, err := ristretto.NewCache(&ristretto.Config[string, model.ContentBlob]{
		NumCounters: 1000,
		MaxCost:     256,
		BufferItems: 64,
	})
	if err != nil {
		cache = nil // caching is an optimization, never load-bearing
	}
	return &ContextDatabase{Blobs: blobs, Delta: delta, Index: index, Semantic: semantic, blobCache: cache}
}

// StoreCommit canonicalizes blob, decides anchor-vs-delta storage relative
// to parents[0]'s nearest reachable anchor, writes the blob, then records
// the commit row. parents must already exist in the index (InsertCommit
// enforces this); merge commits (len(parents) == 2) always anchor, since
// spec 4.D only defines the delta chain for linear, single-parent history.
func (c *ContextDatabase) StoreCommit(parents []cvchash.Hash, blob model.ContentBlob, meta model.CommitMetadata) (model.CognitiveCommit, error) {
	contentCanonical, err := hashcodec.CanonicalizeContentBlob(blob)
	if err != nil {
		return model.CognitiveCommit{}, err
	}

	var pred deltaengine.Predecessor
	if len(parents) == 1 {
		pred, err = c.nearestAnchor(parents[0])
		if err != nil {
			return model.CognitiveCommit{}, err
		}
	}

	contentHash, kind, err := c.Delta.Write(contentCanonical, pred)
	if err != nil {
		return model.CognitiveCommit{}, err
	}

	meta.IsDelta = kind == model.BlobDelta
	metaCanonical, err := hashcodec.CanonicalizeCommitMetadata(meta)
	if err != nil {
		return model.CognitiveCommit{}, err
	}
	commitHash := hashcodec.CommitHash(parents, contentCanonical, metaCanonical)

	commit := model.CognitiveCommit{
		CommitHash:   commitHash,
		ParentHashes: append([]cvchash.Hash(nil), parents...),
		ContentHash:  contentHash,
		Metadata:     meta,
	}
	if err := c.Index.InsertCommit(commit); err != nil {
		return model.CognitiveCommit{}, err
	}
	return commit, nil
}

// nearestAnchor walks the first-parent chain from parentHash, counting
// commits, until it finds a commit whose blob is stored as an anchor (or
// runs out of history). Grounded on
// modules/zeta/object/commit_walker.go's first-parent walk, simplified
// from a general iterator to a direct loop since contextdb only ever
// needs the nearest anchor, not the full chain.
func (c *ContextDatabase) nearestAnchor(parentHash cvchash.Hash) (deltaengine.Predecessor, error) {
	cur := parentHash
	depth := 0
	for {
		commit, err := c.Index.GetCommit(cur)
		if err != nil {
			return deltaengine.Predecessor{}, err
		}
		rec, err := c.Blobs.Get(commit.ContentHash)
		if err != nil {
			return deltaengine.Predecessor{}, cvcerr.NewIoError("contextdb.nearest_anchor", err)
		}
		if rec.Kind == model.BlobAnchor {
			anchorCanonical, err := c.Delta.Reconstruct(commit.ContentHash)
			if err != nil {
				return deltaengine.Predecessor{}, err
			}
			return deltaengine.Predecessor{
				HasAnchor:          true,
				AnchorHash:         commit.ContentHash,
				AnchorCanonical:    anchorCanonical,
				AnchorCompressed:   int64(len(rec.Compressed)),
				CommitsSinceAnchor: depth,
			}, nil
		}
		if len(commit.ParentHashes) == 0 {
			// A delta-kind genesis blob should never occur; treat as "no anchor
			// found" rather than panic, forcing the caller back to an anchor.
			return deltaengine.Predecessor{}, nil
		}
		cur = commit.ParentHashes[0]
		depth++
	}
}

// RetrieveBlob reconstructs and digest-verifies the ContentBlob stored
// under contentHash, serving from blobCache when present.
func (c *ContextDatabase) RetrieveBlob(contentHash cvchash.Hash) (model.ContentBlob, error) {
	key := contentHash.String()
	if c.blobCache != nil {
		if cached, ok := c.blobCache.Get(key); ok {
			return cached, nil
		}
	}
	canonical, err := c.Delta.Reconstruct(contentHash)
	if err != nil {
		return model.ContentBlob{}, err
	}
	if cvchash.Sum256(canonical) != contentHash {
		return model.ContentBlob{}, cvcerr.NewIntegrityError(contentHash.String(), "reconstructed bytes do not match content hash")
	}
	blob, err := hashcodec.ParseContentBlob(canonical)
	if err != nil {
		return model.ContentBlob{}, err
	}
	if c.blobCache != nil {
		c.blobCache.Set(key, blob, 1)
	}
	return blob, nil
}

// GetCommit loads a commit row by full hash.
func (c *ContextDatabase) GetCommit(hash cvchash.Hash) (model.CognitiveCommit, error) {
	return c.Index.GetCommit(hash)
}

// ResolveCommit resolves a full or short (>= 8 hex) commit hash prefix to
// exactly one commit, returning NotFoundError for zero matches and
// AmbiguousError (carrying every match) for more than one.
func (c *ContextDatabase) ResolveCommit(prefixOrHash string) (cvchash.Hash, error) {
	if cvchash.ValidateHex(prefixOrHash) {
		if _, err := c.Index.GetCommit(cvchash.New(prefixOrHash)); err != nil {
			return cvchash.ZeroHash, err
		}
		return cvchash.New(prefixOrHash), nil
	}
	if !cvchash.ValidatePrefixHex(prefixOrHash) {
		return cvchash.ZeroHash, cvcerr.NewNotFoundError("commit", prefixOrHash)
	}
	matches, err := c.Index.SearchCommitPrefix(prefixOrHash)
	if err != nil {
		return cvchash.ZeroHash, err
	}
	switch len(matches) {
	case 0:
		return cvchash.ZeroHash, cvcerr.NewNotFoundError("commit", prefixOrHash)
	case 1:
		return matches[0], nil
	default:
		return cvchash.ZeroHash, cvcerr.NewAmbiguousError(prefixOrHash, cvchash.Strings(matches))
	}
}

// GetBranch loads a branch pointer by name.
func (c *ContextDatabase) GetBranch(name string) (model.BranchPointer, error) {
	return c.Index.GetBranch(name)
}

// ListBranches returns every branch pointer, lexicographically sorted.
func (c *ContextDatabase) ListBranches() ([]model.BranchPointer, error) {
	return c.Index.ListBranches()
}

// CreateBranch records a new branch pointer.
func (c *ContextDatabase) CreateBranch(b model.BranchPointer) error {
	return c.Index.CreateBranch(b)
}

// SetBranchHead unconditionally advances a branch's head, for the
// single-session Engine path.
func (c *ContextDatabase) SetBranchHead(name string, head cvchash.Hash) error {
	return c.Index.SetBranchHead(name, head)
}

// CompareAndSwapBranchHead advances a branch's head only if it still
// equals expectedPrev.
func (c *ContextDatabase) CompareAndSwapBranchHead(name string, expectedPrev, newHead cvchash.Hash) error {
	return c.Index.CompareAndSwapBranchHead(name, expectedPrev, newHead)
}

// Ancestors returns every commit reachable backwards from hash.
func (c *ContextDatabase) Ancestors(hash cvchash.Hash) ([]cvchash.Hash, error) {
	return c.Index.Ancestors(hash)
}

// Descendants returns every commit reachable forwards from hash.
func (c *ContextDatabase) Descendants(hash cvchash.Hash) ([]cvchash.Hash, error) {
	return c.Index.Descendants(hash)
}

// SetGitLink records a Git commit SHA <-> cognitive commit hash link.
func (c *ContextDatabase) SetGitLink(gitSHA string, commitHash cvchash.Hash) error {
	return c.Index.SetGitLink(gitSHA, commitHash)
}

// GetGitLink resolves a Git commit SHA to its linked cognitive commit.
func (c *ContextDatabase) GetGitLink(gitSHA string) (cvchash.Hash, error) {
	return c.Index.GetGitLink(gitSHA)
}

// HasAnyCommit reports whether the repository already has a genesis
// commit.
func (c *ContextDatabase) HasAnyCommit() (bool, error) {
	return c.Index.HasAnyCommit()
}

// GC removes every blob in the object store not referenced by any commit
// row, returning the content hashes it deleted.
func (c *ContextDatabase) GC() ([]cvchash.Hash, error) {
	hashes, err := c.Index.AllContentHashes()
	if err != nil {
		return nil, err
	}
	keep := make(map[cvchash.Hash]bool, len(hashes))
	for _, h := range hashes {
		keep[h] = true
	}
	return c.Blobs.PruneOrphans(keep)
}

// Close releases the index database handle and the blob cache.
func (c *ContextDatabase) Close() error {
	if c.blobCache != nil {
		c.blobCache.Close()
	}
	return c.Index.Close()
}
