// Package merge implements cvc's MergeResolver: locating the lowest
// common ancestor of two branches and combining their message sets into a
// merge commit. Grounded on
// modules/zeta/object/commit_walker_bfs.go's bfsCommitIterator, adapted
// from a single-sided breadth-first walk to a simultaneous two-sided one
// so the search stops at the first frontier intersection rather than
// computing each side's full ancestor set.
package merge

import (
	"github.com/antgroup/cvc/modules/cvc/hashcodec"
	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
)

// CommitReader is the subset of contextdb.ContextDatabase the resolver
// needs: enough to walk parent edges without importing the full facade
// (avoiding an import cycle, since contextdb may one day want to call
// into merge for its own convenience methods).
type CommitReader interface {
	GetCommit(hash cvchash.Hash) (model.CognitiveCommit, error)
}

// Resolver computes merges between two branch heads.
type Resolver struct {
	db CommitReader
}

func New(db CommitReader) *Resolver {
	return &Resolver{db: db}
}

// LowestCommonAncestor returns the nearest commit reachable from both a
// and b by simultaneous breadth-first expansion of their parent edges. It
// returns *cvcerr.NoCommonAncestorError if the two histories are disjoint.
func (r *Resolver) LowestCommonAncestor(a, b cvchash.Hash) (cvchash.Hash, error) {
	if a == b {
		return a, nil
	}
	seenA := map[cvchash.Hash]bool{a: true}
	seenB := map[cvchash.Hash]bool{b: true}
	frontierA := []cvchash.Hash{a}
	frontierB := []cvchash.Hash{b}

	for len(frontierA) > 0 || len(frontierB) > 0 {
		if found, ok, err := r.expand(&frontierA, seenA, seenB); err != nil {
			return cvchash.ZeroHash, err
		} else if ok {
			return found, nil
		}
		if found, ok, err := r.expand(&frontierB, seenB, seenA); err != nil {
			return cvchash.ZeroHash, err
		} else if ok {
			return found, nil
		}
	}
	return cvchash.ZeroHash, cvcerr.NewNoCommonAncestorError(a.String(), b.String())
}

// expand advances one BFS frontier by one level, recording newly-seen
// parents into own and returning the first hash already present in
// other, if any.
func (r *Resolver) expand(frontier *[]cvchash.Hash, own, other map[cvchash.Hash]bool) (cvchash.Hash, bool, error) {
	var next []cvchash.Hash
	for _, h := range *frontier {
		commit, err := r.db.GetCommit(h)
		if err != nil {
			return cvchash.ZeroHash, false, err
		}
		for _, p := range commit.ParentHashes {
			if other[p] {
				return p, true, nil
			}
			if !own[p] {
				own[p] = true
				next = append(next, p)
			}
		}
	}
	*frontier = next
	return cvchash.ZeroHash, false, nil
}

// Merge combines base, ours and theirs into the union
// base ∪ (ours \ base) ∪ (theirs \ base), keyed by each message's
// canonical content hash (spec 4.F): a message present in base and
// unchanged on both sides appears once; a message added on either side
// appears once; a message present on both sides with identical content
// appears once even if added independently. Messages are ordered by
// first appearance across base, then ours, then theirs; ties within a
// side keep that side's original order. synthesize, if non-empty, is
// appended as an additional reasoning_trace note rather than a message.
func Merge(base, ours, theirs model.ContentBlob, synthesize string) model.ContentBlob {
	baseKeys := messageKeySet(base.Messages)

	out := model.ContentBlob{}
	seen := make(map[cvchash.Hash]bool)
	appendUnseen := func(msgs []model.Message, skipIfInBase bool) {
		for _, m := range msgs {
			key := hashcodec.MessageHash(m)
			if skipIfInBase && baseKeys[key] {
				continue
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Messages = append(out.Messages, m)
		}
	}
	appendUnseen(base.Messages, false)
	appendUnseen(ours.Messages, true)
	appendUnseen(theirs.Messages, true)

	trace := ours.ReasoningTrace
	if theirs.ReasoningTrace != "" && theirs.ReasoningTrace != trace {
		if trace != "" {
			trace += "\n"
		}
		trace += theirs.ReasoningTrace
	}
	if synthesize != "" {
		if trace != "" {
			trace += "\n"
		}
		trace += synthesize
	}
	out.ReasoningTrace = trace
	out.ToolOutputs = mergeStringMaps(ours.ToolOutputs, theirs.ToolOutputs)
	out.SourceFiles = mergeStringMaps(ours.SourceFiles, theirs.SourceFiles)
	return out
}

func messageKeySet(msgs []model.Message) map[cvchash.Hash]bool {
	set := make(map[cvchash.Hash]bool, len(msgs))
	for _, m := range msgs {
		set[hashcodec.MessageHash(m)] = true
	}
	return set
}

// mergeStringMaps unions two optional string maps; theirs wins key
// conflicts, to match the "ours, then theirs" append order used for
// messages above.
func mergeStringMaps(ours, theirs map[string]string) map[string]string {
	if len(ours) == 0 && len(theirs) == 0 {
		return nil
	}
	out := make(map[string]string, len(ours)+len(theirs))
	for k, v := range ours {
		out[k] = v
	}
	for k, v := range theirs {
		out[k] = v
	}
	return out
}
