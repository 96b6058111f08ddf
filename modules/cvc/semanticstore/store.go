// Package semanticstore implements cvc's optional embedding-based
// similarity recall over commit summaries. Grounded on suju297-mem's
// internal/store embeddings (JSON-encoded vector persistence) and
// vector_search (brute-force cosine similarity) — no repo in the reference
// pack depends on an external vector database, so a self-contained
// brute-force store is the idiomatic choice here too. The store is
// advisory: absence, failure, or staleness must never block commit or
// restore (spec §4.E), so every exported method that can fail returns an
// error the caller is expected to log and swallow rather than propagate.
package semanticstore

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/antgroup/cvc/modules/cvcerr"
)

// entry is one (commit_hash, summary, vector) triple.
type entry struct {
	CommitHash string    `json:"commit_hash"`
	Summary    string    `json:"summary"`
	Vector     []float64 `json:"vector"`
}

// Store is a JSON-file-backed brute-force nearest-neighbour index. Not
// safe for concurrent use across processes; cvc's single-writer-per-repo
// model (spec §5) makes that acceptable.
type Store struct {
	path    string
	entries map[string]entry
}

// Open loads (or initializes) the store at dir/vectors.json, where dir is
// typically <repo>/.cvc/chroma.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, cvcerr.NewIoError("semanticstore.mkdir", err)
	}
	path := filepath.Join(dir, "vectors.json")
	s := &Store{path: path, entries: make(map[string]entry)}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, cvcerr.NewIoError("semanticstore.read", err)
	}
	var list []entry
	if err := json.Unmarshal(raw, &list); err != nil {
		// A corrupt vector index is advisory data: start empty rather than
		// fail the caller.
		return s, nil
	}
	for _, e := range list {
		s.entries[e.CommitHash] = e
	}
	return s, nil
}

// Upsert records (or replaces) the summary and vector for commitHash.
func (s *Store) Upsert(commitHash, summary string, vector []float64) error {
	s.entries[commitHash] = entry{CommitHash: commitHash, Summary: summary, Vector: append([]float64(nil), vector...)}
	return s.flush()
}

func (s *Store) flush() error {
	list := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CommitHash < list[j].CommitHash })
	raw, err := json.Marshal(list)
	if err != nil {
		return cvcerr.NewEncodingError("marshal vector index: %v", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "tmp-vectors-")
	if err != nil {
		return cvcerr.NewIoError("semanticstore.flush.tempfile", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("semanticstore.flush.write", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("semanticstore.flush.sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("semanticstore.flush.close", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("semanticstore.flush.rename", err)
	}
	return nil
}

// Neighbor is one nearest-neighbour result.
type Neighbor struct {
	CommitHash string
	Distance   float64 // 1 - cosine similarity; 0 is identical
}

// Nearest returns the k closest commit summaries to query by cosine
// distance, nearest first.
func (s *Store) Nearest(query []float64, k int) []Neighbor {
	queryNorm := vectorNorm(query)
	if queryNorm == 0 {
		return nil
	}
	out := make([]Neighbor, 0, len(s.entries))
	for hash, e := range s.entries {
		sim := cosineSimilarity(query, queryNorm, e.Vector)
		out = append(out, Neighbor{CommitHash: hash, Distance: 1 - sim})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if k >= 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

func cosineSimilarity(query []float64, queryNorm float64, candidate []float64) float64 {
	if len(candidate) != len(query) {
		return 0
	}
	dot := 0.0
	candidateNorm := 0.0
	for i, value := range query {
		dot += value * candidate[i]
		candidateNorm += candidate[i] * candidate[i]
	}
	if dot == 0 || candidateNorm == 0 {
		return 0
	}
	return dot / (queryNorm * math.Sqrt(candidateNorm))
}

func vectorNorm(vector []float64) float64 {
	sum := 0.0
	for _, value := range vector {
		sum += value * value
	}
	if sum == 0 {
		return 0
	}
	return math.Sqrt(sum)
}
