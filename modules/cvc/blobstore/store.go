// Package blobstore implements cvc's content-addressed on-disk store of
// compressed anchor and delta payloads. Grounded on the atomic write
// discipline of hugescm's modules/zeta/backend/file_storer.go (compress ->
// write to a temp file in an incoming/ dir -> fsync -> rename into the
// shard path), adapted to the two-level shard layout and binary blob
// header cvc's on-disk format specifies.
package blobstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
	"github.com/antgroup/cvc/modules/strengthen"
)

// headerSize is 1 (kind) + 8 (decompressed size, little-endian) + 32 (anchor hash).
const headerSize = 1 + 8 + cvchash.DigestSize

// Store is a content-addressed store of anchor/delta blob files under
// <root>/<hash[:2]>/<hash[2:]>.
type Store struct {
	root     string
	incoming string
}

// New returns a Store rooted at objectsDir, which must already exist (the
// caller creates the .cvc directory tree, typically via config.EnsureLayout).
func New(objectsDir string) *Store {
	return &Store{
		root:     objectsDir,
		incoming: filepath.Join(objectsDir, "incoming"),
	}
}

func (s *Store) path(h cvchash.Hash) string {
	encoded := h.String()
	return filepath.Join(s.root, encoded[:2], encoded[2:])
}

// Has reports whether content_hash is already stored.
func (s *Store) Has(h cvchash.Hash) bool {
	_, err := os.Stat(s.path(h))
	return err == nil
}

// Put writes a blob record. Idempotent by hash: concurrent writers of the
// same content_hash are safe because the payload is byte-identical and the
// final rename is atomic (last-one-wins).
func (s *Store) Put(h cvchash.Hash, kind model.BlobKind, decompressedSize int64, anchorHash cvchash.Hash, compressed []byte) error {
	if err := os.MkdirAll(s.incoming, 0755); err != nil {
		return fmt.Errorf("blobstore: mkdir incoming: %w", err)
	}
	fd, err := os.CreateTemp(s.incoming, "tmp-")
	if err != nil {
		return fmt.Errorf("blobstore: create temp: %w", err)
	}
	incomingPath := fd.Name()
	if err := writeBlobFile(fd, kind, decompressedSize, anchorHash, compressed); err != nil {
		_ = fd.Close()
		_ = os.Remove(incomingPath)
		return err
	}
	if err := fd.Sync(); err != nil {
		_ = fd.Close()
		_ = os.Remove(incomingPath)
		return fmt.Errorf("blobstore: fsync: %w", err)
	}
	if err := fd.Close(); err != nil {
		_ = os.Remove(incomingPath)
		return fmt.Errorf("blobstore: close: %w", err)
	}
	objectPath := s.path(h)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0755); err != nil {
		_ = os.Remove(incomingPath)
		return fmt.Errorf("blobstore: mkdir shard: %w", err)
	}
	if err := finalize(incomingPath, objectPath); err != nil {
		_ = os.Remove(incomingPath)
		return err
	}
	return nil
}

func finalize(oldpath, newpath string) error {
	if err := strengthen.FinalizeObject(oldpath, newpath); err != nil {
		return fmt.Errorf("blobstore: finalize: %w", err)
	}
	_ = os.Chmod(newpath, 0444)
	return nil
}

func writeBlobFile(w io.Writer, kind model.BlobKind, decompressedSize int64, anchorHash cvchash.Hash, compressed []byte) error {
	if _, err := w.Write([]byte{byte(kind)}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, decompressedSize); err != nil {
		return err
	}
	if _, err := w.Write(anchorHash[:]); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

// Record describes a stored blob's parsed header plus its raw (still
// compressed) payload bytes.
type Record struct {
	model.StoredBlobRecord
	Compressed []byte
}

// Get reads and parses a blob file by content hash.
func (s *Store) Get(h cvchash.Hash) (*Record, error) {
	raw, err := os.ReadFile(s.path(h))
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("blobstore: %s: truncated header", h)
	}
	kind := model.BlobKind(raw[0])
	size := int64(binary.LittleEndian.Uint64(raw[1:9]))
	var anchorHash cvchash.Hash
	copy(anchorHash[:], raw[9:9+cvchash.DigestSize])
	return &Record{
		StoredBlobRecord: model.StoredBlobRecord{
			ContentHash:      h,
			Kind:             kind,
			DecompressedSize: size,
			AnchorHash:       anchorHash,
		},
		Compressed: raw[headerSize:],
	}, nil
}

// Search resolves a hex prefix (>= 8 characters) to every matching stored
// content hash, by walking the two shard levels under root. Callers decide
// NotFound (zero matches) vs. Ambiguous (more than one match).
func (s *Store) Search(prefix string) ([]cvchash.Hash, error) {
	var matches []cvchash.Hash
	shardPrefix := prefix
	if len(shardPrefix) > 2 {
		shardPrefix = shardPrefix[:2]
	}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path == s.root {
				return nil
			}
			rel, _ := filepath.Rel(s.root, path)
			if rel == "incoming" {
				return fs.SkipDir
			}
			if !strings.HasPrefix(rel, shardPrefix) && !strings.HasPrefix(shardPrefix, rel) {
				return fs.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(s.root, path)
		full := strings.ReplaceAll(rel, string(filepath.Separator), "")
		if !cvchash.ValidateHex(full) {
			return nil
		}
		if strings.HasPrefix(full, prefix) {
			matches = append(matches, cvchash.New(full))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Iter walks every stored content hash. The sequence is finite and not
// restartable mid-read after a store mutation, matching the spec's
// iteration contract.
func (s *Store) Iter(fn func(cvchash.Hash) error) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			rel, _ := filepath.Rel(s.root, path)
			if rel == "incoming" {
				return fs.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(s.root, path)
		full := strings.ReplaceAll(rel, string(filepath.Separator), "")
		if !cvchash.ValidateHex(full) {
			return nil
		}
		return fn(cvchash.New(full))
	})
}

// Remove deletes a single stored blob by hash. Used to discard a
// partially-written blob that failed its post-write integrity check.
func (s *Store) Remove(h cvchash.Hash) error {
	p := s.path(h)
	if err := os.Chmod(p, 0644); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PruneOrphans removes every stored blob whose hash is not present in keep.
// Advisory: gc never runs automatically, only on explicit operator request.
func (s *Store) PruneOrphans(keep map[cvchash.Hash]bool) (removed []cvchash.Hash, err error) {
	var toRemove []cvchash.Hash
	err = s.Iter(func(h cvchash.Hash) error {
		if !keep[h] {
			toRemove = append(toRemove, h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, h := range toRemove {
		p := s.path(h)
		if err := os.Chmod(p, 0644); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, h)
	}
	return removed, nil
}
