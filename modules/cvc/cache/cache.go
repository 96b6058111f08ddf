// Package cache implements cvc's PersistentCache: a single JSON file
// recording the in-memory context window so an Engine session can resume
// without replaying the full commit history. Grounded on the same
// write-temp-then-rename idiom as blobstore and semanticstore; a missing
// cache is not an error and a corrupt one is reported as a
// CacheCorruptError for the caller to log, never a fatal condition, since
// the cache is a resume hint, not a source of truth (the IndexDB/BlobStore
// pair is authoritative).
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/model"
)

// State is the full content of context_cache.json.
type State struct {
	Messages         []model.Message `json:"messages"`
	TimestampSeconds float64         `json:"timestamp_seconds"`
	Mode             model.Mode      `json:"mode"`
	Branch           string          `json:"branch"`
}

// Cache wraps a single context_cache.json file.
type Cache struct {
	path string
}

// Open returns a Cache bound to path (typically <repo>/.cvc/context_cache.json).
// Open performs no I/O; the file is created lazily on first Save.
func Open(path string) *Cache {
	return &Cache{path: path}
}

// Load reads the cache. A missing file returns a zero State, false, nil.
// A corrupt file returns a zero State, false and a *cvcerr.CacheCorruptError
// the caller should log; callers must treat both cases identically
// (fall back to the last committed state), never as fatal.
func (c *Cache) Load() (State, bool, error) {
	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, cvcerr.NewCacheCorruptError(c.path, err.Error())
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, false, cvcerr.NewCacheCorruptError(c.path, err.Error())
	}
	return s, true, nil
}

// Save atomically replaces the cache contents.
func (c *Cache) Save(s State) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return cvcerr.NewIoError("cache.save.mkdir", err)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return cvcerr.NewEncodingError("marshal cache state: %v", err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-context-cache-")
	if err != nil {
		return cvcerr.NewIoError("cache.save.tempfile", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("cache.save.write", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("cache.save.sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("cache.save.close", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return cvcerr.NewIoError("cache.save.rename", err)
	}
	return nil
}

// Clear removes the cache file. Absence is not an error.
func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return cvcerr.NewIoError("cache.clear", err)
	}
	return nil
}
