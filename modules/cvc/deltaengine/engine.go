// Package deltaengine decides, at commit time, whether a ContentBlob's
// canonical bytes are stored as a full Zstandard-compressed anchor or as a
// Zstandard dictionary-compressed delta against the nearest reachable
// anchor, and reconstructs full content by replaying a delta chain back to
// its anchor. Grounded on the sync.Pool-managed zstd encoder/decoder idiom
// in modules/streamio/zstd.go, extended with dictionary compression (which
// that pooled idiom does not wire in) via klauspost/compress/zstd's
// WithEncoderDictRaw/WithDecoderDictRaw options directly, which take the
// anchor's raw canonical bytes as the dictionary content.
package deltaengine

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/antgroup/cvc/modules/cvc/blobstore"
	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
)

// Config carries the decision-rule thresholds from spec 4.D / 6.4.
type Config struct {
	AnchorInterval int     // max commits between anchors on a linear history
	DeltaRatio     float64 // delta abandoned if compressed size > ratio * anchor's compressed size
	DeltaMinSize   int64   // below this raw canonical size, never delta
	Level          zstd.EncoderLevel
}

func DefaultConfig() Config {
	return Config{
		AnchorInterval: 10,
		DeltaRatio:     0.5,
		DeltaMinSize:   4 * 1024,
		Level:          zstd.SpeedDefault,
	}
}

// Engine writes and reconstructs content-addressed blobs through a
// blobstore.Store.
type Engine struct {
	store *blobstore.Store
	cfg   Config
}

func New(store *blobstore.Store, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// Predecessor describes the blob the DeltaEngine may delta against: the
// nearest anchor reachable from the commit being written, and how many
// commits separate that anchor from the candidate.
type Predecessor struct {
	HasAnchor          bool
	AnchorHash         cvchash.Hash
	AnchorCanonical    []byte // decompressed anchor bytes, used as the dictionary
	AnchorCompressed   int64  // stored compressed size of the anchor, for the ratio guard
	CommitsSinceAnchor int
}

// Write stores canonical (already-canonicalized ContentBlob bytes),
// choosing anchor or delta per the decision rule in spec 4.D, and returns
// the resulting content hash and stored kind. Write is idempotent: if
// content_hash already exists, the existing record is returned unchanged.
func (e *Engine) Write(canonical []byte, pred Predecessor) (cvchash.Hash, model.BlobKind, error) {
	contentHash := cvchash.Sum256(canonical)
	if e.store.Has(contentHash) {
		rec, err := e.store.Get(contentHash)
		if err != nil {
			return contentHash, 0, cvcerr.NewIoError("deltaengine.write.reget", err)
		}
		return contentHash, rec.Kind, nil
	}

	useAnchor := !pred.HasAnchor || pred.CommitsSinceAnchor+1 >= e.cfg.AnchorInterval || int64(len(canonical)) < e.cfg.DeltaMinSize

	if !useAnchor {
		deltaCompressed, err := compress(canonical, pred.AnchorCanonical, e.cfg.Level)
		if err != nil {
			return contentHash, 0, cvcerr.NewIoError("deltaengine.write.compress_delta", err)
		}
		if pred.AnchorCompressed > 0 && float64(len(deltaCompressed)) > e.cfg.DeltaRatio*float64(pred.AnchorCompressed) {
			useAnchor = true // size guard failed, fall back to anchor
		} else {
			if err := e.store.Put(contentHash, model.BlobDelta, int64(len(canonical)), pred.AnchorHash, deltaCompressed); err != nil {
				return contentHash, 0, cvcerr.NewIoError("deltaengine.write.put_delta", err)
			}
			if err := e.verify(contentHash, canonical); err != nil {
				return contentHash, 0, err
			}
			return contentHash, model.BlobDelta, nil
		}
	}

	anchorCompressed, err := compress(canonical, nil, e.cfg.Level)
	if err != nil {
		return contentHash, 0, cvcerr.NewIoError("deltaengine.write.compress_anchor", err)
	}
	if err := e.store.Put(contentHash, model.BlobAnchor, int64(len(canonical)), cvchash.ZeroHash, anchorCompressed); err != nil {
		return contentHash, 0, cvcerr.NewIoError("deltaengine.write.put_anchor", err)
	}
	if err := e.verify(contentHash, canonical); err != nil {
		return contentHash, 0, err
	}
	return contentHash, model.BlobAnchor, nil
}

// verify implements the write-time invariant: after writing,
// sha256(canonical(reconstruct(content_hash))) == content_hash. On
// mismatch the write is aborted and the partially-written blob deleted.
func (e *Engine) verify(contentHash cvchash.Hash, wantCanonical []byte) error {
	got, err := e.Reconstruct(contentHash)
	if err != nil || !bytes.Equal(got, wantCanonical) {
		_ = e.store.Remove(contentHash)
		return cvcerr.NewIntegrityError(contentHash.String(), "post-write reconstruction mismatch")
	}
	return nil
}

// Reconstruct returns the canonical ContentBlob bytes for content_hash,
// decompressing directly if it is an anchor or replaying the delta chain
// back to its anchor otherwise.
func (e *Engine) Reconstruct(contentHash cvchash.Hash) ([]byte, error) {
	rec, err := e.store.Get(contentHash)
	if err != nil {
		return nil, cvcerr.NewNotFoundError("blob", contentHash.String())
	}
	switch rec.Kind {
	case model.BlobAnchor:
		return decompress(rec.Compressed, nil, rec.DecompressedSize)
	case model.BlobDelta:
		anchorCanonical, err := e.Reconstruct(rec.AnchorHash)
		if err != nil {
			return nil, err
		}
		return decompress(rec.Compressed, anchorCanonical, rec.DecompressedSize)
	default:
		return nil, cvcerr.NewIntegrityError(contentHash.String(), fmt.Sprintf("unknown blob kind %d", rec.Kind))
	}
}

// rawDictID is the dictionary id written into delta frames, under which
// the decoder registers the anchor's raw canonical bytes.
const rawDictID = 1

func compress(payload, dict []byte, level zstd.EncoderLevel) ([]byte, error) {
	var opts []zstd.EOption
	opts = append(opts, zstd.WithEncoderLevel(level))
	if len(dict) > 0 {
		opts = append(opts, zstd.WithEncoderDictRaw(rawDictID, dict))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

func decompress(compressed, dict []byte, decompressedSize int64) ([]byte, error) {
	var opts []zstd.DOption
	if len(dict) > 0 {
		opts = append(opts, zstd.WithDecoderDictRaw(rawDictID, dict))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(compressed, make([]byte, 0, decompressedSize))
	if err != nil {
		return nil, err
	}
	return out, nil
}
