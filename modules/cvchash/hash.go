// Package cvchash implements the 64-hex SHA-256 content and commit
// identifiers used throughout cvc. Grounded on the hash representation
// hugescm uses for its BLAKE3 object ids, switched to SHA-256 per the
// digest algorithm this store is built to.
package cvchash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
)

const (
	DigestSize = sha256.Size // 32
	HexSize    = DigestSize * 2

	reverseHexTable = "" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\x00\x01\x02\x03\x04\x05\x06\x07\x08\x09\xff\xff\xff\xff\xff\xff" +
		"\xff\x0a\x0b\x0c\x0d\x0e\x0f\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\x0a\x0b\x0c\x0d\x0e\x0f\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff" +
		"\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff"
)

// Hash is a SHA-256 digest: a content hash or a commit hash.
type Hash [DigestSize]byte

// ZeroHash is the Hash zero value: the anchor hash recorded for anchor
// blobs and the hash returned alongside errors. Genesis commits carry a
// nil parent slice, never ZeroHash.
var ZeroHash Hash

func (h Hash) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('"')
	buf.WriteString(h.String())
	buf.WriteByte('"')
	return buf.Bytes(), nil
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	hashBytes, _ := hex.DecodeString(s)
	copy(h[:], hashBytes)
	return nil
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	hashBytes, _ := hex.DecodeString(string(text))
	copy(h[:], hashBytes)
	return nil
}

// New returns a new Hash from a hexadecimal digest representation.
func New(s string) Hash {
	b, _ := hex.DecodeString(s)
	var h Hash
	copy(h[:], b)
	return h
}

// NewEx validates s as a full 64-hex digest before decoding it.
func NewEx(s string) (Hash, error) {
	if !ValidateHex(s) {
		return ZeroHash, fmt.Errorf("cvc: %q is not a valid hash", s)
	}
	return New(s), nil
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ValidateHex reports whether s is a syntactically valid full-length hex
// digest (64 characters, all hex digits).
func ValidateHex(s string) bool {
	if len(s) != HexSize {
		return false
	}
	for _, b := range []byte(s) {
		if c := reverseHexTable[b]; c > 0x0f {
			return false
		}
	}
	return true
}

// ValidatePrefixHex reports whether s is a syntactically valid hash prefix
// of at least 8 hex characters (the minimum accepted short-hash length).
func ValidatePrefixHex(s string) bool {
	if len(s) < 8 || len(s) > HexSize {
		return false
	}
	for _, b := range []byte(s) {
		if c := reverseHexTable[b]; c > 0x0f {
			return false
		}
	}
	return true
}

// Sort sorts a slice of Hashes into increasing lexicographic order, the
// order the commit hash rule requires for parent hashes (sort_lex).
func Sort(a []Hash) {
	sort.Sort(Slice(a))
}

// Slice attaches sort.Interface to []Hash in increasing byte order.
type Slice []Hash

func (p Slice) Len() int           { return len(p) }
func (p Slice) Less(i, j int) bool { return bytes.Compare(p[i][:], p[j][:]) < 0 }
func (p Slice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// Strings renders a Hash slice as hex strings, preserving order.
func Strings(hs []Hash) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.String()
	}
	return out
}

// Hasher wraps a streaming SHA-256 hash.Hash for incremental writes.
type Hasher struct {
	hash.Hash
}

func NewHasher() Hasher {
	return Hasher{Hash: sha256.New()}
}

func (h Hasher) Sum() (out Hash) {
	copy(out[:], h.Hash.Sum(nil))
	return
}

// Sum256 is a one-shot convenience wrapper for hashing an already-assembled
// byte slice.
func Sum256(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}
