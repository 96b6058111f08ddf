// Package hashcodec implements canonical serialization and SHA-256 digest
// computation for cvc's versioned values (ContentBlob, CommitMetadata).
// Two values are semantically equal iff their canonical bytes are
// byte-equal: keys ordered lexicographically, no insignificant whitespace,
// UTF-8 NFC for string fields, fixed numeric representation, and absent
// optional fields omitted entirely rather than written as null.
//
// Grounded on the Encoder/Hash idiom in hugescm's modules/zeta/object
// package (encode to a buffer, then hash the bytes actually written),
// adapted from a git-object text format to a small canonical JSON dialect
// because cvc's payload is a message list, not a file tree.
package hashcodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
)

// node is the internal canonical value tree. Only the variants cvc needs
// are implemented; there is no generic "any" canonicalizer because the
// spec intentionally replaces opaque dictionaries with discriminated
// records (see SPEC_FULL.md's design-notes carryover).
type node interface {
	write(buf *bytes.Buffer)
}

type nObject struct {
	keys   []string
	values map[string]node
}

func newObject() *nObject {
	return &nObject{values: make(map[string]node)}
}

// set adds a key unconditionally; callers check "absent" before calling.
func (o *nObject) set(key string, v node) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *nObject) write(buf *bytes.Buffer) {
	sorted := append([]string(nil), o.keys...)
	sort.Strings(sorted)
	buf.WriteByte('{')
	for i, k := range sorted {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(buf, k)
		buf.WriteByte(':')
		o.values[k].write(buf)
	}
	buf.WriteByte('}')
}

type nArray struct {
	items []node
}

func (a *nArray) write(buf *bytes.Buffer) {
	buf.WriteByte('[')
	for i, it := range a.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		it.write(buf)
	}
	buf.WriteByte(']')
}

type nString string

func (s nString) write(buf *bytes.Buffer) {
	writeCanonicalString(buf, string(s))
}

type nInt int64

func (n nInt) write(buf *bytes.Buffer) {
	buf.WriteString(strconv.FormatInt(int64(n), 10))
}

type nFloat float64

func (n nFloat) write(buf *bytes.Buffer) {
	buf.WriteString(strconv.FormatFloat(float64(n), 'g', -1, 64))
}

type nBool bool

func (b nBool) write(buf *bytes.Buffer) {
	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	normalized := norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

func stringArray(ss []string) *nArray {
	a := &nArray{items: make([]node, len(ss))}
	for i, s := range ss {
		a.items[i] = nString(s)
	}
	return a
}

func stringMap(m map[string]string) *nObject {
	o := newObject()
	for k, v := range m {
		o.set(k, nString(v))
	}
	return o
}

func messageNode(m model.Message) *nObject {
	o := newObject()
	o.set("role", nString(string(m.Role)))
	o.set("content", nString(m.Content))
	if m.Name != "" {
		o.set("name", nString(m.Name))
	}
	if m.ToolCallID != "" {
		o.set("tool_call_id", nString(m.ToolCallID))
	}
	if len(m.Attachments) > 0 {
		o.set("attachments", stringArray(m.Attachments))
	}
	return o
}

func checkFinite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return cvcerr.NewEncodingError("non-finite float value %v", f)
	}
	return nil
}

// contentBlobNode builds the canonical value tree for a ContentBlob. It is
// unexported; callers outside this package get canonical bytes only.
func contentBlobNode(b model.ContentBlob) (*nObject, error) {
	o := newObject()
	msgs := &nArray{items: make([]node, len(b.Messages))}
	for i, m := range b.Messages {
		msgs.items[i] = messageNode(m)
	}
	o.set("messages", msgs)
	if b.ReasoningTrace != "" {
		o.set("reasoning_trace", nString(b.ReasoningTrace))
	}
	if len(b.ToolOutputs) > 0 {
		o.set("tool_outputs", stringMap(b.ToolOutputs))
	}
	if len(b.SourceFiles) > 0 {
		o.set("source_files", stringMap(b.SourceFiles))
	}
	if b.TokenCount != nil {
		o.set("token_count", nInt(*b.TokenCount))
	}
	return o, nil
}

// CanonicalizeContentBlob returns the canonical byte representation of a
// ContentBlob. Semantically equal blobs always yield identical bytes.
func CanonicalizeContentBlob(b model.ContentBlob) ([]byte, error) {
	o, err := contentBlobNode(b)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	o.write(&buf)
	return buf.Bytes(), nil
}

func metadataNode(m model.CommitMetadata) (*nObject, error) {
	if err := checkFinite(m.TimestampSeconds); err != nil {
		return nil, err
	}
	o := newObject()
	o.set("timestamp_seconds", nFloat(m.TimestampSeconds))
	o.set("agent_id", nString(m.AgentID))
	o.set("mode", nString(string(m.Mode)))
	if m.Provider != "" {
		o.set("provider", nString(m.Provider))
	}
	if m.Model != "" {
		o.set("model", nString(m.Model))
	}
	if m.GitCommitSHA != "" {
		o.set("git_commit_sha", nString(m.GitCommitSHA))
	}
	if len(m.Tags) > 0 {
		tags := append([]string(nil), m.Tags...)
		sort.Strings(tags)
		o.set("tags", stringArray(tags))
	}
	o.set("message", nString(m.Message))
	o.set("commit_type", nString(string(m.CommitType)))
	o.set("is_delta", nBool(m.IsDelta))
	if m.RestoredFrom != "" {
		o.set("restored_from", nString(m.RestoredFrom))
	}
	if m.SourceBranch != "" {
		o.set("source_branch", nString(m.SourceBranch))
	}
	if m.TargetBranch != "" {
		o.set("target_branch", nString(m.TargetBranch))
	}
	if m.LCA != "" {
		o.set("lca", nString(m.LCA))
	}
	return o, nil
}

// CanonicalizeCommitMetadata returns the canonical byte representation of
// CommitMetadata.
func CanonicalizeCommitMetadata(m model.CommitMetadata) ([]byte, error) {
	o, err := metadataNode(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	o.write(&buf)
	return buf.Bytes(), nil
}

// SHA256Hex hashes canonical bytes and renders the digest as lowercase hex.
func SHA256Hex(b []byte) string {
	return cvchash.Sum256(b).String()
}

// CanonicalizeMessage returns the canonical byte representation of a
// single Message, exported for callers (the merge resolver) that key
// messages by content rather than by position.
func CanonicalizeMessage(m model.Message) []byte {
	var buf bytes.Buffer
	messageNode(m).write(&buf)
	return buf.Bytes()
}

// MessageHash hashes a single Message's canonical bytes, used by the merge
// resolver to de-duplicate messages across branches by content rather
// than by list position.
func MessageHash(m model.Message) cvchash.Hash {
	return cvchash.Sum256(CanonicalizeMessage(m))
}

// ParseContentBlob decodes canonical bytes back into a ContentBlob.
// Canonical bytes are a strict subset of JSON (sorted keys, standard
// string escaping, no insignificant whitespace), so a plain
// encoding/json.Unmarshal into the json-tagged model type round-trips
// it exactly; callers that need to re-verify a digest should re-run
// CanonicalizeContentBlob on the result rather than trust these bytes
// as canonical themselves.
func ParseContentBlob(canonical []byte) (model.ContentBlob, error) {
	var b model.ContentBlob
	if err := json.Unmarshal(canonical, &b); err != nil {
		return model.ContentBlob{}, cvcerr.NewEncodingError("parse canonical content blob: %v", err)
	}
	return b, nil
}

// ParseCommitMetadata decodes canonical bytes back into CommitMetadata.
func ParseCommitMetadata(canonical []byte) (model.CommitMetadata, error) {
	var m model.CommitMetadata
	if err := json.Unmarshal(canonical, &m); err != nil {
		return model.CommitMetadata{}, cvcerr.NewEncodingError("parse canonical commit metadata: %v", err)
	}
	return m, nil
}

// CommitHash implements the hash rule:
//
//	commit_hash = SHA256( sort_lex(parent_hashes) || canonical(ContentBlob) || canonical(metadata) )
func CommitHash(parents []cvchash.Hash, contentCanonical, metaCanonical []byte) cvchash.Hash {
	sorted := append([]cvchash.Hash(nil), parents...)
	cvchash.Sort(sorted)
	var buf bytes.Buffer
	for _, p := range sorted {
		buf.WriteString(p.String())
	}
	buf.Write(contentCanonical)
	buf.Write(metaCanonical)
	return cvchash.Sum256(buf.Bytes())
}
