// Package model defines the data types versioned by cvc: messages, content
// blobs, commit metadata and the commit/branch records built from them.
// These are discriminated records with explicit enum variants, not opaque
// dictionaries, per the canonicalization contract in modules/cvc/hashcodec.
package model

import "github.com/antgroup/cvc/modules/cvchash"

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Mode labels which front-end originated a commit. Informational only.
type Mode string

const (
	ModeCLI     Mode = "cli"
	ModeProxy   Mode = "proxy"
	ModeMCP     Mode = "mcp"
	ModeUnknown Mode = "unknown"
)

// CommitType discriminates the provenance of a commit.
type CommitType string

const (
	CommitGenesis    CommitType = "genesis"
	CommitCheckpoint CommitType = "checkpoint"
	CommitAnchor     CommitType = "anchor"
	CommitRollback   CommitType = "rollback"
	CommitMerge      CommitType = "merge"
	CommitAnalysis   CommitType = "analysis"
	CommitGeneration CommitType = "generation"
)

// Message is a single typed turn in a conversation window. Messages are
// append-only within a window. JSON tags match the canonical field names
// in modules/cvc/hashcodec, so canonical bytes decode directly into this
// type with encoding/json.
type Message struct {
	Role        Role     `json:"role"`
	Content     string   `json:"content"`
	Name        string   `json:"name,omitempty"`
	ToolCallID  string   `json:"tool_call_id,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// ContentBlob is the payload of one commit: the full conversation state
// plus optional side channels a front-end may attach.
type ContentBlob struct {
	Messages       []Message         `json:"messages"`
	ReasoningTrace string            `json:"reasoning_trace,omitempty"`
	ToolOutputs    map[string]string `json:"tool_outputs,omitempty"`
	SourceFiles    map[string]string `json:"source_files,omitempty"`
	TokenCount     *int64            `json:"token_count,omitempty"`
}

// CommitMetadata carries the provenance and classification of a commit.
type CommitMetadata struct {
	TimestampSeconds float64    `json:"timestamp_seconds"`
	AgentID          string     `json:"agent_id"`
	Mode             Mode       `json:"mode"`
	Provider         string     `json:"provider,omitempty"`
	Model            string     `json:"model,omitempty"`
	GitCommitSHA     string     `json:"git_commit_sha,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Message          string     `json:"message"`
	CommitType       CommitType `json:"commit_type"`
	IsDelta          bool       `json:"is_delta"`
	// RestoredFrom is set only on rollback commits: the target commit hash
	// the rollback replays.
	RestoredFrom string `json:"restored_from,omitempty"`
	// Merge-only fields, empty on non-merge commits.
	SourceBranch string `json:"source_branch,omitempty"`
	TargetBranch string `json:"target_branch,omitempty"`
	LCA          string `json:"lca,omitempty"`
}

// CognitiveCommit is an immutable, content-addressed snapshot of a
// conversation state.
type CognitiveCommit struct {
	CommitHash   cvchash.Hash
	ParentHashes []cvchash.Hash
	ContentHash  cvchash.Hash
	Metadata     CommitMetadata
}

// BranchPointer is a named mutable reference to a head commit.
type BranchPointer struct {
	Name        string
	HeadHash    cvchash.Hash
	CreatedAt   float64
	Description string
}

// BlobKind discriminates anchor vs. delta storage of a content-addressed
// blob.
type BlobKind uint8

const (
	BlobAnchor BlobKind = 0x01
	BlobDelta  BlobKind = 0x02
)

// StoredBlobRecord describes how one content_hash is physically stored.
type StoredBlobRecord struct {
	ContentHash      cvchash.Hash
	Kind             BlobKind
	DecompressedSize int64
	AnchorHash       cvchash.Hash // zero for anchors
	PredecessorHash  cvchash.Hash // not in the on-disk blob header; zero for every kind as read back
}
