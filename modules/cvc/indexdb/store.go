// Package indexdb is cvc's transactional relational index: commits,
// branches, parent edges, Git<->CVC links, and refs. Grounded on
// suju297-mem's internal/store package (embedded schema.sql, modernc.org/sqlite
// pure-Go driver, a single-writer PRAGMA profile) rather than hugescm's own
// filesystem-based refs backend, which has no transactional-index
// equivalent for this spec's ancestry/branch-head query shape.
package indexdb

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/antgroup/cvc/modules/cvcerr"
	"github.com/antgroup/cvc/modules/cvchash"
	"github.com/antgroup/cvc/modules/model"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// DB is the transactional relational index backing cvc's commit graph.
type DB struct {
	db *sql.DB
}

// Open creates or opens the index database at path (typically
// <repo>/.cvc/cvc.db), applying the schema and single-writer PRAGMA
// profile.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cvcerr.NewIoError("indexdb.open", err)
	}
	sqlDB.SetMaxOpenConns(1) // single-writer, many-reader discipline (spec §5)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			return nil, cvcerr.NewIoError("indexdb.pragma", err)
		}
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		return nil, cvcerr.NewIoError("indexdb.schema", err)
	}
	if err := migrate(sqlDB); err != nil {
		return nil, cvcerr.NewIoError("indexdb.migrate", err)
	}
	return &DB{db: sqlDB}, nil
}

// migrate is forward-only, gated by a schema_version row in the meta
// table (spec §6.2).
func migrate(db *sql.DB) error {
	var current int
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&current)
	if err == sql.ErrNoRows {
		_, err = db.Exec(`INSERT INTO meta(key, value) VALUES ('schema_version', ?)`, schemaVersion)
		return err
	}
	if err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("indexdb: on-disk schema_version %d is newer than this build supports (%d)", current, schemaVersion)
	}
	// No migrations defined yet beyond version 1; future versions add
	// ALTER/CREATE statements here, gated on `current`.
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// HasAnyCommit reports whether the index already has a commit row,
// used to enforce the "exactly one genesis" invariant.
func (d *DB) HasAnyCommit() (bool, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(1) FROM commits`).Scan(&n); err != nil {
		return false, cvcerr.NewIoError("indexdb.has_any_commit", err)
	}
	return n > 0, nil
}

// InsertCommit upserts a commit row and its parent edges in one
// transaction. Duplicate commit_hash writes are no-ops (idempotent).
func (d *DB) InsertCommit(c model.CognitiveCommit) error {
	parentHashesJSON, err := json.Marshal(cvchash.Strings(c.ParentHashes))
	if err != nil {
		return cvcerr.NewEncodingError("marshal parent hashes: %v", err)
	}
	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return cvcerr.NewEncodingError("marshal metadata: %v", err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return cvcerr.NewIoError("indexdb.insert_commit.begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range c.ParentHashes {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(1) FROM commits WHERE commit_hash = ?`, p.String()).Scan(&exists); err != nil {
			return cvcerr.NewIoError("indexdb.insert_commit.check_parent", err)
		}
		if exists == 0 {
			return cvcerr.NewInvariantViolationError("parent %s of commit %s is not present in the index", p, c.CommitHash)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO commits(commit_hash, content_hash, parent_hashes_json, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(commit_hash) DO NOTHING
	`, c.CommitHash.String(), c.ContentHash.String(), string(parentHashesJSON), string(metadataJSON), c.Metadata.TimestampSeconds); err != nil {
		return cvcerr.NewIoError("indexdb.insert_commit.exec", err)
	}

	for _, p := range c.ParentHashes {
		if _, err := tx.Exec(`
			INSERT INTO parent_edges(child_hash, parent_hash) VALUES (?, ?)
			ON CONFLICT(child_hash, parent_hash) DO NOTHING
		`, c.CommitHash.String(), p.String()); err != nil {
			return cvcerr.NewIoError("indexdb.insert_commit.edge", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cvcerr.NewIoError("indexdb.insert_commit.commit_tx", err)
	}
	return nil
}

// GetCommit loads a single commit row by full hash.
func (d *DB) GetCommit(hash cvchash.Hash) (model.CognitiveCommit, error) {
	var contentHashStr, parentsJSON, metadataJSON string
	err := d.db.QueryRow(`
		SELECT content_hash, parent_hashes_json, metadata_json FROM commits WHERE commit_hash = ?
	`, hash.String()).Scan(&contentHashStr, &parentsJSON, &metadataJSON)
	if err == sql.ErrNoRows {
		return model.CognitiveCommit{}, cvcerr.NewNotFoundError("commit", hash.String())
	}
	if err != nil {
		return model.CognitiveCommit{}, cvcerr.NewIoError("indexdb.get_commit", err)
	}
	var parentStrs []string
	if err := json.Unmarshal([]byte(parentsJSON), &parentStrs); err != nil {
		return model.CognitiveCommit{}, cvcerr.NewEncodingError("unmarshal parent hashes: %v", err)
	}
	var parents []cvchash.Hash // nil for genesis, as StoreCommit receives it
	if len(parentStrs) > 0 {
		parents = make([]cvchash.Hash, len(parentStrs))
		for i, p := range parentStrs {
			parents[i] = cvchash.New(p)
		}
	}
	var meta model.CommitMetadata
	if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil {
		return model.CognitiveCommit{}, cvcerr.NewEncodingError("unmarshal metadata: %v", err)
	}
	return model.CognitiveCommit{
		CommitHash:   hash,
		ParentHashes: parents,
		ContentHash:  cvchash.New(contentHashStr),
		Metadata:     meta,
	}, nil
}

// SearchCommitPrefix returns every commit hash beginning with prefix,
// letting the caller distinguish NotFound (0 matches) from Ambiguous (>1).
func (d *DB) SearchCommitPrefix(prefix string) ([]cvchash.Hash, error) {
	rows, err := d.db.Query(`SELECT commit_hash FROM commits WHERE commit_hash LIKE ? || '%'`, prefix)
	if err != nil {
		return nil, cvcerr.NewIoError("indexdb.search_prefix", err)
	}
	defer rows.Close()
	var out []cvchash.Hash
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, cvcerr.NewIoError("indexdb.search_prefix.scan", err)
		}
		out = append(out, cvchash.New(h))
	}
	return out, rows.Err()
}

// GetBranch loads a branch pointer by name.
func (d *DB) GetBranch(name string) (model.BranchPointer, error) {
	var headStr, description string
	var createdAt float64
	err := d.db.QueryRow(`
		SELECT head_hash, created_at, description FROM branches WHERE name = ?
	`, name).Scan(&headStr, &createdAt, &description)
	if err == sql.ErrNoRows {
		return model.BranchPointer{}, cvcerr.NewNotFoundError("branch", name)
	}
	if err != nil {
		return model.BranchPointer{}, cvcerr.NewIoError("indexdb.get_branch", err)
	}
	return model.BranchPointer{
		Name:        name,
		HeadHash:    cvchash.New(headStr),
		CreatedAt:   createdAt,
		Description: description,
	}, nil
}

// ListBranches returns every branch, ordered lexicographically by name.
func (d *DB) ListBranches() ([]model.BranchPointer, error) {
	rows, err := d.db.Query(`SELECT name, head_hash, created_at, description FROM branches ORDER BY name ASC`)
	if err != nil {
		return nil, cvcerr.NewIoError("indexdb.list_branches", err)
	}
	defer rows.Close()
	var out []model.BranchPointer
	for rows.Next() {
		var name, headStr, description string
		var createdAt float64
		if err := rows.Scan(&name, &headStr, &createdAt, &description); err != nil {
			return nil, cvcerr.NewIoError("indexdb.list_branches.scan", err)
		}
		out = append(out, model.BranchPointer{Name: name, HeadHash: cvchash.New(headStr), CreatedAt: createdAt, Description: description})
	}
	return out, rows.Err()
}

// CreateBranch inserts a new branch pointer. Fails if the name is already
// taken.
func (d *DB) CreateBranch(b model.BranchPointer) error {
	_, err := d.db.Exec(`
		INSERT INTO branches(name, head_hash, created_at, description) VALUES (?, ?, ?, ?)
	`, b.Name, b.HeadHash.String(), b.CreatedAt, b.Description)
	if err != nil {
		return cvcerr.NewIoError("indexdb.create_branch", err)
	}
	return nil
}

// SetBranchHead unconditionally advances a branch's head. Used by the
// single-session Engine path, where the caller already holds exclusive
// access.
func (d *DB) SetBranchHead(name string, head cvchash.Hash) error {
	res, err := d.db.Exec(`UPDATE branches SET head_hash = ? WHERE name = ?`, head.String(), name)
	if err != nil {
		return cvcerr.NewIoError("indexdb.set_branch_head", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cvcerr.NewIoError("indexdb.set_branch_head.rows_affected", err)
	}
	if n == 0 {
		return cvcerr.NewNotFoundError("branch", name)
	}
	return nil
}

// CompareAndSwapBranchHead advances a branch's head only if its current
// head still equals expectedPrev, for the cross-process optimistic-update
// path described in spec §5. On a lost race it returns a *ConflictError
// carrying the current head.
func (d *DB) CompareAndSwapBranchHead(name string, expectedPrev, newHead cvchash.Hash) error {
	res, err := d.db.Exec(`
		UPDATE branches SET head_hash = ? WHERE name = ? AND head_hash = ?
	`, newHead.String(), name, expectedPrev.String())
	if err != nil {
		return cvcerr.NewIoError("indexdb.cas_branch_head", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cvcerr.NewIoError("indexdb.cas_branch_head.rows_affected", err)
	}
	if n == 1 {
		return nil
	}
	current, err := d.GetBranch(name)
	if err != nil {
		return err
	}
	return cvcerr.NewConflictError(name, current.HeadHash.String(), expectedPrev.String())
}

// Ancestors returns every commit reachable by walking parent_edges
// backwards from hash, not including hash itself.
func (d *DB) Ancestors(hash cvchash.Hash) ([]cvchash.Hash, error) {
	return d.walk(hash, `SELECT parent_hash FROM parent_edges WHERE child_hash = ?`)
}

// Descendants returns every commit reachable by walking parent_edges
// forwards from hash, not including hash itself.
func (d *DB) Descendants(hash cvchash.Hash) ([]cvchash.Hash, error) {
	return d.walk(hash, `SELECT child_hash FROM parent_edges WHERE parent_hash = ?`)
}

func (d *DB) walk(start cvchash.Hash, stepQuery string) ([]cvchash.Hash, error) {
	seen := map[cvchash.Hash]bool{start: true}
	queue := []cvchash.Hash{start}
	var out []cvchash.Hash
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		rows, err := d.db.Query(stepQuery, cur.String())
		if err != nil {
			return nil, cvcerr.NewIoError("indexdb.walk", err)
		}
		var next []cvchash.Hash
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return nil, cvcerr.NewIoError("indexdb.walk.scan", err)
			}
			next = append(next, cvchash.New(h))
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, cvcerr.NewIoError("indexdb.walk.rows", err)
		}
		for _, h := range next {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
				queue = append(queue, h)
			}
		}
	}
	return out, nil
}

// SetGitLink records a Git commit SHA <-> cognitive commit hash link.
func (d *DB) SetGitLink(gitSHA string, commitHash cvchash.Hash) error {
	_, err := d.db.Exec(`
		INSERT INTO git_links(git_sha, commit_hash) VALUES (?, ?)
		ON CONFLICT(git_sha) DO UPDATE SET commit_hash = excluded.commit_hash
	`, gitSHA, commitHash.String())
	if err != nil {
		return cvcerr.NewIoError("indexdb.set_git_link", err)
	}
	return nil
}

// AllContentHashes returns the content hash referenced by every commit
// row, used by gc() to compute the blob store's keep-set.
func (d *DB) AllContentHashes() ([]cvchash.Hash, error) {
	rows, err := d.db.Query(`SELECT content_hash FROM commits`)
	if err != nil {
		return nil, cvcerr.NewIoError("indexdb.all_content_hashes", err)
	}
	defer rows.Close()
	var out []cvchash.Hash
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, cvcerr.NewIoError("indexdb.all_content_hashes.scan", err)
		}
		out = append(out, cvchash.New(h))
	}
	return out, rows.Err()
}

// GetGitLink resolves a Git commit SHA to its linked cognitive commit hash.
func (d *DB) GetGitLink(gitSHA string) (cvchash.Hash, error) {
	var h string
	err := d.db.QueryRow(`SELECT commit_hash FROM git_links WHERE git_sha = ?`, gitSHA).Scan(&h)
	if err == sql.ErrNoRows {
		return cvchash.ZeroHash, cvcerr.NewNotFoundError("git_link", gitSHA)
	}
	if err != nil {
		return cvchash.ZeroHash, cvcerr.NewIoError("indexdb.get_git_link", err)
	}
	return cvchash.New(h), nil
}
