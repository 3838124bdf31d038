// Package notesstore persists and reloads the revision-to-branch
// labeling inside a git repository's own object database, as a git
// notes tree, so the labeling travels with the repository instead of
// living in a side file. Objects are built by hand from raw bytes
// rather than through higher-level encoders: a notes tree is nothing
// more than a fan-out of blobs keyed by revision id, and hand-building
// it keeps this package's only dependency surface the handful of
// plumbing primitives (hashes, object types, the encoded-object
// storer) that do not change shape across go-git releases.
package notesstore

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/anton-dovnar/revbranch/internal/branchmodel"
	"github.com/anton-dovnar/revbranch/internal/revid"
)

// MalformedNotesError reports a notes tree that does not have the
// shape this package expects: every leaf must be a regular-file blob
// reachable by a path that assembles into a 40-character lowercase hex
// revision id, and every non-leaf must be a plain directory.
type MalformedNotesError struct {
	Reason string
}

func (e *MalformedNotesError) Error() string {
	return fmt.Sprintf("malformed notes tree: %s", e.Reason)
}

// DefaultRef is the notes ref this package reads and writes unless the
// caller requests a different one.
const DefaultRef = "refs/notes/revbranch"

// Load reads the full revision-to-branch labeling out of the notes
// ref. A missing ref is not an error: it simply means no revision has
// ever been labeled, so Load returns an empty map.
func Load(repo *git.Repository, ref string) (branchmodel.RevBranch[string, string], error) {
	reference, err := repo.Reference(plumbing.ReferenceName(ref), true)
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return make(branchmodel.RevBranch[string, string]), nil
		}
		return nil, fmt.Errorf("resolve notes ref %s: %w", ref, err)
	}

	obj, err := repo.Object(plumbing.AnyObject, reference.Hash())
	if err != nil {
		return nil, fmt.Errorf("resolve notes object %s: %w", reference.Hash(), err)
	}

	var tree *object.Tree
	switch o := obj.(type) {
	case *object.Commit:
		tree, err = repo.TreeObject(o.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("resolve notes tree %s: %w", o.TreeHash, err)
		}
	case *object.Tree:
		tree = o
	default:
		return nil, &MalformedNotesError{Reason: fmt.Sprintf("%s should be either a commit or a tree, found %s", ref, obj.Type())}
	}

	out := make(branchmodel.RevBranch[string, string])
	if err := walkNotesTree(repo, tree, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkNotesTree(repo *git.Repository, tree *object.Tree, prefix string, out branchmodel.RevBranch[string, string]) error {
	for _, entry := range tree.Entries {
		path := prefix + entry.Name

		switch entry.Mode {
		case filemode.Dir:
			sub, err := repo.TreeObject(entry.Hash)
			if err != nil {
				return fmt.Errorf("resolve notes subtree %s: %w", entry.Hash, err)
			}
			if err := walkNotesTree(repo, sub, path, out); err != nil {
				return err
			}
		case filemode.Regular:
			if err := revid.Validate(path); err != nil {
				return &MalformedNotesError{Reason: fmt.Sprintf("leaf path %q is not a 40-character lowercase hex revision id", path)}
			}
			blob, err := repo.BlobObject(entry.Hash)
			if err != nil {
				return fmt.Errorf("resolve notes blob %s: %w", entry.Hash, err)
			}
			reader, err := blob.Reader()
			if err != nil {
				return fmt.Errorf("open notes blob %s: %w", entry.Hash, err)
			}
			var buf bytes.Buffer
			_, copyErr := buf.ReadFrom(reader)
			reader.Close()
			if copyErr != nil {
				return fmt.Errorf("read notes blob %s: %w", entry.Hash, copyErr)
			}
			out[path] = buf.String()
		default:
			return &MalformedNotesError{Reason: fmt.Sprintf("entry %q has unsupported mode %s", path, entry.Mode)}
		}
	}
	return nil
}

// Save writes revBranch into the repository's object database as a
// new notes commit and merges it into the notes ref with a
// theirs-wins strategy, so concurrent labelers never clobber notes
// this run did not touch. repoPath is the working-tree-or-bare path
// git needs to run `git notes merge` against; it is not reread from
// the *git.Repository itself because go-git has no notes-merge
// primitive of its own.
func Save(repo *git.Repository, repoPath, ref string, revBranch branchmodel.RevBranch[string, string]) error {
	if len(revBranch) == 0 {
		return nil
	}

	treeHash, err := writeNotesTree(repo, revBranch)
	if err != nil {
		return err
	}

	commitHash, err := writeNotesCommit(repo, treeHash)
	if err != nil {
		return err
	}

	tmpRef := plumbing.ReferenceName(ref + "-import-tmp")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(tmpRef, commitHash)); err != nil {
		return fmt.Errorf("stage notes commit under %s: %w", tmpRef, err)
	}
	defer repo.Storer.RemoveReference(tmpRef)

	cmd := exec.Command("git", "-C", repoPath, "notes", "--ref", refShortName(ref), "merge", "--strategy", "theirs", string(tmpRef))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("merge notes into %s: %w", ref, err)
	}
	return nil
}

func refShortName(ref string) string {
	return strings.TrimPrefix(ref, "refs/notes/")
}

type treeEntry struct {
	name string
	mode filemode.FileMode
	hash plumbing.Hash
}

// writeNotesTree builds a single flat tree (no fan-out) mapping each
// revision's full 40-character hex id to a blob holding its branch
// name. A flat layout is sufficient for the revision counts this tool
// operates on and keeps tree construction a one-level loop.
func writeNotesTree(repo *git.Repository, revBranch branchmodel.RevBranch[string, string]) (plumbing.Hash, error) {
	entries := make([]treeEntry, 0, len(revBranch))
	for rev, branch := range revBranch {
		blobHash, err := writeBlob(repo, []byte(branch))
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, treeEntry{name: rev, mode: filemode.Regular, hash: blobHash})
	}

	sort.Slice(entries, func(i, j int) bool { return treeSortKey(entries[i]) < treeSortKey(entries[j]) })

	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%o %s\x00", e.mode, e.name)
		buf.Write(e.hash[:])
	}

	return writeObject(repo, plumbing.TreeObject, buf.Bytes())
}

// treeSortKey reproduces git's tree entry ordering: directories sort
// as though their name carried a trailing slash. Every entry this
// package writes is a blob, so this is a plain name compare, kept
// general in case a future fan-out layout introduces subtrees.
func treeSortKey(e treeEntry) string {
	if e.mode == filemode.Dir {
		return e.name + "/"
	}
	return e.name
}

func writeNotesCommit(repo *git.Repository, treeHash plumbing.Hash) (plumbing.Hash, error) {
	now := time.Now().Unix()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", treeHash.String())
	fmt.Fprintf(&buf, "author revbranch <revbranch> %d +0000\n", now)
	fmt.Fprintf(&buf, "committer revbranch <revbranch> %d +0000\n", now)
	buf.WriteString("encoding ascii\n")
	buf.WriteString("\n")
	buf.WriteString("Temporary commit by revbranch\n")

	return writeObject(repo, plumbing.CommitObject, buf.Bytes())
}

func writeBlob(repo *git.Repository, content []byte) (plumbing.Hash, error) {
	return writeObject(repo, plumbing.BlobObject, content)
}

func writeObject(repo *git.Repository, kind plumbing.ObjectType, content []byte) (plumbing.Hash, error) {
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(kind)
	obj.SetSize(int64(len(content)))

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open object writer: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return plumbing.ZeroHash, fmt.Errorf("write object content: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("close object writer: %w", err)
	}

	hash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store object: %w", err)
	}
	return hash, nil
}
