// Package gitsource reads the raw material the inference engine needs
// out of a real git repository: the parent DAG and the initial
// branch-to-revision assignment taken from refs, using go-git rather
// than shelling out to the git binary.
package gitsource

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/anton-dovnar/revbranch/internal/branchmodel"
)

// RemotePolicy controls which refs seed the initial branch assignment
// and which commits get walked at all.
type RemotePolicy struct {
	// Remotes names the remotes whose remote-tracking refs
	// (refs/remotes/<remote>/<branch>) are treated as additional
	// branch labels, using the branch segment after the remote name.
	// Empty means none: only refs/heads/* seed the walk.
	Remotes []string
}

func (p RemotePolicy) includesRemote(remote string) bool {
	for _, r := range p.Remotes {
		if r == remote {
			return true
		}
	}
	return false
}

// CollectRevisions walks every reachable commit from the repository's
// local branch heads (and, for any remote named in policy.Remotes,
// that remote's tracking heads) and returns the revision parent DAG
// together with the branch labels taken directly from ref names.
func CollectRevisions(repo *git.Repository, policy RemotePolicy) (branchmodel.RevParents[string], branchmodel.BranchRevs[string, string], error) {
	toProcess := mapset.NewSet[plumbing.Hash]()
	branchRevs := make(branchmodel.BranchRevs[string, string])

	refIter, err := repo.References()
	if err != nil {
		return nil, nil, fmt.Errorf("read references: %w", err)
	}
	defer refIter.Close()

	addBranchRev := func(branch string, hash plumbing.Hash) {
		rev := hash.String()
		set, ok := branchRevs[branch]
		if !ok {
			set = mapset.NewSet[string]()
			branchRevs[branch] = set
		}
		set.Add(rev)
	}

	if err := refIter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		switch {
		case name.IsBranch():
			toProcess.Add(ref.Hash())
			addBranchRev(name.Short(), ref.Hash())
		case name.IsRemote():
			short := name.Short() // "<remote>/<branch>"
			if strings.HasSuffix(short, "/HEAD") {
				return nil
			}
			i := strings.IndexByte(short, '/')
			if i < 0 || !policy.includesRemote(short[:i]) {
				return nil
			}
			toProcess.Add(ref.Hash())
			addBranchRev(short[i+1:], ref.Hash())
		}
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("enumerate references: %w", err)
	}

	revParents := make(branchmodel.RevParents[string])
	seen := mapset.NewSet[plumbing.Hash]()

	for toProcess.Cardinality() > 0 {
		current, ok := toProcess.Pop()
		if !ok {
			continue
		}
		if seen.Contains(current) {
			continue
		}
		seen.Add(current)

		commit, err := repo.CommitObject(current)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve commit %s: %w", current, err)
		}

		parents := make([]string, 0, len(commit.ParentHashes))
		for _, p := range commit.ParentHashes {
			parents = append(parents, p.String())
			toProcess.Add(p)
		}
		revParents[current.String()] = parents
	}

	return revParents, branchRevs, nil
}

// ResolveCommit implements bundle.CommitReader against a real
// repository: author identity, author time, author timezone offset in
// seconds east of UTC, parent revision ids (primary first), and the
// raw commit message.
func ResolveCommit(repo *git.Repository, rev string) (author string, authorTime int64, authorTimezone int, parents []string, message string, err error) {
	hash := plumbing.NewHash(rev)
	commit, cerr := repo.CommitObject(hash)
	if cerr != nil {
		return "", 0, 0, nil, "", fmt.Errorf("resolve commit %s: %w", rev, cerr)
	}

	author = fmt.Sprintf("%s <%s>", commit.Author.Name, commit.Author.Email)
	authorTime = commit.Author.When.Unix()
	_, offsetSeconds := commit.Author.When.Zone()
	authorTimezone = offsetSeconds

	for _, p := range commit.ParentHashes {
		parents = append(parents, p.String())
	}

	return author, authorTime, authorTimezone, parents, commit.Message, nil
}
