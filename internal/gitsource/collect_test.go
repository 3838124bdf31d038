package gitsource

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

func commitFile(t *testing.T, w *git.Worktree, path, contents, message string, when time.Time) plumbing.Hash {
	t.Helper()
	require.NoError(t, util.WriteFile(w.Filesystem, path, []byte(contents), 0644))
	_, err := w.Add(path)
	require.NoError(t, err)
	hash, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Ada Lovelace",
			Email: "ada@example.com",
			When:  when,
		},
	})
	require.NoError(t, err)
	return hash
}

// newTestRepo builds a two-branch in-memory repository:
//
//	main:    c1 -- c2
//	feature:       \-- c3
func newTestRepo(t *testing.T) (*git.Repository, plumbing.Hash, plumbing.Hash, plumbing.Hash) {
	t.Helper()
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)

	w, err := repo.Worktree()
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := commitFile(t, w, "a.txt", "one", "first", base)
	c2 := commitFile(t, w, "a.txt", "two", "second", base.Add(time.Minute))

	headRef, err := repo.Head()
	require.NoError(t, err)
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), headRef.Hash())))

	require.NoError(t, w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName("feature"),
		Create: true,
	}))
	c3 := commitFile(t, w, "b.txt", "three", "third", base.Add(2*time.Minute))

	return repo, c1, c2, c3
}

func TestCollectRevisions_WalksFullDAGAndLabelsBranches(t *testing.T) {
	repo, c1, c2, c3 := newTestRepo(t)

	revParents, branchRevs, err := CollectRevisions(repo, RemotePolicy{})
	require.NoError(t, err)

	require.Len(t, revParents, 3)
	require.Contains(t, revParents, c1.String())
	require.Contains(t, revParents, c2.String())
	require.Contains(t, revParents, c3.String())

	require.Empty(t, revParents[c1.String()])
	require.Equal(t, []string{c1.String()}, revParents[c2.String()])
	require.Equal(t, []string{c2.String()}, revParents[c3.String()])

	require.Contains(t, branchRevs, "main")
	require.Contains(t, branchRevs, "feature")
	require.True(t, branchRevs["main"].Contains(c2.String()))
	require.True(t, branchRevs["feature"].Contains(c3.String()))
}

func TestCollectRevisions_RemoteTrackingRefsOnlyWhenNamed(t *testing.T) {
	repo, _, c2, _ := newTestRepo(t)

	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", "mirror"), c2)))

	_, withoutRemote, err := CollectRevisions(repo, RemotePolicy{})
	require.NoError(t, err)
	require.NotContains(t, withoutRemote, "mirror", "remote branch name should not surface without policy.Remotes")

	_, withRemote, err := CollectRevisions(repo, RemotePolicy{Remotes: []string{"origin"}})
	require.NoError(t, err)
	require.Contains(t, withRemote, "mirror")
	require.True(t, withRemote["mirror"].Contains(c2.String()))
}

func TestResolveCommit_ReturnsAuthorAndParents(t *testing.T) {
	repo, c1, c2, _ := newTestRepo(t)

	author, _, _, parents, message, err := ResolveCommit(repo, c2.String())
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace <ada@example.com>", author)
	require.Equal(t, []string{c1.String()}, parents)
	require.Equal(t, "second", message)
}
