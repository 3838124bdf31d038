// Package branchmodel defines the data model shared by the branch
// inference engine, the notes store adapter and the bundle writer:
// revisions, branches, and the maps between them described in the
// system's data model.
//
// Rev and Branch are left as generic, comparable type parameters
// rather than concrete types, so the same engine serves both the
// production instantiation (both strings: a lowercase 40-hex revision
// id and a raw branch name) and small-integer test fixtures.
package branchmodel

import mapset "github.com/deckarep/golang-set/v2"

// RevParents maps a revision to its ordered parent list. The first
// element is the primary parent; any further elements are merge
// parents. A root revision maps to an empty (or nil) slice.
type RevParents[R comparable] map[R][]R

// RevParent maps a revision to its primary parent. A root revision is
// present with a nil pointer. A revision that appears only as another
// revision's parent, and not as a key, is not treated as a root.
type RevParent[R comparable] map[R]*R

// BranchRevs maps a branch name to the set of revisions it points at.
// A branch may point at more than one revision (e.g. a local head and
// its remote-tracking counterpart).
type BranchRevs[R comparable, B comparable] map[B]mapset.Set[R]

// RevBranch is the authoritative revision-to-branch labeling.
type RevBranch[R comparable, B comparable] map[R]B

// RevBranches maps a revision to a set of branches. It serves two
// purposes: the inverse of BranchRevs (branch pointers per revision),
// and the ambiguous-alternatives report keyed by revision.
type RevBranches[R comparable, B comparable] map[R]mapset.Set[B]

// RevChildren maps a revision to the set of its direct children, the
// inverse of RevParent. It exists only as inference-engine scratch
// state; it is never part of the public data model a caller supplies.
type RevChildren[R comparable] map[R]mapset.Set[R]

// InvertRevParent derives RevChildren and the list of root revisions
// (revisions with no parent) from a RevParent projection.
func InvertRevParent[R comparable](revParent RevParent[R]) (RevChildren[R], []R) {
	children := make(RevChildren[R])
	var roots []R
	for rev, parent := range revParent {
		if parent == nil {
			roots = append(roots, rev)
			continue
		}
		set, ok := children[*parent]
		if !ok {
			set = mapset.NewSet[R]()
			children[*parent] = set
		}
		set.Add(rev)
	}
	return children, roots
}

// InvertBranchRevs derives RevBranches (branch pointers per revision)
// from BranchRevs (revisions per branch).
func InvertBranchRevs[R comparable, B comparable](branchRevs BranchRevs[R, B]) RevBranches[R, B] {
	revBranches := make(RevBranches[R, B])
	for branch, revs := range branchRevs {
		for rev := range revs.Iter() {
			set, ok := revBranches[rev]
			if !ok {
				set = mapset.NewSet[B]()
				revBranches[rev] = set
			}
			set.Add(branch)
		}
	}
	return revBranches
}

// PrimaryParent projects a full RevParents map (every parent, primary
// first) down to RevParent (primary parent only, or nil for a root),
// the only view the inference engine needs.
func PrimaryParent[R comparable](revParents RevParents[R]) RevParent[R] {
	out := make(RevParent[R], len(revParents))
	for rev, parents := range revParents {
		if len(parents) == 0 {
			out[rev] = nil
			continue
		}
		p := parents[0]
		out[rev] = &p
	}
	return out
}

// DefaultCommonMasterNames is COMMON_MASTER_BRANCH_NAMES: the set of
// branch names that make a root revision's label inferable when no
// explicit assignment was supplied.
func DefaultCommonMasterNames() mapset.Set[string] {
	return mapset.NewSet("master", "main", "default", "primary", "root")
}
