// Package branchinfer implements the branch inference engine: given a
// DAG of revisions (via their primary parent), a set of branch tips,
// and a partial user-authored revision->branch assignment, it derives
// a maximal consistent extension of that assignment and reports what
// remains ambiguous or unconstrained.
package branchinfer

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/anton-dovnar/revbranch/internal/branchmodel"
)

// Result is fill_unknown_branches' tagged output: the labels inference
// could determine, the revisions that still need a human decision, and
// the revisions where multiple candidate labels converged.
type Result[R comparable, B comparable] struct {
	NewRevBranch branchmodel.RevBranch[R, B]
	UnnamedRevs  mapset.Set[R]
	AmbigRevs    branchmodel.RevBranches[R, B]
}

// InconsistencyError reports that a labeled root's traversal did not
// return exactly {rootBranch} at the top level — a logic bug in the
// engine, or a violated input invariant (e.g. a root reachable from
// two disagreeing labeled ancestors, which cannot happen if rev_parent
// truly forms a DAG with a single root per weakly-connected component).
type InconsistencyError[R comparable] struct {
	Root R
}

func (e *InconsistencyError[R]) Error() string {
	return fmt.Sprintf("inference post-condition violated at root %v", e.Root)
}

// FillUnknownBranches assigns branch names to revisions that don't yet
// have one, and reports what the caller still needs filled in.
//
// revParent is the primary-parent projection (root revisions map to a
// nil parent; a revision absent as a key is never treated as a root, so
// its subtree is not visited).
// revBranch0 is the prior, user-authored assignment. branchRevs maps
// a branch name to the revisions it points at (possibly several, for
// local + remote copies of the same branch). commonMasterNames governs
// root resolution; pass nil for "none" (every unlabeled root is
// reported unnamed). Production callers pass
// branchmodel.DefaultCommonMasterNames() (or a config-supplied
// override) when B is string.
func FillUnknownBranches[R comparable, B comparable](
	revParent branchmodel.RevParent[R],
	revBranch0 branchmodel.RevBranch[R, B],
	branchRevs branchmodel.BranchRevs[R, B],
	commonMasterNames mapset.Set[B],
) (Result[R, B], error) {
	if commonMasterNames == nil {
		commonMasterNames = mapset.NewSet[B]()
	}

	revChildren, roots := branchmodel.InvertRevParent(revParent)
	revBranches := branchmodel.InvertBranchRevs(branchRevs)

	result := Result[R, B]{
		NewRevBranch: make(branchmodel.RevBranch[R, B]),
		UnnamedRevs:  mapset.NewSet[R](),
		AmbigRevs:    make(branchmodel.RevBranches[R, B]),
	}

	for _, root := range roots {
		rootBranch, known := revBranch0[root]
		if !known {
			masterNames := allMasterBranches(root, revChildren, revBranches, commonMasterNames)
			if masterNames.Cardinality() != 1 {
				result.UnnamedRevs.Add(root)
				continue
			}
			rootBranch = masterNames.ToSlice()[0]
			result.NewRevBranch[root] = rootBranch
		}

		final := traverse(root, rootBranch, revChildren, revBranch0, revBranches, result.NewRevBranch, result.UnnamedRevs, result.AmbigRevs)
		if final.Cardinality() != 1 || !final.Contains(rootBranch) {
			return Result[R, B]{}, &InconsistencyError[R]{Root: root}
		}
	}

	return result, nil
}

// allMasterBranches walks rev and its descendants iteratively (an
// explicit work-stack, not recursion, per the package's depth-safety
// policy) and returns the set of branches pointing at any of them that also
// appear in commonMasterNames.
func allMasterBranches[R comparable, B comparable](
	rev R,
	revChildren branchmodel.RevChildren[R],
	revBranches branchmodel.RevBranches[R, B],
	commonMasterNames mapset.Set[B],
) mapset.Set[B] {
	masters := mapset.NewSet[B]()
	todo := []R{rev}
	for len(todo) > 0 {
		n := len(todo) - 1
		cur := todo[n]
		todo = todo[:n]

		for b := range revBranches[cur].Iter() {
			if commonMasterNames.Contains(b) {
				masters.Add(b)
			}
		}
		for child := range revChildren[cur].Iter() {
			todo = append(todo, child)
		}
	}
	return masters
}

// frame is one stack entry of the explicit, non-recursive realization
// of fill_unknown_branches_gen: it tracks rev's own state (whether rev
// is already labeled, and if not, the possible-branches set returned
// by each of its children so far) plus the index of the next child
// still to be visited.
type frame[R comparable, B comparable] struct {
	rev        R
	rootBranch B
	known      bool // rev ∈ revBranch0
	myBranch   B    // valid iff known

	children []R
	next     int

	// childResults accumulates, for the unknown case, each child's
	// returned possible-branches set, keyed by child. Unused (and left
	// nil) in the known case, where only ambiguity recording is needed.
	childResults branchmodel.RevBranches[R, B]
}

// traverse is the non-recursive realization of
// fill_unknown_branches_gen for one labeled root and its subtree. It
// mirrors the Python generator's suspend/resume protocol with an
// explicit stack of frames and a single "pending child result" slot
// standing in for the value a .send() would deliver.
func traverse[R comparable, B comparable](
	root R,
	rootBranch B,
	revChildren branchmodel.RevChildren[R],
	revBranch0 branchmodel.RevBranch[R, B],
	revBranches branchmodel.RevBranches[R, B],
	newRevBranch branchmodel.RevBranch[R, B],
	unnamedRevs mapset.Set[R],
	ambigRevs branchmodel.RevBranches[R, B],
) mapset.Set[B] {
	stack := []*frame[R, B]{newFrame(root, rootBranch, revBranch0, revChildren)}

	var pending mapset.Set[B]
	havePending := false

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if havePending {
			child := top.children[top.next-1]
			if top.known {
				if pending.Cardinality() > 1 {
					ambigRevs[child] = pending
				}
			} else {
				top.childResults[child] = pending
			}
			havePending = false
		}

		if top.next < len(top.children) {
			child := top.children[top.next]
			top.next++

			var childRoot B
			if top.known {
				childRoot = top.myBranch
			} else {
				childRoot = top.rootBranch
			}
			stack = append(stack, newFrame(child, childRoot, revBranch0, revChildren))
			continue
		}

		// All children of top.rev have been visited; compute top's
		// return value and pop.
		var ret mapset.Set[B]
		if top.known {
			ret = mapset.NewSet(top.myBranch)
		} else {
			ret = resolveUnknown(top.rev, top.rootBranch, top.childResults, revBranches, newRevBranch, unnamedRevs, ambigRevs)
		}

		stack = stack[:len(stack)-1]
		pending = ret
		havePending = true
	}

	return pending
}

func newFrame[R comparable, B comparable](
	rev R,
	rootBranch B,
	revBranch0 branchmodel.RevBranch[R, B],
	revChildren branchmodel.RevChildren[R],
) *frame[R, B] {
	f := &frame[R, B]{rev: rev, rootBranch: rootBranch}
	if branch, ok := revBranch0[rev]; ok {
		f.known = true
		f.myBranch = branch
	} else {
		f.childResults = make(branchmodel.RevBranches[R, B])
	}
	if set, ok := revChildren[rev]; ok {
		f.children = set.ToSlice()
	}
	return f
}

// resolveUnknown implements the "else" branch of
// fill_unknown_branches_gen: rev has no prior label, so its fate is
// decided by the union of its children's possible-branches sets and
// any branch pointers directly on rev.
func resolveUnknown[R comparable, B comparable](
	rev R,
	rootBranch B,
	childResults branchmodel.RevBranches[R, B],
	revBranches branchmodel.RevBranches[R, B],
	newRevBranch branchmodel.RevBranch[R, B],
	unnamedRevs mapset.Set[R],
	ambigRevs branchmodel.RevBranches[R, B],
) mapset.Set[B] {
	sets := make([]mapset.Set[B], 0, len(childResults)+1)
	for _, s := range childResults {
		sets = append(sets, s)
	}
	for b := range revBranches[rev].Iter() {
		sets = append(sets, mapset.NewSet(b))
	}

	if len(sets) == 0 {
		// Leaf revision without a branch pointer: the user must label it.
		unnamedRevs.Add(rev)
		return mapset.NewSet[B]()
	}

	rootSingleton := mapset.NewSet(rootBranch)
	for _, s := range sets {
		if s.Equal(rootSingleton) {
			newRevBranch[rev] = rootBranch
			for child, childSet := range childResults {
				if childSet.Cardinality() > 1 {
					ambigRevs[child] = childSet
				}
			}
			return rootSingleton
		}
	}

	for _, s := range sets {
		if s.Cardinality() == 0 {
			// A descendant leaf is unresolved; so is rev.
			return mapset.NewSet[B]()
		}
	}

	union := mapset.NewSet[B]()
	for _, s := range sets {
		union = union.Union(s)
	}
	if union.Cardinality() == 1 {
		newRevBranch[rev] = union.ToSlice()[0]
		return union
	}

	// Ambiguous: the caller (rev's parent frame) records this at its
	// own call site, keyed by rev, not here.
	return union
}
