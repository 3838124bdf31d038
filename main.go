package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/anton-dovnar/revbranch/internal/branchinfer"
	"github.com/anton-dovnar/revbranch/internal/branchmodel"
	"github.com/anton-dovnar/revbranch/internal/bundle"
	"github.com/anton-dovnar/revbranch/internal/config"
	"github.com/anton-dovnar/revbranch/internal/dag"
	"github.com/anton-dovnar/revbranch/internal/gitsource"
	"github.com/anton-dovnar/revbranch/internal/notesstore"

	mapset "github.com/deckarep/golang-set/v2"
)

func main() {
	repoPath := flag.String("path", ".", "Path to Git repository (any subdirectory is OK)")
	configPath := flag.String("config", "", "Optional TOML policy file (notes-ref, common-master-names, remotes)")
	bundlePath := flag.String("bundle", "", "Write a metadata-only changelog bundle to this path")
	dryRun := flag.Bool("dry-run", false, "Run inference and report results without writing the notes ref")
	verbose := flag.Bool("verbose", false, "Log progress at each stage")
	flag.Parse()

	policy, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	gitDir, err := gitsource.ResolveGitDir(*repoPath)
	if err != nil {
		log.Fatal(err)
	}
	if *verbose {
		log.Printf("resolved git dir: %s", gitDir)
	}

	repo, err := git.PlainOpenWithOptions(*repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		log.Fatal(err)
	}

	remotePolicy := gitsource.RemotePolicy{Remotes: policy.Remotes}
	revParents, branchRevs, err := gitsource.CollectRevisions(repo, remotePolicy)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("collected %d revisions, %d branches", len(revParents), len(branchRevs))

	sorted, err := dag.Sort(revParents)
	if err != nil {
		log.Fatal(err)
	}
	if *verbose {
		log.Printf("topologically sorted %d revisions", len(sorted))
	}

	revBranch0, err := notesstore.Load(repo, policy.NotesRef)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("loaded %d existing branch labels from %s", len(revBranch0), policy.NotesRef)

	commonMasterNames := mapset.NewSet(policy.CommonMasterNames...)
	primaryParent := branchmodel.PrimaryParent(revParents)

	result, err := branchinfer.FillUnknownBranches(primaryParent, revBranch0, branchRevs, commonMasterNames)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("inferred %d new labels, %d revisions left unnamed, %d ambiguous",
		len(result.NewRevBranch), result.UnnamedRevs.Cardinality(), len(result.AmbigRevs))

	if result.UnnamedRevs.Cardinality() > 0 {
		for rev := range result.UnnamedRevs.Iter() {
			fmt.Printf("unnamed: %s\n", rev)
		}
	}
	for rev, branches := range result.AmbigRevs {
		fmt.Printf("ambiguous: %s -> %v\n", rev, branches.ToSlice())
	}

	if *dryRun {
		log.Printf("dry run: skipping notes write-back")
	} else if len(result.NewRevBranch) > 0 {
		if err := notesstore.Save(repo, gitDir, policy.NotesRef, result.NewRevBranch); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %d new branch labels to %s", len(result.NewRevBranch), policy.NotesRef)
	}

	if *bundlePath == "" {
		return
	}

	fullRevBranch := make(branchmodel.RevBranch[string, string], len(revBranch0)+len(result.NewRevBranch))
	for rev, branch := range revBranch0 {
		fullRevBranch[rev] = branch
	}
	for rev, branch := range result.NewRevBranch {
		fullRevBranch[rev] = branch
	}

	out, err := os.Create(*bundlePath)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	if err := writeBundleWithProgress(repo, out, sorted, fullRevBranch); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote bundle to %s", *bundlePath)
}

// writeBundleWithProgress wraps bundle.WriteBundle's CommitReader with
// a progress bar advanced once per resolved revision: the one
// perceptibly long-running, I/O-bound loop in the whole driver.
func writeBundleWithProgress(repo *git.Repository, out *os.File, sorted []string, revBranch branchmodel.RevBranch[string, string]) error {
	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithAutoRefresh())
	bar := p.New(int64(len(sorted)),
		mpb.BarStyle().Filler("#").Padding(" "),
		mpb.PrependDecorators(decor.Name("writing bundle")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
	defer p.Wait()

	read := func(rev string) (string, int64, int, []string, string, error) {
		author, authorTime, authorTimezone, parents, message, err := gitsource.ResolveCommit(repo, rev)
		bar.Increment()
		return author, authorTime, authorTimezone, parents, message, err
	}

	return bundle.WriteBundle(out, sorted, revBranch, read)
}
