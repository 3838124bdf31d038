package gitsource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveGitDir resolves the repository's .git directory starting from
// startPath, walking up through parent directories the way git itself
// does (so the CLI can be invoked from any subdirectory of the repo).
//
// It supports:
//   - standard repos where ".git" is a directory
//   - worktrees/submodules where ".git" is a file containing "gitdir: <path>"
func ResolveGitDir(startPath string) (string, error) {
	if startPath == "" {
		return "", errors.New("empty path")
	}

	p := filepath.Clean(startPath)
	for {
		dotgit := filepath.Join(p, ".git")
		fi, err := os.Stat(dotgit)
		if err == nil {
			if fi.IsDir() {
				return dotgit, nil
			}
			b, rerr := os.ReadFile(dotgit)
			if rerr != nil {
				return "", fmt.Errorf("read %s: %w", dotgit, rerr)
			}
			s := strings.TrimSpace(string(b))
			if strings.HasPrefix(s, "gitdir:") {
				gd := strings.TrimSpace(strings.TrimPrefix(s, "gitdir:"))
				if gd == "" {
					return "", fmt.Errorf("invalid gitdir in %s", dotgit)
				}
				if !filepath.IsAbs(gd) {
					gd = filepath.Join(p, gd)
				}
				return filepath.Clean(gd), nil
			}
			return "", fmt.Errorf("unrecognized .git file format: %s", dotgit)
		}

		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}

	return "", fmt.Errorf("could not find .git starting at %s", startPath)
}
