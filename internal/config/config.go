// Package config loads the optional TOML policy file a CLI invocation
// may point --config at: the notes ref to use, the set of branch
// names that make a root revision's label inferable, and which
// remotes' branch tips to fold into the initial assignment.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/anton-dovnar/revbranch/internal/notesstore"
)

// File is the on-disk shape of a policy config file.
type File struct {
	NotesRef          string   `toml:"notes-ref"`
	CommonMasterNames []string `toml:"common-master-names"`
	Remotes           []string `toml:"remotes"`
}

// Resolved carries File's values with defaults already applied.
type Resolved struct {
	NotesRef          string
	CommonMasterNames []string
	Remotes           []string
}

// Default returns the policy in effect when no --config is given.
func Default() Resolved {
	return Resolved{
		NotesRef:          notesstore.DefaultRef,
		CommonMasterNames: []string{"master", "main", "default", "primary", "root"},
		Remotes:           nil,
	}
}

// Load reads and validates a TOML policy file at path, filling in
// defaults for any key the file omits.
func Load(path string) (Resolved, error) {
	resolved := Default()
	if path == "" {
		return resolved, nil
	}

	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return Resolved{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	if f.NotesRef != "" {
		resolved.NotesRef = f.NotesRef
	}
	if len(f.CommonMasterNames) > 0 {
		resolved.CommonMasterNames = f.CommonMasterNames
	}
	resolved.Remotes = f.Remotes

	return resolved, nil
}
