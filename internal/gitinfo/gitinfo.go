// Package gitinfo derives per-file modification metadata from git history,
// the way static-site generators surface "last updated" stamps. A site that
// is not a git repository simply gets no git metadata.
package gitinfo

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Info is the commit metadata attached to a content file.
type Info struct {
	LastMod time.Time
	Author  string
}

// Index resolves file paths to their most recent commit. Lookups are cached.
type Index struct {
	repo *git.Repository
	root string
	seen map[string]Info
}

// Open locates the repository containing dir, searching parent directories
// like the git CLI. It returns (nil, nil) when dir is not inside a work tree.
func Open(dir string) (*Index, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			slog.Debug("Not a git repository, skipping git metadata", "dir", dir)
			return nil, nil
		}
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		// Bare repository; nothing to map file paths against.
		return nil, nil
	}

	return &Index{repo: repo, root: wt.Filesystem.Root(), seen: map[string]Info{}}, nil
}

// Lookup returns the latest commit metadata for the file at path. ok is false
// for untracked files. A nil Index never matches.
func (ix *Index) Lookup(path string) (Info, bool) {
	if ix == nil {
		return Info{}, false
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Info{}, false
	}
	rel, err := filepath.Rel(ix.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Info{}, false
	}
	rel = filepath.ToSlash(rel)

	var zero Info
	if info, ok := ix.seen[rel]; ok {
		return info, info != zero
	}

	iter, err := ix.repo.Log(&git.LogOptions{FileName: &rel, Order: git.LogOrderCommitterTime})
	if err != nil {
		ix.seen[rel] = Info{}
		return Info{}, false
	}
	defer iter.Close()

	commit, err := iter.Next()
	if err != nil || commit == nil {
		ix.seen[rel] = Info{}
		return Info{}, false
	}

	info := fromCommit(commit)
	ix.seen[rel] = info
	return info, true
}

func fromCommit(c *object.Commit) Info {
	return Info{
		LastMod: c.Author.When,
		Author:  c.Author.Name,
	}
}
