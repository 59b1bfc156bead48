package repo

import (
	"fmt"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kurobon/revgraph/internal/store"
)

// skipDirs are version-control bookkeeping directories never snapshotted.
var skipDirs = map[string]struct{}{
	".git":      {},
	".jj":       {},
	".revgraph": {},
}

// Open attaches to a workspace rooted at the given filesystem: it creates a
// fresh repo and snapshots the worktree into the initial working-copy
// commit.
func Open(fs billy.Filesystem, author object.Signature) (*Repo, error) {
	r := New(author)
	tree, err := Snapshot(fs, r.store)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot workspace: %w", err)
	}
	if tree.Len() == 0 {
		return r, nil
	}
	tx := r.Begin()
	wc := r.WorkingCopy()
	tx.Rewrite(wc, wc.Parents, tree, wc.Description)
	if _, err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to record working copy: %w", err)
	}
	return r, nil
}

// Snapshot reads every file under the filesystem root into a tree.
func Snapshot(fs billy.Filesystem, st *store.Store) (*store.Tree, error) {
	files := make(map[string][]byte)
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := fs.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", dir, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			full := path.Join(dir, name)
			if entry.IsDir() {
				if _, skip := skipDirs[name]; skip {
					continue
				}
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			content, err := util.ReadFile(fs, full)
			if err != nil {
				return fmt.Errorf("failed to read %q: %w", full, err)
			}
			files[full] = content
		}
		return nil
	}
	if err := walk("."); err != nil {
		return nil, err
	}
	return st.BuildTree(files)
}
