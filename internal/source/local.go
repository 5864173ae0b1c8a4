package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/seanblong/reporubric/internal/chunker"
	"github.com/seanblong/reporubric/pkg/models"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

var skipDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	".terraform":    {},
	"node_modules":  {},
	"vendor":        {},
	"target":        {},
	".venv":         {},
	"venv":          {},
	"__pycache__":   {},
	".pytest_cache": {},
	".mypy_cache":   {},
	".tox":          {},
	".gradle":       {},
	".idea":         {},
	".cache":        {},
}

// Local serves a checkout on the local file system.
type Local struct {
	Walker FileSystemWalker
	Reader FileReader
}

func NewLocal() *Local {
	return &Local{Walker: &DefaultFileSystemWalker{}, Reader: &DefaultFileReader{}}
}

func localRoot(ref string) (string, error) {
	root := strings.TrimPrefix(ref, "file://")
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", abs, ErrNotFound)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// Resolve identifies the checkout. The revision is the git HEAD commit when
// available and a fingerprint of the listed files otherwise.
func (l *Local) Resolve(ctx context.Context, ref string) (Repo, error) {
	root, err := localRoot(ref)
	if err != nil {
		return Repo{}, err
	}
	repo := Repo{
		URL:  "file://" + filepath.ToSlash(root),
		Name: filepath.Base(root),
		Root: root,
	}

	repo.RevisionID = git(ctx, root, "rev-parse", "HEAD")
	repo.DefaultBranch = git(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	if repo.RevisionID == "" {
		tree, err := l.Tree(ctx, repo)
		if err != nil {
			return Repo{}, err
		}
		repo.RevisionID = fingerprint(tree.Entries)
	}
	return repo, nil
}

func git(ctx context.Context, dir string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func fingerprint(entries []models.TreeEntry) string {
	h := sha1.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s:%s:%s\n", e.Path, e.Kind, e.ContentID)
	}
	return "local-" + hex.EncodeToString(h.Sum(nil))[:12]
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

// Tree lists files and directories below the root in lexical order,
// skipping tool directories, symlinks and .gitignore matches.
func (l *Local) Tree(ctx context.Context, r Repo) (Tree, error) {
	root := r.Root
	gi := loadGitignore(root)
	var entries []models.TreeEntry

	err := l.Walker.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if path == root {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if de != nil && de.IsSymlink() {
				return nil
			}
			if de != nil && de.IsDir() {
				if _, skip := skipDirs[de.Name()]; skip || (gi != nil && gi.MatchesPath(rel+"/")) {
					return godirwalk.SkipThis
				}
				entries = append(entries, models.TreeEntry{Path: rel, Kind: models.EntryDir})
				return nil
			}
			if gi != nil && gi.MatchesPath(rel) {
				return nil
			}

			entry := models.TreeEntry{Path: rel, Kind: models.EntryFile}
			if info, err := os.Lstat(path); err == nil {
				entry.SizeBytes = info.Size()
				entry.ContentID = fmt.Sprintf("%x-%x", info.Size(), info.ModTime().UnixNano())
			}
			entries = append(entries, entry)
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			log.Warn().Err(err).Str("path", path).Msg("failed to walk path")
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return Tree{}, fmt.Errorf("walk %s: %w", root, err)
	}
	log.Debug().Str("root", root).Int("entries", len(entries)).Msg("listed local tree")
	return Tree{Entries: entries}, nil
}

// Fetch reads one file relative to the root. Paths escaping the root are
// rejected.
func (l *Local) Fetch(ctx context.Context, r Repo, path string) (chunker.Content, error) {
	if err := ctx.Err(); err != nil {
		return chunker.Content{}, err
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return chunker.Content{}, fmt.Errorf("path %q is outside the repository", path)
	}
	b, err := l.Reader.ReadFile(filepath.Join(r.Root, clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return chunker.Content{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return chunker.Content{}, err
	}
	return chunker.Content{Text: string(b), SizeBytes: int64(len(b))}, nil
}
