// Package source lists and reads repositories at a fixed revision, either
// from a local checkout or from the GitHub REST API.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/seanblong/reporubric/internal/chunker"
	"github.com/seanblong/reporubric/pkg/models"
)

// ErrNotFound is matched by errors.Is for missing repositories and files.
var ErrNotFound = errors.New("not found")

// Repo identifies a repository revision. Root is set for local checkouts.
type Repo struct {
	URL           string `json:"repo_url"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	Description   string `json:"description,omitempty"`
	RevisionID    string `json:"commit_sha"`
	Root          string `json:"-"`
}

type Tree struct {
	Entries   []models.TreeEntry `json:"tree"`
	Truncated bool               `json:"truncated"`
}

// Source resolves a repository reference and serves its content.
type Source interface {
	Resolve(ctx context.Context, repoURL string) (Repo, error)
	Tree(ctx context.Context, r Repo) (Tree, error)
	Fetch(ctx context.Context, r Repo, path string) (chunker.Content, error)
}

// FetchFunc binds Fetch to one repository revision.
func FetchFunc(s Source, r Repo) chunker.FetchFunc {
	return func(ctx context.Context, path string) (chunker.Content, error) {
		return s.Fetch(ctx, r, path)
	}
}

// HostError is a failed call to the hosting API. RetryAfter is set for
// rate limits.
type HostError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *HostError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// RateLimited reports whether the host asked the caller to back off.
func (e *HostError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// Router sends local paths and file:// URLs to Local and everything else
// to Remote.
type Router struct {
	Local  *Local
	Remote *GitHub
}

func NewRouter(githubToken string) *Router {
	return &Router{Local: NewLocal(), Remote: NewGitHub(githubToken)}
}

// IsLocal reports whether ref names a local directory.
func IsLocal(ref string) bool {
	if strings.HasPrefix(ref, "file://") {
		return true
	}
	if strings.Contains(ref, "://") || strings.HasPrefix(ref, "github.com/") {
		return false
	}
	info, err := os.Stat(ref)
	return err == nil && info.IsDir()
}

func (r *Router) Resolve(ctx context.Context, repoURL string) (Repo, error) {
	if IsLocal(repoURL) {
		return r.Local.Resolve(ctx, repoURL)
	}
	return r.Remote.Resolve(ctx, repoURL)
}

func (r *Router) Tree(ctx context.Context, repo Repo) (Tree, error) {
	if repo.Root != "" {
		return r.Local.Tree(ctx, repo)
	}
	return r.Remote.Tree(ctx, repo)
}

func (r *Router) Fetch(ctx context.Context, repo Repo, path string) (chunker.Content, error) {
	if repo.Root != "" {
		return r.Local.Fetch(ctx, repo, path)
	}
	return r.Remote.Fetch(ctx, repo, path)
}
