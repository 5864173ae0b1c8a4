package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/internal/chunker"
	"github.com/seanblong/reporubric/pkg/models"
)

const (
	githubAPI         = "https://api.github.com"
	defaultRetryAfter = 60 * time.Second
)

// GitHub reads repositories through the GitHub REST API.
type GitHub struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	now     func() time.Time
}

func NewGitHub(token string) *GitHub {
	return &GitHub{
		BaseURL: githubAPI,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

var namePattern = regexp.MustCompile(`^[\w.-]+$`)

// ErrInvalidURL is matched by errors.Is for repository references ParseURL
// rejects.
var ErrInvalidURL = errors.New("invalid GitHub URL")

// ParseURL extracts owner and repository from a GitHub URL. Scheme, a .git
// suffix, trailing slashes and paths below the repository are accepted.
func ParseURL(raw string) (owner, repo string, err error) {
	clean := strings.TrimRight(strings.TrimSpace(raw), "/")
	clean = strings.TrimSuffix(clean, ".git")
	if !strings.HasPrefix(clean, "http") {
		clean = "https://" + clean
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if !strings.Contains(u.Hostname(), "github.com") {
		return "", "", fmt.Errorf("%w: not a GitHub URL", ErrInvalidURL)
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: URL must include owner and repository name", ErrInvalidURL)
	}
	if !namePattern.MatchString(parts[0]) || !namePattern.MatchString(parts[1]) {
		return "", "", fmt.Errorf("%w: invalid owner or repository name", ErrInvalidURL)
	}
	return parts[0], parts[1], nil
}

func (g *GitHub) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(g.BaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "reporubric")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("github request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := g.checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode github response %s: %w", path, err)
	}
	return nil
}

// checkStatus maps error responses to HostError. Exhausted rate limits
// reported as 403 are normalized to 429.
func (g *GitHub) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &HostError{Status: http.StatusTooManyRequests, Message: "Rate limit exceeded", RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			wait := defaultRetryAfter
			if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
				wait = time.Unix(reset, 0).Sub(g.now()).Round(time.Second)
				if wait < time.Second {
					wait = time.Second
				}
			}
			return &HostError{Status: http.StatusTooManyRequests, Message: "Rate limit exceeded", RetryAfter: wait}
		}
		return &HostError{Status: http.StatusForbidden, Message: "Access forbidden. Repository may be private."}
	case resp.StatusCode == http.StatusNotFound:
		return &HostError{Status: http.StatusNotFound, Message: "Repository not found"}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &HostError{Status: resp.StatusCode, Message: "GitHub API error: " + http.StatusText(resp.StatusCode)}
	}
	return nil
}

func retryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}

// Resolve looks up the default branch and its latest commit.
func (g *GitHub) Resolve(ctx context.Context, repoURL string) (Repo, error) {
	owner, name, err := ParseURL(repoURL)
	if err != nil {
		return Repo{}, err
	}

	var meta struct {
		DefaultBranch string  `json:"default_branch"`
		Description   *string `json:"description"`
	}
	if err := g.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, name), &meta); err != nil {
		return Repo{}, err
	}

	var commit struct {
		SHA string `json:"sha"`
	}
	if err := g.get(ctx, fmt.Sprintf("/repos/%s/%s/commits/%s", owner, name, url.PathEscape(meta.DefaultBranch)), &commit); err != nil {
		return Repo{}, err
	}

	repo := Repo{
		URL:           fmt.Sprintf("https://github.com/%s/%s", owner, name),
		Owner:         owner,
		Name:          name,
		DefaultBranch: meta.DefaultBranch,
		RevisionID:    commit.SHA,
	}
	if meta.Description != nil {
		repo.Description = *meta.Description
	}
	return repo, nil
}

// Tree lists the full recursive tree of the revision.
func (g *GitHub) Tree(ctx context.Context, r Repo) (Tree, error) {
	var data struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			SHA  string `json:"sha"`
			Size int64  `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if err := g.get(ctx, fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", r.Owner, r.Name, r.RevisionID), &data); err != nil {
		return Tree{}, err
	}
	if data.Truncated {
		log.Warn().Str("repo", r.Owner+"/"+r.Name).Msg("Tree was truncated due to size limits")
	}

	entries := make([]models.TreeEntry, 0, len(data.Tree))
	for _, item := range data.Tree {
		var kind models.EntryKind
		switch item.Type {
		case "blob":
			kind = models.EntryFile
		case "tree":
			kind = models.EntryDir
		default:
			continue
		}
		entries = append(entries, models.TreeEntry{Path: item.Path, Kind: kind, ContentID: item.SHA, SizeBytes: item.Size})
	}
	return Tree{Entries: entries, Truncated: data.Truncated}, nil
}

// Fetch downloads one file at the revision.
func (g *GitHub) Fetch(ctx context.Context, r Repo, path string) (chunker.Content, error) {
	var data struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
		Size     int64  `json:"size"`
	}
	escaped := (&url.URL{Path: path}).EscapedPath()
	if err := g.get(ctx, fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", r.Owner, r.Name, escaped, url.QueryEscape(r.RevisionID)), &data); err != nil {
		return chunker.Content{}, err
	}
	if data.Encoding != "base64" {
		return chunker.Content{}, fmt.Errorf("unexpected encoding: %s", data.Encoding)
	}
	// The API wraps base64 content at 60 columns.
	b, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(data.Content, "\n", ""))
	if err != nil {
		return chunker.Content{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return chunker.Content{Text: string(b), SizeBytes: data.Size}, nil
}
