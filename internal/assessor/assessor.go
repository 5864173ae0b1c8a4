// Package assessor runs the end-to-end assessment of one repository
// revision: resolve, select, fetch, summarize, build, persist.
package assessor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/internal/chunker"
	"github.com/seanblong/reporubric/internal/rubric"
	"github.com/seanblong/reporubric/internal/selector"
	"github.com/seanblong/reporubric/internal/source"
	"github.com/seanblong/reporubric/internal/store"
	"github.com/seanblong/reporubric/pkg/models"
)

// MaxPerFileChars is the per-file cap reported in selection estimates.
const MaxPerFileChars = 50_000

var (
	ErrMissingRepoURL = errors.New("repoUrl is required")
	ErrNoContent      = errors.New("no file content could be fetched")
)

type Service struct {
	Source     source.Source
	Summarizer rubric.Summarizer
	Builder    *rubric.Builder
	Store      store.AssessmentStore
	SelectOpts selector.Options
	FetchOpts  chunker.FetchOptions
}

// New wires a Service. A nil store keeps assessments in memory.
func New(src source.Source, sum rubric.Summarizer, b *rubric.Builder, st store.AssessmentStore) *Service {
	if st == nil {
		st = store.NewMemory()
	}
	return &Service{Source: src, Summarizer: sum, Builder: b, Store: st}
}

type Caps struct {
	MaxFiles   int   `json:"maxFiles"`
	MaxChars   int64 `json:"maxChars"`
	MaxPerFile int   `json:"maxPerFile"`
}

func (s *Service) caps() Caps {
	c := Caps{
		MaxFiles:   s.SelectOpts.MaxFiles,
		MaxChars:   s.SelectOpts.MaxTotalChars,
		MaxPerFile: MaxPerFileChars,
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = selector.DefaultMaxFiles
	}
	if c.MaxChars <= 0 {
		c.MaxChars = selector.DefaultMaxTotalChars
	}
	return c
}

type Estimates struct {
	TotalFiles int   `json:"totalFiles"`
	TotalChars int64 `json:"totalChars"`
	OverCaps   bool  `json:"overCaps"`
	Caps       Caps  `json:"caps"`
}

// FileSelection is what a caller needs to review or edit the file choice
// before running an assessment.
type FileSelection struct {
	Owner         string                `json:"owner"`
	Repo          string                `json:"repo"`
	RevisionID    string                `json:"sha"`
	DefaultBranch string                `json:"defaultBranch"`
	Tree          []models.TreeEntry    `json:"tree"`
	Truncated     bool                  `json:"truncated"`
	Preselected   selector.Preselection `json:"preselected"`
	Estimates     Estimates             `json:"estimates"`
	DetectedStack []string              `json:"detected_stack"`
	Warnings      []string              `json:"warnings"`
}

// SelectFiles resolves the repository and reports the heuristic selection
// without fetching any content.
func (s *Service) SelectFiles(ctx context.Context, repoURL string) (FileSelection, error) {
	if strings.TrimSpace(repoURL) == "" {
		return FileSelection{}, ErrMissingRepoURL
	}
	repo, err := s.Source.Resolve(ctx, repoURL)
	if err != nil {
		return FileSelection{}, err
	}
	tree, err := s.Source.Tree(ctx, repo)
	if err != nil {
		return FileSelection{}, err
	}

	sel := selector.Select(tree.Entries, s.SelectOpts)
	caps := s.caps()
	return FileSelection{
		Owner:         repo.Owner,
		Repo:          repo.Name,
		RevisionID:    repo.RevisionID,
		DefaultBranch: repo.DefaultBranch,
		Tree:          tree.Entries,
		Truncated:     tree.Truncated,
		Preselected:   selector.Preselect(sel),
		Estimates: Estimates{
			TotalFiles: sel.Stats.SelectedCount,
			TotalChars: sel.Stats.EstimatedChars,
			OverCaps:   sel.Stats.SelectedCount > caps.MaxFiles || sel.Stats.EstimatedChars > caps.MaxChars,
			Caps:       caps,
		},
		DetectedStack: sel.DetectedStack,
		Warnings:      sel.Warnings,
	}, nil
}

type Request struct {
	RepoURL string `json:"repoUrl"`
	// ExtraPaths are added to the heuristic selection.
	ExtraPaths []string `json:"extraPaths,omitempty"`
	// SelectedPaths, when non-empty, replace the heuristic selection and
	// bypass the stored-assessment lookup.
	SelectedPaths []string `json:"selectedPaths,omitempty"`
}

type Stats struct {
	FilesAnalyzed   int      `json:"filesAnalyzed"`
	ChunksProcessed int      `json:"chunksProcessed"`
	TotalChars      int      `json:"totalChars"`
	DetectedStack   []string `json:"detectedStack"`
}

type Response struct {
	AssessmentID string              `json:"assessmentId"`
	Cached       bool                `json:"cached"`
	Rubric       models.RubricOutput `json:"rubricJson"`
	Warnings     []string            `json:"warnings,omitempty"`
	Stats        *Stats              `json:"stats,omitempty"`
}

// Assess produces and stores a rubric for the current revision of
// req.RepoURL. A stored assessment of the same revision is returned as-is
// unless SelectedPaths is set.
func (s *Service) Assess(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.RepoURL) == "" {
		return Response{}, ErrMissingRepoURL
	}
	repo, err := s.Source.Resolve(ctx, req.RepoURL)
	if err != nil {
		return Response{}, err
	}
	logger := log.With().Str("repo", repo.URL).Str("sha", repo.RevisionID).Logger()

	override := len(req.SelectedPaths) > 0
	if !override {
		existing, ok, err := s.Store.FindByRevision(ctx, repo.Owner, repo.Name, repo.RevisionID)
		if err != nil {
			return Response{}, fmt.Errorf("lookup assessment: %w", err)
		}
		if ok {
			logger.Info().Str("assessment", existing.ID).Msg("reusing stored assessment")
			return Response{AssessmentID: existing.ID, Cached: true, Rubric: existing.Rubric}, nil
		}
	}

	tree, err := s.Source.Tree(ctx, repo)
	if err != nil {
		return Response{}, err
	}
	sel := selector.Select(tree.Entries, s.SelectOpts)
	paths := selector.ResolvePaths(tree.Entries, sel, req.ExtraPaths, req.SelectedPaths)

	sizes := make(map[string]int64, len(tree.Entries))
	for _, e := range tree.Entries {
		sizes[e.Path] = e.SizeBytes
	}
	files := make([]chunker.FileRef, len(paths))
	for i, p := range paths {
		files[i] = chunker.FileRef{Path: p, SizeBytes: sizes[p]}
	}
	logger.Info().Int("files", len(files)).Bool("override", override).Msg("fetching files")

	fetched := chunker.FetchAndChunk(ctx, files, source.FetchFunc(s.Source, repo), repo.RevisionID, s.FetchOpts)
	if len(fetched.Chunks) == 0 {
		return Response{}, ErrNoContent
	}

	actx := models.AnalysisContext{
		RepoURL:       repo.URL,
		Owner:         repo.Owner,
		Repo:          repo.Name,
		RevisionID:    repo.RevisionID,
		DefaultBranch: repo.DefaultBranch,
		DetectedStack: sel.DetectedStack,
		AnalyzedPaths: paths,
	}
	an, err := s.Builder.Analyze(ctx, s.Summarizer, actx, fetched.Chunks)
	if err != nil {
		return Response{}, err
	}

	caps := s.caps()
	out := an.Rubric
	out.Meta.ContentCaps = &models.ContentCaps{
		MaxFiles:      caps.MaxFiles,
		MaxTotalChars: int(caps.MaxChars),
		Truncated:     sel.Truncated || fetched.Stats.TruncatedFiles > 0,
	}

	a := &models.Assessment{
		RepoURL:       repo.URL,
		Owner:         repo.Owner,
		Name:          repo.Name,
		DefaultBranch: repo.DefaultBranch,
		RevisionID:    repo.RevisionID,
		SelectedPaths: paths,
		Digests:       fetched.Digests,
		Rubric:        out,
	}
	if err := s.Store.Save(ctx, a); err != nil {
		return Response{}, fmt.Errorf("save assessment: %w", err)
	}
	logger.Info().Str("assessment", a.ID).Str("classification", string(out.Classification)).Msg("assessment stored")

	warnings := make([]string, 0, len(sel.Warnings)+len(fetched.Warnings)+len(an.Notices)+1)
	warnings = append(warnings, sel.Warnings...)
	warnings = append(warnings, fetched.Warnings...)
	if len(an.ValidationErrors) > 0 {
		warnings = append(warnings, "Validation warnings: "+strings.Join(an.ValidationErrors, ", "))
	}
	warnings = append(warnings, an.Notices...)

	return Response{
		AssessmentID: a.ID,
		Rubric:       out,
		Warnings:     warnings,
		Stats: &Stats{
			FilesAnalyzed:   fetched.Stats.TotalFiles,
			ChunksProcessed: fetched.Stats.TotalChunks,
			TotalChars:      fetched.Stats.TotalChars,
			DetectedStack:   sel.DetectedStack,
		},
	}, nil
}

// Get returns a stored assessment.
func (s *Service) Get(ctx context.Context, id string) (models.Assessment, error) {
	return s.Store.Get(ctx, id)
}

// List returns stored assessments, newest first.
func (s *Service) List(ctx context.Context, opt store.ListOpts) ([]models.AssessmentSummary, error) {
	return s.Store.List(ctx, opt)
}

// RepoTree is the browsable tree of a repository revision.
type RepoTree struct {
	Tree          []models.TreeEntry `json:"tree"`
	DefaultBranch string             `json:"defaultBranch"`
	Description   string             `json:"description"`
	RevisionID    string             `json:"commitSha"`
	Truncated     bool               `json:"truncated"`
}

// Tree lists a repository at revisionID, or at the head of its default
// branch when revisionID is empty.
func (s *Service) Tree(ctx context.Context, repoURL, revisionID string) (RepoTree, error) {
	repo, err := s.Source.Resolve(ctx, repoURL)
	if err != nil {
		return RepoTree{}, err
	}
	if revisionID != "" {
		repo.RevisionID = revisionID
	}
	tree, err := s.Source.Tree(ctx, repo)
	if err != nil {
		return RepoTree{}, err
	}
	return RepoTree{
		Tree:          tree.Entries,
		DefaultBranch: repo.DefaultBranch,
		Description:   repo.Description,
		RevisionID:    repo.RevisionID,
		Truncated:     tree.Truncated,
	}, nil
}
