// Package rubric turns file summaries into a validated, citation-backed
// rubric using a schema-constrained LLM request.
package rubric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/internal/ai"
	"github.com/seanblong/reporubric/internal/chunker"
	"github.com/seanblong/reporubric/internal/validate"
	"github.com/seanblong/reporubric/pkg/models"
)

const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 8000
)

// ErrUnparseable is returned when the model response is not a JSON object.
var ErrUnparseable = errors.New("rubric response is not valid JSON")

// ValidationError is returned in strict mode when the parsed rubric fails
// validation.
type ValidationError struct {
	Errors []validate.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return "rubric validation failed:\n" + strings.Join(msgs, "\n")
}

type Builder struct {
	Client ai.Client
	Schema json.RawMessage
	// Strict makes validation failures fatal. Otherwise they are returned
	// alongside the parsed rubric.
	Strict      bool
	Temperature float32
	MaxTokens   int
}

func New(client ai.Client) *Builder {
	return &Builder{
		Client:      client,
		Schema:      DefaultSchema(),
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

type Result struct {
	Rubric           models.RubricOutput
	Raw              string
	ValidationErrors []string
	// Notices are advisory policy findings; they never affect validity.
	Notices []string
}

// BuildAssessment requests a rubric for the given summaries. Meta identity
// fields are taken from actx and every citation gets a computed url.
func (b *Builder) BuildAssessment(ctx context.Context, actx models.AnalysisContext, summaries []models.FileSummary, chunks []models.Chunk) (Result, error) {
	schema := b.Schema
	if len(schema) == 0 {
		schema = DefaultSchema()
	}

	raw, err := b.Client.Complete(ctx, ai.Request{
		System:      SystemPrompt,
		User:        BuildPrompt(actx, summaries, chunks),
		Schema:      schema,
		SchemaName:  SchemaName,
		Temperature: b.Temperature,
		MaxTokens:   b.MaxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("rubric request: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(stripFence(raw)), &doc); err != nil || doc == nil {
		return Result{Raw: raw}, fmt.Errorf("%w: %s", ErrUnparseable, excerpt(raw, 200))
	}

	enrich(doc, actx, chunks)
	enriched, err := json.Marshal(doc)
	if err != nil {
		return Result{Raw: raw}, fmt.Errorf("encode rubric: %w", err)
	}

	res := Result{Raw: raw}
	// Type mismatches leave zero values; they are reported by validation.
	var typeErr *json.UnmarshalTypeError
	if err := json.Unmarshal(enriched, &res.Rubric); err != nil && !errors.As(err, &typeErr) {
		return res, fmt.Errorf("decode rubric: %w", err)
	}

	v := validate.Validate(json.RawMessage(enriched))
	if !v.Valid {
		if b.Strict {
			return res, &ValidationError{Errors: v.Errors}
		}
		log.Warn().Int("errors", len(v.Errors)).Msg("Rubric failed validation, returning it with errors")
		res.ValidationErrors = v.Strings()
	}
	res.Notices = validate.Policy(res.Rubric)
	return res, nil
}

// stripFence removes a markdown code fence some providers wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func strs(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// enrich overwrites model-authored fields that have an authoritative
// source: repository identity and citation coordinates of known chunks.
func enrich(doc map[string]any, actx models.AnalysisContext, chunks []models.Chunk) {
	meta, ok := doc["meta"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		doc["meta"] = meta
	}
	meta["repo_url"] = actx.RepoURL
	meta["owner"] = actx.Owner
	meta["repo"] = actx.Repo
	meta["commit_sha"] = actx.RevisionID
	meta["default_branch"] = actx.DefaultBranch
	meta["detected_stack"] = strs(actx.DetectedStack)
	meta["analyzed_paths"] = strs(actx.AnalyzedPaths)

	byID := make(map[string]models.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.CitationID] = c
	}

	cits, _ := doc["citations"].([]any)
	for _, item := range cits {
		cit, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := cit["id"].(string)
		if c, ok := byID[id]; ok {
			cit["path"] = c.Path
			cit["commit_sha"] = c.RevisionID
			cit["line_start"] = c.LineStart
			cit["line_end"] = c.LineEnd
		} else if s, _ := cit["commit_sha"].(string); s == "" {
			cit["commit_sha"] = actx.RevisionID
		}

		p, _ := cit["path"].(string)
		start, okStart := lineNumber(cit["line_start"])
		end, okEnd := lineNumber(cit["line_end"])
		if p != "" && okStart && okEnd {
			cit["url"] = citationURL(actx, p, start, end)
		}
	}
}

func lineNumber(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// citationURL links to the hosting site when the repository identity is
// known, and to a path under RepoURL otherwise.
func citationURL(actx models.AnalysisContext, path string, start, end int) string {
	if actx.Owner != "" && actx.Repo != "" {
		return chunker.CitationURL(actx.Owner, actx.Repo, actx.RevisionID, path, start, end)
	}
	return fmt.Sprintf("%s/%s#L%d-L%d", strings.TrimSuffix(actx.RepoURL, "/"), path, start, end)
}

// Summarizer produces one summary per chunk.
type Summarizer interface {
	Summarize(ctx context.Context, chunks []models.Chunk) ([]models.FileSummary, error)
}

type Analysis struct {
	Rubric           models.RubricOutput  `json:"rubric"`
	Summaries        []models.FileSummary `json:"summaries"`
	ValidationErrors []string             `json:"validation_errors"`
	Notices          []string             `json:"notices,omitempty"`
	Raw              string               `json:"-"`
}

// Analyze summarizes chunks and builds the rubric from the summaries.
func (b *Builder) Analyze(ctx context.Context, s Summarizer, actx models.AnalysisContext, chunks []models.Chunk) (Analysis, error) {
	summaries, err := s.Summarize(ctx, chunks)
	if err != nil {
		return Analysis{}, err
	}
	log.Info().Int("summaries", len(summaries)).Msg("Chunks summarized")

	res, err := b.BuildAssessment(ctx, actx, summaries, chunks)
	if err != nil {
		return Analysis{Summaries: summaries, Raw: res.Raw}, err
	}
	errs := res.ValidationErrors
	if errs == nil {
		errs = []string{}
	}
	return Analysis{
		Rubric:           res.Rubric,
		Summaries:        summaries,
		ValidationErrors: errs,
		Notices:          res.Notices,
		Raw:              res.Raw,
	}, nil
}
