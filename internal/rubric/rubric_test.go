package rubric

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/reporubric/internal/ai"
	"github.com/seanblong/reporubric/internal/chunker"
	"github.com/seanblong/reporubric/pkg/models"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// MockAIClient implements ai.Client for testing
type MockAIClient struct {
	CompleteFunc func(ctx context.Context, req ai.Request) (string, error)
	requests     []ai.Request
}

func (m *MockAIClient) Complete(ctx context.Context, req ai.Request) (string, error) {
	m.requests = append(m.requests, req)
	return m.CompleteFunc(ctx, req)
}

// MockSummarizer implements Summarizer for testing
type MockSummarizer struct {
	SummarizeFunc func(ctx context.Context, chunks []models.Chunk) ([]models.FileSummary, error)
}

func (m *MockSummarizer) Summarize(ctx context.Context, chunks []models.Chunk) ([]models.FileSummary, error) {
	return m.SummarizeFunc(ctx, chunks)
}

func testContext() models.AnalysisContext {
	return models.AnalysisContext{
		RepoURL:       "https://github.com/acme/widgets",
		Owner:         "acme",
		Repo:          "widgets",
		RevisionID:    "abc123",
		DefaultBranch: "main",
		DetectedStack: []string{"go"},
		AnalyzedPaths: []string{"go.mod", "main.go"},
	}
}

func testChunks() []models.Chunk {
	var out []models.Chunk
	out = append(out, chunker.ChunkFile("module example.com/widgets\n\nrequire github.com/openai/openai-go v1.0.0", "go.mod", "abc123", chunker.Options{}).Chunks...)
	out = append(out, chunker.ChunkFile("package main\n\nfunc main() {}\n", "main.go", "abc123", chunker.Options{}).Chunks...)
	return out
}

func summariesFor(chunks []models.Chunk) []models.FileSummary {
	out := make([]models.FileSummary, len(chunks))
	for i, c := range chunks {
		out[i] = models.FileSummary{Path: c.Path, CitationID: c.CitationID, Summary: "summary of " + c.Path, KeyFindings: []string{"finding"}}
	}
	return out
}

func TestBuildAssessment_StubProducesValidRubric(t *testing.T) {
	chunks := testChunks()
	b := New(ai.NewStubClient())

	res, err := b.BuildAssessment(context.Background(), testContext(), summariesFor(chunks), chunks)
	if err != nil {
		t.Fatalf("BuildAssessment failed: %v", err)
	}
	if len(res.ValidationErrors) != 0 {
		t.Fatalf("unexpected validation errors: %v", res.ValidationErrors)
	}
	r := res.Rubric
	if r.Meta.Owner != "acme" || r.Meta.RevisionID != "abc123" || len(r.Meta.AnalyzedPaths) != 2 {
		t.Errorf("meta not taken from context: %+v", r.Meta)
	}
	if len(r.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(r.Citations))
	}
	c := r.Citations[1]
	if c.Path != "main.go" || c.LineStart != 1 || c.LineEnd != 4 || c.RevisionID != "abc123" {
		t.Errorf("citation not backfilled from chunk: %+v", c)
	}
	if want := "https://github.com/acme/widgets/blob/abc123/main.go#L1-L4"; c.URL != want {
		t.Errorf("URL = %q, want %q", c.URL, want)
	}
}

func TestBuildAssessment_Request(t *testing.T) {
	m := &MockAIClient{CompleteFunc: ai.NewStubClient().Complete}
	chunks := testChunks()
	if _, err := New(m).BuildAssessment(context.Background(), testContext(), summariesFor(chunks), chunks); err != nil {
		t.Fatalf("BuildAssessment failed: %v", err)
	}
	if len(m.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(m.requests))
	}
	req := m.requests[0]
	if req.System != SystemPrompt || req.SchemaName != SchemaName {
		t.Error("unexpected system prompt or schema name")
	}
	if req.Temperature != DefaultTemperature || req.MaxTokens != DefaultMaxTokens {
		t.Errorf("unexpected sampling %v/%d", req.Temperature, req.MaxTokens)
	}
	if string(req.Schema) != string(DefaultSchema()) {
		t.Error("default schema not sent")
	}
}

const invalidRubric = `{
	"meta": {},
	"classification": "Z_UNKNOWN",
	"scores": {"variability": 9, "strategic_importance": 1, "operational_impact": 1, "integration_readiness": 1, "blast_radius_risk": 1, "confidence": 0.5},
	"outcomes": {}, "tasks": [], "execution_modes": [], "guardrails": {}, "pilot": {}, "risks": {}, "citations": []
}`

func TestBuildAssessment_Validation(t *testing.T) {
	m := &MockAIClient{CompleteFunc: func(ctx context.Context, req ai.Request) (string, error) {
		return invalidRubric, nil
	}}
	chunks := testChunks()

	t.Run("permissive", func(t *testing.T) {
		res, err := New(m).BuildAssessment(context.Background(), testContext(), nil, chunks)
		if err != nil {
			t.Fatalf("permissive mode must not fail: %v", err)
		}
		if len(res.ValidationErrors) < 3 {
			t.Errorf("expected validation errors, got %v", res.ValidationErrors)
		}
		if res.Rubric.Classification != "Z_UNKNOWN" || res.Rubric.Scores.Variability != 9 {
			t.Errorf("parsed rubric not returned: %+v", res.Rubric)
		}
		if res.Raw != invalidRubric {
			t.Error("raw response not returned")
		}
	})

	t.Run("strict", func(t *testing.T) {
		b := New(m)
		b.Strict = true
		_, err := b.BuildAssessment(context.Background(), testContext(), nil, chunks)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if !strings.Contains(err.Error(), "classification") {
			t.Errorf("error should list failing paths: %v", err)
		}
	})
}

func TestBuildAssessment_Unparseable(t *testing.T) {
	for _, out := range []string{"I think this repo is great", "[1, 2]", "null", ""} {
		m := &MockAIClient{CompleteFunc: func(ctx context.Context, req ai.Request) (string, error) {
			return out, nil
		}}
		_, err := New(m).BuildAssessment(context.Background(), testContext(), nil, nil)
		if !errors.Is(err, ErrUnparseable) {
			t.Errorf("response %q: expected ErrUnparseable, got %v", out, err)
		}
	}
}

func TestBuildAssessment_ClientError(t *testing.T) {
	boom := errors.New("boom")
	m := &MockAIClient{CompleteFunc: func(ctx context.Context, req ai.Request) (string, error) {
		return "", boom
	}}
	if _, err := New(m).BuildAssessment(context.Background(), testContext(), nil, nil); !errors.Is(err, boom) {
		t.Errorf("expected wrapped client error, got %v", err)
	}
}

func TestBuildAssessment_FencedJSON(t *testing.T) {
	chunks := testChunks()
	m := &MockAIClient{CompleteFunc: func(ctx context.Context, req ai.Request) (string, error) {
		out, err := ai.NewStubClient().Complete(ctx, req)
		return "```json\n" + out + "\n```", err
	}}
	res, err := New(m).BuildAssessment(context.Background(), testContext(), nil, chunks)
	if err != nil {
		t.Fatalf("BuildAssessment failed: %v", err)
	}
	if res.Rubric.Classification != models.ClassNotAgentic {
		t.Errorf("unexpected classification %q", res.Rubric.Classification)
	}
}

func TestEnrich(t *testing.T) {
	chunks := testChunks()
	doc := map[string]any{
		"meta": map[string]any{"owner": "someone-else", "repo_url": "https://evil.example"},
		"citations": []any{
			map[string]any{"id": chunks[0].CitationID, "path": "wrong.go", "line_start": 5.0, "line_end": 9.0, "url": "https://evil.example"},
			map[string]any{"id": "CIT-unknown", "path": "docs/x.md", "line_start": 2.0, "line_end": 3.0},
			map[string]any{"id": "CIT-nopath"},
			"not an object",
		},
	}
	enrich(doc, testContext(), chunks)

	meta := doc["meta"].(map[string]any)
	if meta["owner"] != "acme" || meta["repo_url"] != "https://github.com/acme/widgets" {
		t.Errorf("meta not overwritten: %v", meta)
	}
	cits := doc["citations"].([]any)
	first := cits[0].(map[string]any)
	if first["path"] != "go.mod" || first["url"] != "https://github.com/acme/widgets/blob/abc123/go.mod#L1-L3" {
		t.Errorf("known citation not rewritten: %v", first)
	}
	second := cits[1].(map[string]any)
	if second["commit_sha"] != "abc123" || second["url"] != "https://github.com/acme/widgets/blob/abc123/docs/x.md#L2-L3" {
		t.Errorf("unknown citation not enriched: %v", second)
	}
	if _, ok := cits[2].(map[string]any)["url"]; ok {
		t.Error("citation without path should not get a url")
	}
}

func TestCitationURL_Local(t *testing.T) {
	actx := models.AnalysisContext{RepoURL: "file:///src/widgets/", RevisionID: "r1"}
	if got := citationURL(actx, "main.go", 1, 4); got != "file:///src/widgets/main.go#L1-L4" {
		t.Errorf("citationURL = %q", got)
	}
}

func TestAnalyze(t *testing.T) {
	chunks := testChunks()
	s := &MockSummarizer{SummarizeFunc: func(ctx context.Context, c []models.Chunk) ([]models.FileSummary, error) {
		return summariesFor(c), nil
	}}
	a, err := New(ai.NewStubClient()).Analyze(context.Background(), s, testContext(), chunks)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(a.Summaries) != len(chunks) || a.ValidationErrors == nil || len(a.ValidationErrors) != 0 {
		t.Errorf("unexpected analysis %+v", a)
	}

	boom := errors.New("summaries failed")
	s.SummarizeFunc = func(ctx context.Context, c []models.Chunk) ([]models.FileSummary, error) {
		return nil, boom
	}
	if _, err := New(ai.NewStubClient()).Analyze(context.Background(), s, testContext(), chunks); !errors.Is(err, boom) {
		t.Errorf("expected summarizer error, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	chunks := testChunks()
	p := BuildPrompt(testContext(), summariesFor(chunks), chunks)

	for _, want := range []string{
		"- URL: https://github.com/acme/widgets",
		"- Detected Stack: go",
		"- main.go\n",
		"File: go.mod\n```\nmodule example.com/widgets",
		"Check whether ANY AI library is present",
		"### main.go [" + chunks[1].CitationID + "]\nsummary of main.go\n\nKey findings:\n- finding",
		"- " + chunks[0].CitationID + ": go.mod (L1-L3)",
		"(2 files)",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	p = BuildPrompt(models.AnalysisContext{}, nil, chunks[1:])
	if !strings.Contains(p, "No dependency manifest was analyzed") || !strings.Contains(p, "- Detected Stack: Unknown") {
		t.Error("prompt without manifest should say so")
	}
}

func TestBuildPrompt_ManifestExcerpt(t *testing.T) {
	content := strings.Repeat("x", 5000)
	chunks := []models.Chunk{
		{Path: "web/package.json", Content: "nested", CitationID: "CIT-00000001"},
		{Path: "package.json", Content: content, CitationID: "CIT-00000002"},
	}
	p := BuildPrompt(models.AnalysisContext{}, nil, chunks)
	if !strings.Contains(p, "File: package.json\n```\n"+strings.Repeat("x", manifestExcerptChars)+"\n```") {
		t.Error("root manifest should be preferred and cut to the excerpt size")
	}
}

func TestDefaultSchema(t *testing.T) {
	var doc map[string]any
	if err := json.Unmarshal(DefaultSchema(), &doc); err != nil {
		t.Fatalf("default schema is not JSON: %v", err)
	}

	var walk func(node map[string]any, at string)
	walk = func(node map[string]any, at string) {
		switch node["type"] {
		case "object":
			props := node["properties"].(map[string]any)
			req := node["required"].([]any)
			if len(req) != len(props) {
				t.Errorf("%s: %d required of %d properties", at, len(req), len(props))
			}
			if node["additionalProperties"] != false {
				t.Errorf("%s: additionalProperties must be false", at)
			}
			for name, p := range props {
				walk(p.(map[string]any), at+"."+name)
			}
		case "array":
			walk(node["items"].(map[string]any), at+"[]")
		}
	}
	walk(doc, "$")

	cit := doc["properties"].(map[string]any)["citations"].(map[string]any)["items"].(map[string]any)
	if _, ok := cit["properties"].(map[string]any)["url"]; ok {
		t.Error("citation url must not be requested from the model")
	}
	if _, err := ai.GenaiSchema(DefaultSchema()); err != nil {
		t.Errorf("default schema not convertible for genai: %v", err)
	}
}

func TestLoadSchema(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "custom.json")
	if err := os.WriteFile(custom, []byte(`{"type":"object"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte(`{"type":`), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"empty path", "", string(DefaultSchema())},
		{"missing file", filepath.Join(dir, "nope.json"), string(DefaultSchema())},
		{"invalid JSON", broken, string(DefaultSchema())},
		{"custom", custom, `{"type":"object"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(LoadSchema(tt.path)); got != tt.want {
				t.Errorf("LoadSchema(%q) = %s", tt.path, got)
			}
		})
	}
}

func TestStripFence(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                   `{"a":1}`,
		"```json\n{\"a\":1}\n```":   `{"a":1}`,
		"  ```\n{\"a\":1}\n```  \n": `{"a":1}`,
	}
	for in, want := range tests {
		if got := stripFence(in); got != want {
			t.Errorf("stripFence(%q) = %q, want %q", in, got, want)
		}
	}
}
