package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Request is one chat completion. When Schema is set the provider is asked
// for structured output conforming to it.
type Request struct {
	System      string
	User        string
	Schema      json.RawMessage
	SchemaName  string
	Temperature float32
	MaxTokens   int
}

// Client is a chat/completion capable LLM provider.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderGemini   Provider = "gemini"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey    string
	Model     string
	ProjectID string
	Provider  Provider
	Location  string
	BaseURL   string
}

// PermanentError marks a failure that retrying will not fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// NewClient creates a new AI client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI, ProviderGemini:
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient answers without a model. Summaries come from leading comment
// lines; structured requests get a conservative rubric citing whatever
// citation ids appear in the prompt.
type StubClient struct{}

// NewStubClient creates a new StubClient
func NewStubClient() *StubClient {
	return &StubClient{}
}

var citationRef = regexp.MustCompile(`CIT-[0-9a-f]{8}`)

func (s *StubClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Schema) > 0 {
		return stubRubric(citationRef.FindAllString(req.User, -1))
	}
	return stubSummary(req.User), nil
}

func stubSummary(prompt string) string {
	summary := "File content without descriptive comments."
	lines := strings.Split(prompt, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			if len(line) > 10 {
				summary = strings.TrimSpace(strings.TrimLeft(line, "#/ "))
				break
			}
		}
	}
	return summary + "\n\nKey findings:\n- No model was consulted for this summary"
}

func stubRubric(ids []string) (string, error) {
	seen := map[string]bool{}
	var citations []map[string]any
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		citations = append(citations, map[string]any{
			"id": id, "path": "", "commit_sha": "", "line_start": 1, "line_end": 1, "note": "",
		})
	}
	cited := []string{}
	if len(citations) > 0 {
		cited = []string{citations[0]["id"].(string)}
	}
	if citations == nil {
		citations = []map[string]any{}
	}
	empty := []string{}
	out := map[string]any{
		"meta":           map[string]any{"repo_url": "", "owner": "", "repo": "", "commit_sha": "", "default_branch": "", "detected_stack": empty, "analyzed_paths": empty},
		"classification": "A_NOT_AGENTIC",
		"scores": map[string]any{
			"variability": 1, "strategic_importance": 1, "operational_impact": 1,
			"integration_readiness": 1, "blast_radius_risk": 1, "confidence": 0.1,
		},
		"outcomes": map[string]any{
			"enterprise_outcome": "Not assessed", "workflow_outcome": "Not assessed",
			"kpis": map[string]any{"efficiency": empty, "quality": empty, "business_impact": empty, "risk_compliance": empty},
		},
		"tasks": []any{map[string]any{
			"task_id": "T1", "name": "Manual review", "current_actor": "human",
			"inputs": empty, "outputs": empty,
			"scores":         map[string]any{"variability": 1, "criticality": 1, "risk": 1},
			"recommendation": "HUMAN", "rationale": "No model was consulted.", "citations": cited,
		}},
		"execution_modes": []any{map[string]any{
			"task_id": "T1", "mode": "STATIC", "why": "No model was consulted.", "constraints": empty, "citations": cited,
		}},
		"guardrails": map[string]any{"strategic": empty, "operational": empty, "implementation": empty},
		"pilot": map[string]any{
			"recommended_first_task_id": "T1", "baseline": empty, "success_thresholds": empty,
			"sandbox_plan": empty, "rollback_plan": empty, "monitoring": empty,
		},
		"risks":     map[string]any{"key_risks": empty, "unknowns": []string{"Assessment produced by the stub provider"}, "assumptions": empty},
		"citations": citations,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("stub rubric: %w", err)
	}
	return string(b), nil
}
