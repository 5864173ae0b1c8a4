package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type VertexAIClient struct {
	config *ClientConfig
	client *genai.Client
}

// NewVertexAIClient creates a new client for the Google Gemini API.
// ProviderGemini uses the Gemini API backend, anything else Vertex AI.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if config.Provider == ProviderGemini {
		cc.Backend = genai.BackendGeminiAPI
	}

	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if cc.Backend == genai.BackendVertexAI {
		if strings.TrimSpace(config.ProjectID) != "" {
			cc.Project = config.ProjectID
		}
		if strings.TrimSpace(config.Location) != "" {
			cc.Location = config.Location
		}
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{
		config: config,
		client: client,
	}, nil
}

// Complete implements Client using GenerateContent. Structured requests set
// the response MIME type to JSON and pass the schema as a genai.Schema.
func (c *VertexAIClient) Complete(ctx context.Context, req Request) (string, error) {
	temp := req.Temperature
	cfg := genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.Text(req.System)[0]
	}
	if len(req.Schema) > 0 {
		schema, err := GenaiSchema(req.Schema)
		if err != nil {
			return "", &PermanentError{Err: err}
		}
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = schema
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(req.User), &cfg)
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

// GenaiSchema converts a JSON schema document into the subset genai
// understands: type, properties, required, items, enum, minimum, maximum
// and description.
func GenaiSchema(raw json.RawMessage) (*genai.Schema, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return convertSchema(doc, "$")
}

func convertSchema(node map[string]any, at string) (*genai.Schema, error) {
	s := &genai.Schema{}
	if d, ok := node["description"].(string); ok {
		s.Description = d
	}

	switch t, _ := node["type"].(string); t {
	case "object":
		s.Type = genai.TypeObject
		props, _ := node["properties"].(map[string]any)
		if len(props) > 0 {
			s.Properties = make(map[string]*genai.Schema, len(props))
		}
		for name, p := range props {
			pm, ok := p.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.%s: property is not an object", at, name)
			}
			child, err := convertSchema(pm, at+"."+name)
			if err != nil {
				return nil, err
			}
			s.Properties[name] = child
		}
		if req, ok := node["required"].([]any); ok {
			for _, r := range req {
				if name, ok := r.(string); ok {
					s.Required = append(s.Required, name)
				}
			}
		}
	case "array":
		s.Type = genai.TypeArray
		if items, ok := node["items"].(map[string]any); ok {
			child, err := convertSchema(items, at+"[]")
			if err != nil {
				return nil, err
			}
			s.Items = child
		}
	case "string":
		s.Type = genai.TypeString
		if enum, ok := node["enum"].([]any); ok {
			for _, e := range enum {
				if v, ok := e.(string); ok {
					s.Enum = append(s.Enum, v)
				}
			}
		}
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		return nil, fmt.Errorf("%s: unsupported schema type %q", at, t)
	}

	if v, ok := node["minimum"].(float64); ok {
		s.Minimum = &v
	}
	if v, ok := node["maximum"].(float64); ok {
		s.Maximum = &v
	}
	return s, nil
}
