package rubric

import (
	"encoding/json"
	"os"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/pkg/models"
)

// SchemaName is sent with structured requests.
const SchemaName = "rubric_assessment"

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	slices.Sort(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func array(items any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func enum[T ~string](values []T) map[string]any {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return map[string]any{"type": "string", "enum": out}
}

func score() map[string]any {
	return map[string]any{"type": "integer", "minimum": 1, "maximum": 5}
}

var (
	stringType = map[string]any{"type": "string"}
	stringList = array(stringType)
)

// defaultSchema is the structured output contract. Every object lists all
// of its properties as required so it is accepted by strict providers.
// Citation urls are not part of it; they are computed after generation.
func defaultSchema() map[string]any {
	return object(map[string]any{
		"meta": object(map[string]any{
			"repo_url":       stringType,
			"owner":          stringType,
			"repo":           stringType,
			"commit_sha":     stringType,
			"default_branch": stringType,
			"detected_stack": stringList,
			"analyzed_paths": stringList,
		}),
		"classification": enum(models.Classifications),
		"scores": object(map[string]any{
			"variability":           score(),
			"strategic_importance":  score(),
			"operational_impact":    score(),
			"integration_readiness": score(),
			"blast_radius_risk":     score(),
			"confidence":            map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		}),
		"outcomes": object(map[string]any{
			"enterprise_outcome": stringType,
			"workflow_outcome":   stringType,
			"kpis": object(map[string]any{
				"efficiency":      stringList,
				"quality":         stringList,
				"business_impact": stringList,
				"risk_compliance": stringList,
			}),
		}),
		"tasks": array(object(map[string]any{
			"task_id":       stringType,
			"name":          stringType,
			"current_actor": stringType,
			"inputs":        stringList,
			"outputs":       stringList,
			"scores": object(map[string]any{
				"variability": score(),
				"criticality": score(),
				"risk":        score(),
			}),
			"recommendation": enum(models.Recommendations),
			"rationale":      stringType,
			"citations":      stringList,
		})),
		"execution_modes": array(object(map[string]any{
			"task_id":     stringType,
			"mode":        enum(models.Modes),
			"why":         stringType,
			"constraints": stringList,
			"citations":   stringList,
		})),
		"guardrails": object(map[string]any{
			"strategic":      stringList,
			"operational":    stringList,
			"implementation": stringList,
		}),
		"pilot": object(map[string]any{
			"recommended_first_task_id": stringType,
			"baseline":                  stringList,
			"success_thresholds":        stringList,
			"sandbox_plan":              stringList,
			"rollback_plan":             stringList,
			"monitoring":                stringList,
		}),
		"risks": object(map[string]any{
			"key_risks":   stringList,
			"unknowns":    stringList,
			"assumptions": stringList,
		}),
		"citations": array(object(map[string]any{
			"id":         stringType,
			"path":       stringType,
			"commit_sha": stringType,
			"line_start": map[string]any{"type": "integer", "minimum": 1},
			"line_end":   map[string]any{"type": "integer", "minimum": 1},
			"note":       stringType,
		})),
	})
}

// DefaultSchema returns the built-in JSON schema.
func DefaultSchema() json.RawMessage {
	b, err := json.Marshal(defaultSchema())
	if err != nil {
		panic(err)
	}
	return b
}

// LoadSchema reads a JSON schema from path. An empty path, an unreadable
// file or invalid JSON yields the built-in schema.
func LoadSchema(path string) json.RawMessage {
	if path == "" {
		return DefaultSchema()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Could not read schema file, using built-in schema")
		return DefaultSchema()
	}
	var probe map[string]any
	if err := json.Unmarshal(b, &probe); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Schema file is not a JSON object, using built-in schema")
		return DefaultSchema()
	}
	return b
}
