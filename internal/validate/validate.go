// Package validate checks rubric output for shape, enum domains, numeric
// ranges and citation consistency. It reports every problem it finds and
// never modifies its input.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/seanblong/reporubric/pkg/models"
)

type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors"`
}

// Strings renders the errors as "path: message" lines.
func (r Result) Strings() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.String()
	}
	return out
}

type checker struct {
	errs []FieldError
}

func (c *checker) add(path, format string, args ...any) {
	c.errs = append(c.errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks raw against the rubric shape. raw may be decoded JSON
// (map[string]any), JSON bytes, or any value that marshals to JSON.
func Validate(raw any) Result {
	data, err := normalize(raw)
	if err != nil {
		return Result{Errors: []FieldError{{Message: err.Error()}}}
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return Result{Errors: []FieldError{{Message: "Expected object"}}}
	}

	c := &checker{}
	c.meta(obj)
	c.classification(obj)
	c.scores(obj)
	c.objectField(obj, "outcomes")
	c.tasks(obj)
	c.executionModes(obj)
	c.objectField(obj, "guardrails")
	c.objectField(obj, "pilot")
	c.objectField(obj, "risks")
	c.citations(obj)
	c.references(obj)

	return Result{Valid: len(c.errs) == 0, Errors: c.errs}
}

func normalize(raw any) (any, error) {
	var b []byte
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case nil:
		return nil, nil
	case json.RawMessage:
		b = v
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("value is not JSON encodable: %w", err)
		}
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return out, nil
}

func (c *checker) require(obj map[string]any, prefix string, fields ...string) {
	for _, f := range fields {
		if _, ok := obj[f]; !ok {
			c.add(join(prefix, f), "Required field missing")
		}
	}
}

func join(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

// objectField reports a missing or non-object top-level section and
// returns it when usable.
func (c *checker) objectField(obj map[string]any, field string) (map[string]any, bool) {
	v, ok := obj[field]
	if !ok {
		c.add(field, "Required field missing")
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		c.add(field, "Expected object")
		return nil, false
	}
	return m, true
}

func (c *checker) arrayField(obj map[string]any, field string) ([]any, bool) {
	v, ok := obj[field]
	if !ok {
		c.add(field, "Required field missing")
		return nil, false
	}
	a, ok := v.([]any)
	if !ok {
		c.add(field, "Expected array")
		return nil, false
	}
	return a, true
}

func (c *checker) stringArray(v any, path string) {
	a, ok := v.([]any)
	if !ok {
		c.add(path, "Expected array")
		return
	}
	for i, item := range a {
		if _, ok := item.(string); !ok {
			c.add(fmt.Sprintf("%s[%d]", path, i), "Expected string")
		}
	}
}

func (c *checker) score(v any, path string, lo, hi int) {
	n, ok := v.(float64)
	if !ok {
		c.add(path, "Expected number")
		return
	}
	if n != math.Trunc(n) {
		c.add(path, "Expected integer")
		return
	}
	if n < float64(lo) || n > float64(hi) {
		c.add(path, "Expected value between %d and %d", lo, hi)
	}
}

func enumValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func (c *checker) enum(v any, path string, allowed []string) {
	s, ok := v.(string)
	if !ok || !slices.Contains(allowed, s) {
		c.add(path, "Invalid value. Expected one of: %s", strings.Join(allowed, ", "))
	}
}

func (c *checker) meta(obj map[string]any) {
	meta, ok := c.objectField(obj, "meta")
	if !ok {
		return
	}
	c.require(meta, "meta", "repo_url", "owner", "repo", "commit_sha", "default_branch", "analyzed_paths")
	if v, ok := meta["analyzed_paths"]; ok {
		c.stringArray(v, "meta.analyzed_paths")
	}
}

func (c *checker) classification(obj map[string]any) {
	v, ok := obj["classification"]
	if !ok {
		c.add("classification", "Required field missing")
		return
	}
	c.enum(v, "classification", enumValues(models.Classifications))
}

var scoreFields = []string{
	"variability",
	"strategic_importance",
	"operational_impact",
	"integration_readiness",
	"blast_radius_risk",
}

func (c *checker) scores(obj map[string]any) {
	scores, ok := c.objectField(obj, "scores")
	if !ok {
		return
	}
	for _, f := range scoreFields {
		if v, ok := scores[f]; ok {
			c.score(v, "scores."+f, 1, 5)
		} else {
			c.add("scores."+f, "Required field missing")
		}
	}
	conf, ok := scores["confidence"]
	if !ok {
		c.add("scores.confidence", "Required field missing")
		return
	}
	if n, ok := conf.(float64); !ok || n < 0 || n > 1 {
		c.add("scores.confidence", "Expected number between 0 and 1")
	}
}

func (c *checker) tasks(obj map[string]any) {
	tasks, ok := c.arrayField(obj, "tasks")
	if !ok {
		return
	}
	if len(tasks) == 0 {
		c.add("tasks", "At least one task required")
		return
	}
	recs := enumValues(models.Recommendations)
	for i, item := range tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		task, ok := item.(map[string]any)
		if !ok {
			c.add(path, "Expected object")
			continue
		}
		c.require(task, path, "task_id", "name", "current_actor", "inputs", "outputs", "scores", "recommendation", "rationale", "citations")
		if v, ok := task["recommendation"]; ok {
			c.enum(v, path+".recommendation", recs)
		}
		if v, ok := task["scores"]; ok {
			if s, ok := v.(map[string]any); ok {
				for _, f := range []string{"variability", "criticality", "risk"} {
					c.score(s[f], path+".scores."+f, 1, 5)
				}
			} else {
				c.add(path+".scores", "Expected object")
			}
		}
		for _, f := range []string{"inputs", "outputs", "citations"} {
			if v, ok := task[f]; ok {
				c.stringArray(v, path+"."+f)
			}
		}
	}
}

func (c *checker) executionModes(obj map[string]any) {
	modes, ok := c.arrayField(obj, "execution_modes")
	if !ok {
		return
	}
	allowed := enumValues(models.Modes)
	for i, item := range modes {
		path := fmt.Sprintf("execution_modes[%d]", i)
		mode, ok := item.(map[string]any)
		if !ok {
			c.add(path, "Expected object")
			continue
		}
		c.require(mode, path, "task_id", "mode", "why", "constraints", "citations")
		if v, ok := mode["mode"]; ok {
			c.enum(v, path+".mode", allowed)
		}
		for _, f := range []string{"constraints", "citations"} {
			if v, ok := mode[f]; ok {
				c.stringArray(v, path+"."+f)
			}
		}
	}
}

func (c *checker) citations(obj map[string]any) {
	cits, ok := c.arrayField(obj, "citations")
	if !ok {
		return
	}
	for i, item := range cits {
		path := fmt.Sprintf("citations[%d]", i)
		cit, ok := item.(map[string]any)
		if !ok {
			c.add(path, "Expected object")
			continue
		}
		c.require(cit, path, "id", "path", "commit_sha", "line_start", "line_end", "url")
		start, okStart := positive(cit["line_start"])
		if _, present := cit["line_start"]; present && !okStart {
			c.add(path+".line_start", "Expected positive integer")
		}
		end, okEnd := positive(cit["line_end"])
		if _, present := cit["line_end"]; present && !okEnd {
			c.add(path+".line_end", "Expected positive integer")
		}
		if okStart && okEnd && end < start {
			c.add(path+".line_end", "Expected line_end >= line_start")
		}
	}
}

func positive(v any) (float64, bool) {
	n, ok := v.(float64)
	if !ok || n < 1 || n != math.Trunc(n) {
		return 0, false
	}
	return n, true
}

// references checks that cited ids exist in citations and that referenced
// task ids exist in tasks. It only runs over well-formed sections; shape
// problems are already reported elsewhere.
func (c *checker) references(obj map[string]any) {
	citIDs := map[string]bool{}
	cits, _ := obj["citations"].([]any)
	for _, item := range cits {
		if cit, ok := item.(map[string]any); ok {
			if id, ok := cit["id"].(string); ok {
				citIDs[id] = true
			}
		}
	}
	taskIDs := map[string]bool{}
	tasks, _ := obj["tasks"].([]any)
	for _, item := range tasks {
		if t, ok := item.(map[string]any); ok {
			if id, ok := t["task_id"].(string); ok {
				taskIDs[id] = true
			}
		}
	}

	checkCited := func(path string, entry map[string]any) {
		ids, ok := entry["citations"].([]any)
		if !ok {
			return
		}
		if len(ids) == 0 {
			c.add(path+".citations", "At least one citation required")
			return
		}
		for j, id := range ids {
			s, ok := id.(string)
			if ok && !citIDs[s] {
				c.add(fmt.Sprintf("%s.citations[%d]", path, j), "Unknown citation id %q", s)
			}
		}
	}

	for i, item := range tasks {
		if t, ok := item.(map[string]any); ok {
			checkCited(fmt.Sprintf("tasks[%d]", i), t)
		}
	}
	modes, _ := obj["execution_modes"].([]any)
	for i, item := range modes {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		path := fmt.Sprintf("execution_modes[%d]", i)
		checkCited(path, m)
		if id, ok := m["task_id"].(string); ok && len(tasks) > 0 && !taskIDs[id] {
			c.add(path+".task_id", "Unknown task id %q", id)
		}
	}
	if pilot, ok := obj["pilot"].(map[string]any); ok {
		if id, ok := pilot["recommended_first_task_id"].(string); ok && id != "" && len(tasks) > 0 && !taskIDs[id] {
			c.add("pilot.recommended_first_task_id", "Unknown task id %q", id)
		}
	}
}
