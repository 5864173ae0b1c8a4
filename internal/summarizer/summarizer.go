// Package summarizer produces short structured summaries of chunks with
// bounded-concurrency LLM calls.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/internal/ai"
	"github.com/seanblong/reporubric/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize   = 3
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 500

	// PlaceholderFinding is used when a response has no findings section.
	PlaceholderFinding = "See summary above"
)

const systemPrompt = `You are a code analyst. Summarize the provided file content concisely.
Cover:
- what the file does
- its key functions, types or exports
- the libraries and services it depends on
- workflow, automation or LLM usage patterns it contains

Stay under 200 words. Then write a line "Key findings:" followed by 2-5 bullet points starting with "-".`

// Cache stores summaries by citation id.
type Cache interface {
	Get(citationID string) (models.FileSummary, bool)
	Add(citationID string, summary models.FileSummary)
}

type Summarizer struct {
	Client      ai.Client
	BatchSize   int
	Cache       Cache
	Temperature float32
	MaxTokens   int
}

// New creates a Summarizer with default batch size and sampling settings.
func New(client ai.Client) *Summarizer {
	return &Summarizer{
		Client:      client,
		BatchSize:   DefaultBatchSize,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Summarize returns one summary per chunk, in input order. Chunks are
// processed in batches; every call of a batch runs concurrently and the
// next batch starts only once the whole batch is done. The first failure in
// a batch cancels its siblings and aborts the run.
func (s *Summarizer) Summarize(ctx context.Context, chunks []models.Chunk) ([]models.FileSummary, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	out := make([]models.FileSummary, len(chunks))
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				sum, err := s.SummarizeChunk(gctx, chunks[i])
				if err != nil {
					return fmt.Errorf("summarize %s [%s]: %w", chunks[i].Path, chunks[i].CitationID, err)
				}
				out[i] = sum
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		log.Debug().Int("done", end).Int("total", len(chunks)).Msg("summary batch complete")
	}
	return out, nil
}

// SummarizeChunk summarizes a single chunk, consulting the cache first.
func (s *Summarizer) SummarizeChunk(ctx context.Context, c models.Chunk) (models.FileSummary, error) {
	if s.Cache != nil {
		if sum, ok := s.Cache.Get(c.CitationID); ok {
			return sum, nil
		}
	}

	text, err := s.Client.Complete(ctx, ai.Request{
		System:      systemPrompt,
		User:        userPrompt(c),
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	})
	if err != nil {
		return models.FileSummary{}, err
	}

	sum := ParseSummary(c.Path, c.CitationID, text)
	if s.Cache != nil {
		s.Cache.Add(c.CitationID, sum)
	}
	return sum, nil
}

func userPrompt(c models.Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s (lines %d-%d)\n", c.Path, c.LineStart, c.LineEnd)
	fmt.Fprintf(&sb, "Citation ID: %s\n\n", c.CitationID)
	sb.WriteString("Content:\n```\n")
	sb.WriteString(c.Content)
	sb.WriteString("\n```\n\nProvide a brief summary and key findings.")
	return sb.String()
}

// ParseSummary splits a response at its key findings marker. Non-empty lines
// before the marker form the summary; bulleted lines after it are findings.
func ParseSummary(path, citationID, text string) models.FileSummary {
	var summary, findings []string
	inFindings := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if !inFindings && (strings.Contains(lower, "key finding") || strings.Contains(lower, "findings:")) {
			inFindings = true
			continue
		}
		if inFindings {
			if item, ok := bullet(trimmed); ok && item != "" {
				findings = append(findings, item)
			}
			continue
		}
		if trimmed != "" {
			summary = append(summary, trimmed)
		}
	}

	sum := models.FileSummary{
		Path:        path,
		CitationID:  citationID,
		Summary:     strings.Join(summary, " "),
		KeyFindings: findings,
	}
	if sum.Summary == "" {
		sum.Summary = strings.TrimSpace(text)
	}
	if len(sum.KeyFindings) == 0 {
		sum.KeyFindings = []string{PlaceholderFinding}
	}
	return sum
}

func bullet(line string) (string, bool) {
	for _, marker := range []string{"-", "*", "•"} {
		if strings.HasPrefix(line, marker) {
			return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
		}
	}
	return "", false
}
