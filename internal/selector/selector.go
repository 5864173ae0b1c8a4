// Package selector ranks repository files for analysis under file-count
// and character budgets.
package selector

import (
	"path"
	"regexp"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/pkg/models"
)

const (
	DefaultMaxFiles      = 25
	DefaultMaxTotalChars = 250_000

	// MaxTestFiles caps tier-3 files regardless of budget headroom.
	MaxTestFiles = 3

	// charsPerByte is the character estimate used for budget accounting.
	charsPerByte = 1

	largeTreeEntries = 1000
	fewCandidates    = 5
)

const (
	WarnNoCandidates = "No candidate files found in repository"
	WarnFewFiles     = "Very few files found - assessment confidence may be low"
	WarnNoReadme     = "No README.md found"
	WarnTruncated    = "Selection truncated due to limits; consider adding specific files manually"
	WarnLargeRepo    = "Large repository (>1000 files); some files may be missed"
)

type Options struct {
	MaxFiles      int
	MaxTotalChars int64
}

func (o Options) withDefaults() Options {
	if o.MaxFiles <= 0 {
		o.MaxFiles = DefaultMaxFiles
	}
	if o.MaxTotalChars <= 0 {
		o.MaxTotalChars = DefaultMaxTotalChars
	}
	return o
}

var readmePattern = regexp.MustCompile(`(?i)^README\.md$`)

// isCandidate reports whether a tree entry is worth reading as text.
func isCandidate(e models.TreeEntry) bool {
	if e.Kind != models.EntryFile {
		return false
	}
	if inIgnoredDir(e.Path) {
		return false
	}
	ext := extension(e.Path)
	if _, ok := ignoredExtensions[ext]; ok {
		return false
	}
	if _, ok := textExtensions[ext]; ok {
		return true
	}
	_, ok := specialFilenames[path.Base(e.Path)]
	return ok
}

// Candidate classifies a single path. It is exported for callers that add
// files to a selection by hand.
func Candidate(p string, size int64) models.CandidateFile {
	tier, reason := classify(p)
	return models.CandidateFile{
		Path:      p,
		Tier:      tier,
		Weight:    Weight(tier),
		SizeBytes: size,
		Reason:    reason,
	}
}

// Less orders candidates by weight desc, depth asc, size asc, path asc.
func Less(a, b models.CandidateFile) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	if da, db := depth(a.Path), depth(b.Path); da != db {
		return da < db
	}
	if a.SizeBytes != b.SizeBytes {
		return a.SizeBytes < b.SizeBytes
	}
	return a.Path < b.Path
}

// Select filters, ranks and greedily accepts files from tree.
// It never fails: data-quality issues are reported as warnings.
func Select(tree []models.TreeEntry, opts Options) models.SelectionResult {
	opts = opts.withDefaults()
	warnings := []string{}

	var candidates []models.CandidateFile
	hasReadme := false
	for _, e := range tree {
		if !isCandidate(e) {
			continue
		}
		if readmePattern.MatchString(e.Path) {
			hasReadme = true
		}
		candidates = append(candidates, Candidate(e.Path, e.SizeBytes))
	}

	stack := DetectStack(tree)
	if len(candidates) == 0 {
		warnings = append(warnings, WarnNoCandidates)
		if len(tree) > largeTreeEntries {
			warnings = append(warnings, WarnLargeRepo)
		}
		return models.SelectionResult{
			Selected:      []models.CandidateFile{},
			DetectedStack: stack,
			Warnings:      warnings,
		}
	}
	if len(candidates) < fewCandidates {
		warnings = append(warnings, WarnFewFiles)
	}
	if !hasReadme {
		warnings = append(warnings, WarnNoReadme)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return Less(candidates[i], candidates[j])
	})

	selected := make([]models.CandidateFile, 0, min(len(candidates), opts.MaxFiles))
	var totalChars int64
	truncated := false
	tests := 0
	for _, c := range candidates {
		if len(selected) >= opts.MaxFiles {
			truncated = true
			break
		}
		est := c.SizeBytes * charsPerByte
		if totalChars+est > opts.MaxTotalChars {
			// keep probing; a smaller file further down may still fit
			truncated = true
			continue
		}
		if c.Tier == tierTests {
			if tests >= MaxTestFiles {
				continue
			}
			tests++
		}
		selected = append(selected, c)
		totalChars += est
	}

	if truncated {
		warnings = append(warnings, WarnTruncated)
	}
	if len(tree) > largeTreeEntries {
		warnings = append(warnings, WarnLargeRepo)
	}

	log.Debug().
		Int("candidates", len(candidates)).
		Int("selected", len(selected)).
		Int64("estimated_chars", totalChars).
		Bool("truncated", truncated).
		Msg("file selection complete")

	return models.SelectionResult{
		Selected:      selected,
		DetectedStack: stack,
		Truncated:     truncated,
		Warnings:      warnings,
		Stats: models.SelectionStats{
			TotalCandidates: len(candidates),
			SelectedCount:   len(selected),
			EstimatedChars:  totalChars,
		},
	}
}
