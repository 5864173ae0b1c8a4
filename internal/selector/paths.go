package selector

import (
	"fmt"

	"github.com/seanblong/reporubric/pkg/models"
)

// Preselection is the file-picker view of a selection.
type Preselection struct {
	Paths   []string          `json:"paths"`
	Reasons map[string]string `json:"reasons"`
}

// Preselect lists the selected paths with a human readable reason each.
func Preselect(res models.SelectionResult) Preselection {
	out := Preselection{
		Paths:   make([]string, 0, len(res.Selected)),
		Reasons: make(map[string]string, len(res.Selected)),
	}
	for _, f := range res.Selected {
		out.Paths = append(out.Paths, f.Path)
		out.Reasons[f.Path] = fmt.Sprintf("Tier %d: %s", f.Tier, f.Reason)
	}
	return out
}

// ResolvePaths decides which paths get analyzed. Non-empty override paths
// replace the heuristic selection entirely and are kept only if they name a
// file in tree. Otherwise the selection is extended with extra paths that
// exist in tree, deduplicated, in first-seen order.
func ResolvePaths(tree []models.TreeEntry, sel models.SelectionResult, extra, override []string) []string {
	files := make(map[string]models.EntryKind, len(tree))
	for _, e := range tree {
		files[e.Path] = e.Kind
	}

	if len(override) > 0 {
		out := make([]string, 0, len(override))
		seen := make(map[string]struct{}, len(override))
		for _, p := range override {
			if files[p] != models.EntryFile {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
		return out
	}

	out := make([]string, 0, len(sel.Selected)+len(extra))
	seen := make(map[string]struct{}, cap(out))
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, f := range sel.Selected {
		add(f.Path)
	}
	for _, p := range extra {
		if _, ok := files[p]; ok {
			add(p)
		}
	}
	return out
}
