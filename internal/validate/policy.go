package validate

import (
	"fmt"

	"github.com/seanblong/reporubric/pkg/models"
)

// Policy returns advisory notices for rubrics that are schema-valid but
// look inconsistent. It never affects validity.
func Policy(r models.RubricOutput) []string {
	var notes []string

	if r.Scores.Variability > 0 && r.Scores.Variability <= 2 && r.Classification != models.ClassNotAgentic {
		notes = append(notes, fmt.Sprintf(
			"classification %s with variability %d: low-variability workflows are usually %s",
			r.Classification, r.Scores.Variability, models.ClassNotAgentic))
	}

	if r.Scores.Confidence > 0.6 && len(r.Citations) == 0 {
		notes = append(notes, fmt.Sprintf("confidence %.2f with no citations", r.Scores.Confidence))
	}

	if r.Classification != models.ClassNotAgentic && !hasAgenticTask(r.Tasks) {
		notes = append(notes, fmt.Sprintf(
			"classification %s but no task is recommended for %s or %s",
			r.Classification, models.RecLLMAssist, models.RecTaskAgent))
	}

	if r.Pilot.RecommendedFirstTaskID == "" && len(r.Tasks) > 0 {
		notes = append(notes, "pilot does not name a first task")
	}

	return notes
}

func hasAgenticTask(tasks []models.Task) bool {
	for _, t := range tasks {
		if t.Recommendation == models.RecLLMAssist || t.Recommendation == models.RecTaskAgent {
			return true
		}
	}
	return false
}
