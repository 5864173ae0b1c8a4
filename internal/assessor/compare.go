package assessor

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/seanblong/reporubric/pkg/models"
)

type ScoreDeltas struct {
	Variability          int `json:"variability"`
	StrategicImportance  int `json:"strategic_importance"`
	OperationalImpact    int `json:"operational_impact"`
	IntegrationReadiness int `json:"integration_readiness"`
	BlastRadiusRisk      int `json:"blast_radius_risk"`
	// Confidence is in percentage points.
	Confidence int `json:"confidence"`
}

// Comparison describes how a head assessment differs from a base one.
// Positive deltas mean head scored higher.
type Comparison struct {
	Base models.AssessmentSummary `json:"base"`
	Head models.AssessmentSummary `json:"head"`
	// ClassificationShift counts tiers moved, A through D. Zero when either
	// classification is unknown.
	ClassificationShift int         `json:"classification_shift"`
	Scores              ScoreDeltas `json:"scores"`
	TaskCount           int         `json:"task_count"`
}

func summarize(a models.Assessment) models.AssessmentSummary {
	rev := a.RevisionID
	if len(rev) > 7 {
		rev = rev[:7]
	}
	return models.AssessmentSummary{
		ID:             a.ID,
		RepoURL:        a.RepoURL,
		Owner:          a.Owner,
		Name:           a.Name,
		RevisionID:     rev,
		Classification: a.Rubric.Classification,
		CreatedAt:      a.CreatedAt,
	}
}

// Diff compares two rubrics.
func Diff(base, head models.Assessment) Comparison {
	b, h := base.Rubric, head.Rubric
	c := Comparison{
		Base: summarize(base),
		Head: summarize(head),
		Scores: ScoreDeltas{
			Variability:          h.Scores.Variability - b.Scores.Variability,
			StrategicImportance:  h.Scores.StrategicImportance - b.Scores.StrategicImportance,
			OperationalImpact:    h.Scores.OperationalImpact - b.Scores.OperationalImpact,
			IntegrationReadiness: h.Scores.IntegrationReadiness - b.Scores.IntegrationReadiness,
			BlastRadiusRisk:      h.Scores.BlastRadiusRisk - b.Scores.BlastRadiusRisk,
			Confidence:           int(math.Round((h.Scores.Confidence - b.Scores.Confidence) * 100)),
		},
		TaskCount: len(h.Tasks) - len(b.Tasks),
	}
	bi := slices.Index(models.Classifications, b.Classification)
	hi := slices.Index(models.Classifications, h.Classification)
	if bi >= 0 && hi >= 0 {
		c.ClassificationShift = hi - bi
	}
	return c
}

// Compare loads two stored assessments and diffs them.
func (s *Service) Compare(ctx context.Context, baseID, headID string) (Comparison, error) {
	base, err := s.Store.Get(ctx, baseID)
	if err != nil {
		return Comparison{}, fmt.Errorf("base %s: %w", baseID, err)
	}
	head, err := s.Store.Get(ctx, headID)
	if err != nil {
		return Comparison{}, fmt.Errorf("head %s: %w", headID, err)
	}
	return Diff(base, head), nil
}
