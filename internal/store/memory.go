package store

import (
	"context"
	"sort"
	"sync"

	"github.com/seanblong/reporubric/pkg/models"
)

// Memory keeps assessments in process. It backs the CLI and tests when no
// database is configured.
type Memory struct {
	mu    sync.RWMutex
	items []models.Assessment
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(ctx context.Context, a *models.Assessment) error {
	prepare(a)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *a)
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.items {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Assessment{}, ErrNotFound
}

// newest returns matching items, newest first.
func (m *Memory) newest(match func(models.Assessment) bool) []models.Assessment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Assessment
	for _, a := range m.items {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *Memory) FindByRevision(ctx context.Context, owner, name, revisionID string) (models.Assessment, bool, error) {
	found := m.newest(func(a models.Assessment) bool {
		return a.Owner == owner && a.Name == name && a.RevisionID == revisionID
	})
	if len(found) == 0 {
		return models.Assessment{}, false, nil
	}
	return found[0], true, nil
}

func (m *Memory) List(ctx context.Context, opt ListOpts) ([]models.AssessmentSummary, error) {
	found := m.newest(func(a models.Assessment) bool {
		return opt.RepoURL == "" || a.RepoURL == opt.RepoURL
	})
	out := []models.AssessmentSummary{}
	for i, a := range found {
		if i == opt.limit() {
			break
		}
		out = append(out, models.AssessmentSummary{
			ID:             a.ID,
			RepoURL:        a.RepoURL,
			Owner:          a.Owner,
			Name:           a.Name,
			RevisionID:     shortRevision(a.RevisionID),
			Classification: a.Rubric.Classification,
			CreatedAt:      a.CreatedAt,
		})
	}
	return out, nil
}
