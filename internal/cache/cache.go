// Package cache keeps recently produced chunk summaries in memory, keyed by
// citation id. Identical coordinates always yield the same id, so a hit
// means the exact same line range of the same revision was seen before.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/seanblong/reporubric/pkg/models"
)

const DefaultSize = 4096

type Summaries struct {
	lru *lru.Cache[string, models.FileSummary]
}

func NewSummaries(size int) (*Summaries, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, models.FileSummary](size)
	if err != nil {
		return nil, err
	}
	return &Summaries{lru: c}, nil
}

func (s *Summaries) Get(citationID string) (models.FileSummary, bool) {
	return s.lru.Get(citationID)
}

func (s *Summaries) Add(citationID string, summary models.FileSummary) {
	s.lru.Add(citationID, summary)
}

func (s *Summaries) Len() int { return s.lru.Len() }
