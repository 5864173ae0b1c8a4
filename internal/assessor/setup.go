package assessor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/internal/ai"
	"github.com/seanblong/reporubric/internal/cache"
	"github.com/seanblong/reporubric/internal/chunker"
	"github.com/seanblong/reporubric/internal/config"
	"github.com/seanblong/reporubric/internal/rubric"
	"github.com/seanblong/reporubric/internal/selector"
	"github.com/seanblong/reporubric/internal/source"
	"github.com/seanblong/reporubric/internal/store"
	"github.com/seanblong/reporubric/internal/summarizer"
)

// Setup builds a Service from configuration. With no database URL the
// assessments are kept in memory. The returned func releases the
// database pool and is safe to call when there is none.
func Setup(ctx context.Context, cfg config.Specification, src source.Source) (*Service, func(), error) {
	cc, err := cfg.ClientConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := ai.NewClient(ctx, cc)
	if err != nil {
		return nil, nil, fmt.Errorf("create AI client: %w", err)
	}
	client = ai.WithRetry(client, cfg.Retries, 0)
	log.Info().Str("provider", string(cc.Provider)).Str("model", cc.Model).Int("retries", cfg.Retries).Msg("AI client initialized")

	sum := summarizer.New(client)
	sum.BatchSize = cfg.Limits.SummaryBatchSize
	if cfg.CacheSize > 0 {
		c, err := cache.NewSummaries(cfg.CacheSize)
		if err != nil {
			return nil, nil, fmt.Errorf("summary cache: %w", err)
		}
		sum.Cache = c
	}

	b := rubric.New(client)
	b.Strict = cfg.Strict
	b.Schema = rubric.LoadSchema(cfg.SchemaPath)

	var st store.AssessmentStore
	closeFn := func() {}
	if cfg.Database != "" {
		pg, err := store.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		st, closeFn = pg, pg.Close
	} else {
		log.Info().Msg("no database configured, keeping assessments in memory")
		st = store.NewMemory()
	}

	svc := New(src, sum, b, st)
	svc.SelectOpts = selector.Options{
		MaxFiles:      cfg.Limits.MaxFiles,
		MaxTotalChars: int64(cfg.Limits.MaxTotalChars),
	}
	svc.FetchOpts = chunker.FetchOptions{
		MaxTotalChars:    cfg.Limits.MaxTotalChars,
		MaxFileChars:     cfg.Limits.MaxFileChars,
		MaxLinesPerChunk: cfg.Limits.MaxLinesPerChunk,
		Concurrency:      cfg.Limits.FetchConcurrency,
	}
	return svc, closeFn, nil
}
