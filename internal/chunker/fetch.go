package chunker

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/reporubric/pkg/models"
	"golang.org/x/sync/errgroup"
)

const DefaultFetchMaxChars = 250_000

// FileRef names a file to fetch and its size as reported by the tree.
type FileRef struct {
	Path      string
	SizeBytes int64
}

// Content is what a FetchFunc returns for one path.
type Content struct {
	Text      string
	SizeBytes int64
}

// FetchFunc retrieves the content of one file at the analyzed revision.
type FetchFunc func(ctx context.Context, path string) (Content, error)

type FetchOptions struct {
	MaxTotalChars    int
	MaxFileChars     int
	MaxLinesPerChunk int
	// Concurrency > 1 issues fetches in parallel. Results are still
	// consumed in input order, so the budget cut-off does not change.
	Concurrency int
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.MaxTotalChars <= 0 {
		o.MaxTotalChars = DefaultFetchMaxChars
	}
	if o.MaxFileChars == 0 {
		o.MaxFileChars = DefaultMaxFileChars
	}
	if o.MaxLinesPerChunk <= 0 {
		o.MaxLinesPerChunk = DefaultMaxLinesPerChunk
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

type fetched struct {
	content Content
	err     error
	done    chan struct{}
}

// FetchAndChunk fetches files in order and chunks each one until the
// cumulative character budget is spent. A failed fetch becomes a warning.
func FetchAndChunk(ctx context.Context, files []FileRef, fetch FetchFunc, revisionID string, opts FetchOptions) models.FetchResult {
	opts = opts.withDefaults()

	get := func(i int) (Content, error) {
		return fetch(ctx, files[i].Path)
	}
	if opts.Concurrency > 1 {
		slots, stop := prefetch(ctx, files, fetch, opts.Concurrency)
		defer stop()
		get = func(i int) (Content, error) {
			<-slots[i].done
			return slots[i].content, slots[i].err
		}
	}

	res := models.FetchResult{
		Chunks:   []models.Chunk{},
		Digests:  []models.FileDigest{},
		Warnings: []string{},
	}
	total := 0
	for i, f := range files {
		if total >= opts.MaxTotalChars {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Stopped fetching at %d files due to character limit", len(res.Digests)))
			break
		}

		content, err := get(i)
		if err != nil {
			log.Warn().Err(err).Str("path", f.Path).Msg("fetch failed")
			res.Warnings = append(res.Warnings, fmt.Sprintf("Failed to fetch: %s - %v", f.Path, err))
			continue
		}

		fileCap := opts.MaxTotalChars - total
		if opts.MaxFileChars > 0 {
			fileCap = min(opts.MaxFileChars, fileCap)
		}
		out := ChunkFile(content.Text, f.Path, revisionID, Options{
			MaxLinesPerChunk: opts.MaxLinesPerChunk,
			MaxFileChars:     fileCap,
		})
		if out.Truncated {
			res.Stats.TruncatedFiles++
			res.Warnings = append(res.Warnings, "File truncated: "+f.Path)
		}

		chars := 0
		for _, c := range out.Chunks {
			chars += utf8.RuneCountInString(c.Content)
		}
		total += chars
		res.Chunks = append(res.Chunks, out.Chunks...)

		size := f.SizeBytes
		if size == 0 {
			size = content.SizeBytes
		}
		res.Digests = append(res.Digests, models.FileDigest{
			Path:       f.Path,
			RevisionID: revisionID,
			SizeBytes:  size,
			LineCount:  out.TotalLines,
			ChunkCount: len(out.Chunks),
		})
		log.Debug().Str("path", f.Path).Int("chunks", len(out.Chunks)).Int("chars", chars).Msg("file chunked")
	}

	res.Stats.TotalFiles = len(res.Digests)
	res.Stats.TotalChunks = len(res.Chunks)
	res.Stats.TotalChars = total
	return res
}

// prefetch starts fetching files with at most n in flight. The returned
// stop func cancels outstanding work and waits for it to drain.
func prefetch(ctx context.Context, files []FileRef, fetch FetchFunc, n int) ([]fetched, func()) {
	slots := make([]fetched, len(files))
	for i := range slots {
		slots[i].done = make(chan struct{})
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for i := range files {
			g.Go(func() error {
				defer close(slots[i].done)
				if err := gctx.Err(); err != nil {
					slots[i].err = err
					return nil
				}
				slots[i].content, slots[i].err = fetch(gctx, files[i].Path)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return slots, func() {
		cancel()
		<-drained
	}
}
