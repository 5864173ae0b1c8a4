// Package chunker splits file content into line-addressable chunks with
// deterministic citation ids.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/seanblong/reporubric/pkg/models"
)

const (
	DefaultMaxLinesPerChunk = 300
	DefaultMaxFileChars     = 40_000

	citationPrefix = "CIT-"
	citationHexLen = 8
)

type Options struct {
	MaxLinesPerChunk int
	// MaxFileChars caps the characters kept from one file. Zero means the
	// default; negative means no cap.
	MaxFileChars int
}

func (o Options) withDefaults() Options {
	if o.MaxLinesPerChunk <= 0 {
		o.MaxLinesPerChunk = DefaultMaxLinesPerChunk
	}
	if o.MaxFileChars == 0 {
		o.MaxFileChars = DefaultMaxFileChars
	}
	return o
}

type Result struct {
	Chunks     []models.Chunk
	TotalLines int
	Truncated  bool
}

// CitationID returns the stable id for a line range of a file at a revision.
func CitationID(path, revisionID string, lineStart, lineEnd int) string {
	h := sha256.Sum256([]byte(path + ":" + revisionID + ":" + strconv.Itoa(lineStart) + ":" + strconv.Itoa(lineEnd)))
	return citationPrefix + hex.EncodeToString(h[:])[:citationHexLen]
}

// CitationURL links a line range on the hosting site.
func CitationURL(owner, repo, revisionID, path string, lineStart, lineEnd int) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s#L%d-L%d", owner, repo, revisionID, path, lineStart, lineEnd)
}

func newChunk(path, revisionID string, start, end int, content string) models.Chunk {
	return models.Chunk{
		Path:       path,
		RevisionID: revisionID,
		LineStart:  start,
		LineEnd:    end,
		Content:    content,
		CitationID: CitationID(path, revisionID, start, end),
	}
}

// ChunkFile splits content into windows of at most MaxLinesPerChunk lines.
// Once the running character total would pass MaxFileChars the current
// window is cut to the remaining budget and chunking stops.
func ChunkFile(content, path, revisionID string, opts Options) Result {
	opts = opts.withDefaults()
	lines := strings.Split(content, "\n")
	total := len(lines)
	capped := opts.MaxFileChars > 0

	if len(lines) <= opts.MaxLinesPerChunk && (!capped || utf8.RuneCountInString(content) <= opts.MaxFileChars) {
		return Result{
			Chunks:     []models.Chunk{newChunk(path, revisionID, 1, total, content)},
			TotalLines: total,
		}
	}

	var chunks []models.Chunk
	used := 0
	truncated := false
	for start := 1; start <= total; {
		end := min(start+opts.MaxLinesPerChunk-1, total)
		text := strings.Join(lines[start-1:end], "\n")
		n := utf8.RuneCountInString(text)

		if capped && used+n > opts.MaxFileChars {
			remaining := opts.MaxFileChars - used
			truncated = true
			if remaining <= 0 {
				break
			}
			text = truncateRunes(text, remaining)
			n = remaining
			end = start + strings.Count(text, "\n")
		}

		chunks = append(chunks, newChunk(path, revisionID, start, end, text))
		used += n
		if truncated {
			break
		}
		start = end + 1
	}

	return Result{Chunks: chunks, TotalLines: total, Truncated: truncated}
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
