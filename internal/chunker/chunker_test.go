package chunker

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

func numberedLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestCitationID(t *testing.T) {
	a := CitationID("src/main.go", "abc123", 1, 300)
	b := CitationID("src/main.go", "abc123", 1, 300)
	if a != b {
		t.Fatalf("citation id not deterministic: %s vs %s", a, b)
	}
	if !regexp.MustCompile(`^CIT-[0-9a-f]{8}$`).MatchString(a) {
		t.Errorf("unexpected citation id format %q", a)
	}

	others := []string{
		CitationID("src/main.go", "abc124", 1, 300),
		CitationID("src/main.go", "abc123", 2, 300),
		CitationID("src/main.go", "abc123", 1, 301),
		CitationID("src/other.go", "abc123", 1, 300),
	}
	for _, o := range others {
		if o == a {
			t.Errorf("different coordinates produced the same id %s", o)
		}
	}
}

func TestCitationURL(t *testing.T) {
	got := CitationURL("acme", "widgets", "deadbeef", "src/a.ts", 10, 20)
	want := "https://github.com/acme/widgets/blob/deadbeef/src/a.ts#L10-L20"
	if got != want {
		t.Errorf("CitationURL() = %q, want %q", got, want)
	}
}

func TestChunkFile_SingleChunk(t *testing.T) {
	content := "package main\n\nfunc main() {}\n"
	res := ChunkFile(content, "main.go", "rev", Options{})

	if res.Truncated {
		t.Error("unexpected truncation")
	}
	if res.TotalLines != 4 {
		t.Errorf("expected 4 lines, got %d", res.TotalLines)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(res.Chunks))
	}
	c := res.Chunks[0]
	if c.LineStart != 1 || c.LineEnd != 4 || c.Content != content {
		t.Errorf("unexpected chunk %+v", c)
	}
	if c.CitationID != CitationID("main.go", "rev", 1, 4) {
		t.Errorf("citation id mismatch: %s", c.CitationID)
	}
	if c.RevisionID != "rev" || c.Path != "main.go" {
		t.Errorf("coordinates not carried: %+v", c)
	}
}

func TestChunkFile_LineWindows(t *testing.T) {
	res := ChunkFile(numberedLines(1000), "big.txt", "rev", Options{MaxLinesPerChunk: 300, MaxFileChars: -1})

	if res.Truncated {
		t.Error("unexpected truncation without a character cap")
	}
	var got [][2]int
	for _, c := range res.Chunks {
		got = append(got, [2]int{c.LineStart, c.LineEnd})
	}
	want := [][2]int{{1, 300}, {301, 600}, {601, 900}, {901, 1000}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ranges = %v, want %v", got, want)
	}
	if !strings.HasPrefix(res.Chunks[1].Content, "line 301\n") || !strings.HasSuffix(res.Chunks[3].Content, "line 1000") {
		t.Error("chunk content does not match its line range")
	}
}

func TestChunkFile_Coverage(t *testing.T) {
	for _, n := range []int{1, 2, 299, 300, 301, 777} {
		for _, window := range []int{1, 7, 300} {
			res := ChunkFile(numberedLines(n), "f", "r", Options{MaxLinesPerChunk: window, MaxFileChars: -1})
			next := 1
			for _, c := range res.Chunks {
				if c.LineStart != next {
					t.Fatalf("n=%d window=%d: gap or overlap at %d (expected %d)", n, window, c.LineStart, next)
				}
				if c.LineEnd < c.LineStart || c.LineEnd-c.LineStart+1 > window {
					t.Fatalf("n=%d window=%d: bad range %d-%d", n, window, c.LineStart, c.LineEnd)
				}
				next = c.LineEnd + 1
			}
			if next-1 != res.TotalLines {
				t.Fatalf("n=%d window=%d: covered up to %d of %d", n, window, next-1, res.TotalLines)
			}
		}
	}
}

func TestChunkFile_Deterministic(t *testing.T) {
	content := numberedLines(650)
	opts := Options{MaxLinesPerChunk: 100, MaxFileChars: 3000}
	a := ChunkFile(content, "x.py", "sha", opts)
	b := ChunkFile(content, "x.py", "sha", opts)
	if !reflect.DeepEqual(a, b) {
		t.Error("re-chunking identical input produced different output")
	}
}

func TestChunkFile_CharCapTruncates(t *testing.T) {
	// 100 lines of "xxxxxxxxx" (9 chars) -> 999 chars total including newlines.
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "xxxxxxxxx"
	}
	content := strings.Join(lines, "\n")

	res := ChunkFile(content, "f.txt", "rev", Options{MaxLinesPerChunk: 30, MaxFileChars: 350})

	if !res.Truncated {
		t.Fatal("expected truncation")
	}
	if res.TotalLines != 100 {
		t.Errorf("total lines %d", res.TotalLines)
	}
	// window 1: 30 lines = 299 chars; window 2 only gets 51 chars.
	if len(res.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(res.Chunks))
	}
	last := res.Chunks[1]
	if len(last.Content) != 51 {
		t.Errorf("expected 51 chars in truncated chunk, got %d", len(last.Content))
	}
	// 51 chars = 5 full lines + newline + 1 char -> spans lines 31..36.
	if last.LineStart != 31 || last.LineEnd != 36 {
		t.Errorf("truncated chunk range %d-%d, want 31-36", last.LineStart, last.LineEnd)
	}
	if last.CitationID != CitationID("f.txt", "rev", 31, 36) {
		t.Error("citation id must use the recomputed line end")
	}
	total := 0
	for _, c := range res.Chunks {
		total += len(c.Content)
	}
	if total > 350 {
		t.Errorf("kept %d chars, cap is 350", total)
	}
}

func TestChunkFile_TruncateKeepsRunesWhole(t *testing.T) {
	content := strings.Repeat("é", 50) + "\n" + strings.Repeat("ü", 50)
	res := ChunkFile(content, "u.txt", "rev", Options{MaxLinesPerChunk: 300, MaxFileChars: 25})
	if !res.Truncated || len(res.Chunks) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := res.Chunks[0].Content; got != strings.Repeat("é", 25) {
		t.Errorf("unexpected truncated content %q", got)
	}
}
