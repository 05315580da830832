// Package chunker splits extracted document text into overlapping,
// retrieval-sized pieces. Oversized documents are first pre-split into
// independently-chunked sections; each chunk carries the start/end
// character offsets needed to reconstruct the original text.
package chunker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

// ErrTimeout is returned when chunking a single section exceeds the
// configured timeout.
var ErrTimeout = errors.New("chunker: section timeout exceeded")

// Config holds the chunker's tunables. Zero-value fields fall back to the
// documented defaults.
type Config struct {
	ChunkSize       int // default 1000
	Overlap         int // default 200
	MinChunkSize    int // default 100
	PreSplitSize    int // default 15000
	SectionTimeout  time.Duration
}

const (
	defaultChunkSize      = 1000
	defaultOverlap        = 200
	defaultMinChunkSize   = 100
	defaultPreSplitSize   = 15000
	defaultSectionTimeout = 3 * time.Second
)

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.Overlap <= 0 {
		c.Overlap = defaultOverlap
	}
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = defaultMinChunkSize
	}
	if c.PreSplitSize <= 0 {
		c.PreSplitSize = defaultPreSplitSize
	}
	if c.SectionTimeout <= 0 {
		c.SectionTimeout = defaultSectionTimeout
	}
	return c
}

// Chunker produces ordered, overlapping chunks for a document's text.
type Chunker struct {
	cfg Config
}

// New creates a Chunker, applying defaults to any zero-valued field.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg.withDefaults()}
}

// Meta carries the per-document fields a Chunk needs beyond its text and
// offsets, so Chunker stays independent of where the document came from.
type Meta struct {
	SourceID   string
	SourceType docmodel.SourceType
	Repository string
	Owner      string
	Path       string
	FileType   string
	URL        string
	FileSHA    string
	Depth      int
	WikiName   string
	IssueNum   int
	IssueState string
}

// Chunk splits text into docmodel.Chunks. It pre-splits text longer than
// PreSplitSize into independently-chunked sections, then renumbers chunk
// indexes globally and adjusts StartChar/EndChar back to offsets in the
// original text.
//
// ctx governs the per-section timeout; if a single section takes longer
// than cfg.SectionTimeout, Chunk returns ErrTimeout and the caller should
// treat the whole document as skipped.
func (c *Chunker) Chunk(ctx context.Context, text string, meta Meta) ([]docmodel.Chunk, error) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	sections := preSplit(runes, c.cfg.PreSplitSize)

	var out []docmodel.Chunk
	globalIndex := 0
	offset := 0
	for _, section := range sections {
		sectionChunks, err := c.chunkSectionWithTimeout(ctx, section)
		if err != nil {
			return nil, err
		}
		for _, sc := range sectionChunks {
			start := offset + sc.start
			end := offset + sc.end
			out = append(out, docmodel.Chunk{
				ChunkID:     chunkID(meta.FileSHA, meta.SourceID, globalIndex),
				Text:        sc.text,
				SourceID:    meta.SourceID,
				SourceType:  meta.SourceType,
				Repository:  meta.Repository,
				Owner:       meta.Owner,
				Path:        meta.Path,
				FileType:    meta.FileType,
				URL:         meta.URL,
				ChunkIndex:  globalIndex,
				StartChar:   start,
				EndChar:     end,
				Depth:       meta.Depth,
				WikiName:    meta.WikiName,
				IssueNumber: meta.IssueNum,
				IssueState:  meta.IssueState,
				FileSHA:     meta.FileSHA,
			})
			globalIndex++
		}
		offset += len(section)
	}

	for i := range out {
		out[i].TotalChunks = len(out)
	}

	return out, nil
}

// chunkID derives a stable, content-addressed chunk identifier from the
// document's sha and the chunk's position within it, so re-ingesting an
// unchanged file produces identical IDs.
func chunkID(sha, sourceID string, index int) string {
	h := sha256.New()
	h.Write([]byte(sha))
	h.Write([]byte{0})
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	return hex.EncodeToString(h.Sum(nil))
}

// chunkSectionWithTimeout runs chunkSection on its own goroutine so a
// pathological section cannot block the caller past SectionTimeout.
func (c *Chunker) chunkSectionWithTimeout(ctx context.Context, section []rune) ([]rawChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SectionTimeout)
	defer cancel()

	type result struct {
		chunks []rawChunk
	}
	resultCh := make(chan result, 1)
	go func() {
		resultCh <- result{chunks: c.chunkSection(section)}
	}()

	select {
	case r := <-resultCh:
		return r.chunks, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// rawChunk is a chunk's text plus its rune-offset span within the section
// being chunked, before renumbering/offsetting into document coordinates.
type rawChunk struct {
	text       string
	start, end int
}

// chunkSection walks a sliding window of ChunkSize runes, advancing by
// ChunkSize-Overlap each step. At each window end it extends the cut to
// the nearest sentence terminator, paragraph break, line break, or space
// within a lookahead of Overlap runes, to avoid splitting mid-word.
// Chunks shorter than MinChunkSize are dropped unless they are the only
// chunk produced for the section.
func (c *Chunker) chunkSection(section []rune) []rawChunk {
	n := len(section)
	if n == 0 {
		return nil
	}

	chunkSize := c.cfg.ChunkSize
	overlap := c.cfg.Overlap
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = 1
	}

	var chunks []rawChunk
	start := 0
	for start < n {
		end := start + chunkSize
		if end >= n {
			end = n
		} else {
			end = extendToBoundary(section, end, overlap)
		}

		chunks = append(chunks, rawChunk{
			text:  string(section[start:end]),
			start: start,
			end:   end,
		})

		if end >= n {
			break
		}
		next := start + step
		if next <= start {
			next = end
		}
		start = next
	}

	return dropShortChunks(chunks, c.cfg.MinChunkSize)
}

// extendToBoundary looks ahead from pos (up to lookahead runes) for the
// nearest sentence terminator, paragraph break, line break, or space, and
// returns the position just after it. If none is found, pos is returned
// unchanged (a hard cut).
func extendToBoundary(text []rune, pos, lookahead int) int {
	limit := pos + lookahead
	if limit > len(text) {
		limit = len(text)
	}

	// Sentence terminators win: '.', '!', '?' followed by whitespace or EOF.
	for i := pos; i < limit; i++ {
		r := text[i]
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(text) || isSpace(text[i+1]) {
				return i + 1
			}
		}
	}

	// Paragraph break.
	for i := pos; i < limit-1; i++ {
		if text[i] == '\n' && text[i+1] == '\n' {
			return i + 2
		}
	}

	// Line break.
	for i := pos; i < limit; i++ {
		if text[i] == '\n' {
			return i + 1
		}
	}

	// Plain space.
	for i := pos; i < limit; i++ {
		if text[i] == ' ' {
			return i + 1
		}
	}

	return pos
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// dropShortChunks removes chunks shorter than minSize, unless doing so
// would leave the section with no chunks at all.
func dropShortChunks(chunks []rawChunk, minSize int) []rawChunk {
	if len(chunks) <= 1 {
		return chunks
	}
	kept := chunks[:0:0]
	for _, ch := range chunks {
		if len([]rune(ch.text)) >= minSize {
			kept = append(kept, ch)
		}
	}
	if len(kept) == 0 {
		return chunks
	}
	return kept
}

// preSplit breaks text longer than maxSize runes into sections, searching
// backward from the maxSize boundary for "\n\n", then "\n", then " ",
// falling back to a hard cut. A section is at most maxSize runes unless the
// cut would land inside a fenced code block: then findSectionBoundary moves
// it past the fence's closing marker, which can make that section longer
// than maxSize. Text at or under maxSize is returned unchanged as a single
// section.
func preSplit(text []rune, maxSize int) [][]rune {
	if len(text) <= maxSize {
		return [][]rune{text}
	}

	var sections [][]rune
	remaining := text
	for len(remaining) > maxSize {
		cut := findSectionBoundary(remaining, maxSize)
		sections = append(sections, remaining[:cut])
		remaining = remaining[cut:]
	}
	if len(remaining) > 0 {
		sections = append(sections, remaining)
	}
	return sections
}

// findSectionBoundary searches backward from maxSize for a paragraph
// break, then a line break, then a space, falling back to a hard cut at
// maxSize. The result is then nudged by preferFenceBoundary so a section
// boundary landing inside a fenced code block prefers breaking at the
// fence instead.
func findSectionBoundary(text []rune, maxSize int) int {
	limit := maxSize
	if limit > len(text) {
		limit = len(text)
	}

	for i := limit - 1; i > 0; i-- {
		if text[i-1] == '\n' && text[i] == '\n' {
			return preferFenceBoundary(text, i+1)
		}
	}
	for i := limit - 1; i >= 0; i-- {
		if text[i] == '\n' {
			return preferFenceBoundary(text, i+1)
		}
	}
	for i := limit - 1; i >= 0; i-- {
		if text[i] == ' ' {
			return preferFenceBoundary(text, i+1)
		}
	}
	return preferFenceBoundary(text, limit)
}
