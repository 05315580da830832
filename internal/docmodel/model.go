// Package docmodel defines the transient and stable data types that flow
// through ingestion and retrieval: documents fetched from a source,
// the chunks derived from them, the vector records upserted to the store,
// and source citations returned alongside an answer.
package docmodel

import (
	"strconv"
	"time"
)

// SourceType tags which fetcher produced a Document, replacing the
// original's runtime type dispatch with an explicit variant.
type SourceType string

const (
	SourceGitMarkdown   SourceType = "git_markdown"
	SourceGitAPIDef     SourceType = "git_api_def"
	SourceWikiPage      SourceType = "wiki_page"
	SourceLinkedPage    SourceType = "linked_page"
	SourceIssue          SourceType = "issue"
	SourceDiagramSummary SourceType = "diagram_summary"
)

// DocumentRef is a lazily-enumerated reference to a document: enough to
// decide whether to fetch it (path, sha) without paying for the bytes.
type DocumentRef struct {
	SourceID   string
	SourceType SourceType
	Path       string
	SHA        string
	Repository string
	Owner      string
	URL        string
}

// Document is the transient unit a SourceFetcher produces and a Chunker
// consumes. It is discarded once its chunks exist.
type Document struct {
	SourceID   string
	SourceType SourceType
	Path       string
	RawBytes   []byte
	SHA        string
	FetchedAt  time.Time
	Repository string
	Owner      string
	URL        string

	// WikiName, IssueNumber, and IssueState are populated only for the
	// source types that carry them; see Chunk's equivalent optional fields.
	WikiName    string
	IssueNumber int
	IssueState  string
}

// Chunk is a bounded, contiguous substring of a Document's extracted text,
// the unit of embedding and retrieval.
type Chunk struct {
	ChunkID     string
	Text        string
	SourceID    string
	SourceType  SourceType
	Repository  string
	Owner       string
	Path        string
	FileType    string
	URL         string
	ChunkIndex  int
	TotalChunks int
	StartChar   int
	EndChar     int

	// Optional, source-type-specific fields.
	Depth       int
	WikiName    string
	IssueNumber int
	IssueState  string

	// FileSHA is the content hash of the document this chunk belongs to;
	// used for re-ingest dedup.
	FileSHA string
}

// Metadata flattens a Chunk's non-text fields into the string-keyed map a
// VectorStore implementation stores as point payload.
func (c Chunk) Metadata() map[string]string {
	m := map[string]string{
		"source_id":    c.SourceID,
		"source_type":  string(c.SourceType),
		"repository":   c.Repository,
		"owner":        c.Owner,
		"path":         c.Path,
		"file_type":    c.FileType,
		"url":          c.URL,
		"chunk_index":  itoa(c.ChunkIndex),
		"total_chunks": itoa(c.TotalChunks),
		"start_char":   itoa(c.StartChar),
		"end_char":     itoa(c.EndChar),
		"file_sha":     c.FileSHA,
	}
	if c.Depth > 0 {
		m["depth"] = itoa(c.Depth)
	}
	if c.WikiName != "" {
		m["wiki_name"] = c.WikiName
	}
	if c.IssueNumber > 0 {
		m["issue_number"] = itoa(c.IssueNumber)
		m["issue_state"] = c.IssueState
	}
	return m
}

// VectorRecord is what gets upserted to the VectorStore: a chunk's
// embedding plus its metadata and the text itself under "content".
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
	Content  string
}

// Citation describes one retrieved chunk surfaced back to a caller,
// ordered by descending Score.
type Citation struct {
	Repository string
	Path       string
	URL        string
	Score      float32
	Snippet    string
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
