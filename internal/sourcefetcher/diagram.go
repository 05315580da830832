package sourcefetcher

import (
	"context"
	"time"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

// DiagramSummarizer is an external OCR/graph pipeline that turns an image
// into a text summary. Its implementation is out of scope;
// DiagramFetcher treats it as an opaque black box.
type DiagramSummarizer interface {
	Summarize(ctx context.Context, imagePath string) (string, error)
}

// DiagramFetcher adapts a DiagramSummarizer to the Fetcher interface,
// producing one diagram_summary document per image path.
type DiagramFetcher struct {
	summarizer DiagramSummarizer
	repository string
	owner      string
	images     []string
}

func NewDiagramFetcher(summarizer DiagramSummarizer, repository, owner string, images []string) *DiagramFetcher {
	return &DiagramFetcher{summarizer: summarizer, repository: repository, owner: owner, images: images}
}

func (f *DiagramFetcher) List(ctx context.Context) ([]docmodel.DocumentRef, error) {
	refs := make([]docmodel.DocumentRef, 0, len(f.images))
	for _, img := range f.images {
		refs = append(refs, docmodel.DocumentRef{
			SourceID:   img,
			SourceType: docmodel.SourceDiagramSummary,
			Path:       img,
			SHA:        img,
			Repository: f.repository,
			Owner:      f.owner,
		})
	}
	return refs, nil
}

func (f *DiagramFetcher) Fetch(ctx context.Context, ref docmodel.DocumentRef) (docmodel.Document, error) {
	summary, err := f.summarizer.Summarize(ctx, ref.Path)
	if err != nil {
		return docmodel.Document{}, err
	}
	return docmodel.Document{
		SourceID:   ref.SourceID,
		SourceType: docmodel.SourceDiagramSummary,
		Path:       ref.Path,
		RawBytes:   []byte(summary),
		SHA:        ref.SHA,
		FetchedAt:  time.Now(),
		Repository: f.repository,
		Owner:      f.owner,
	}, nil
}
