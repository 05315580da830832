// Package extractor normalizes a SourceFetcher's raw bytes into plain text
// for the chunker: HTML to Markdown, embedded images stripped from
// Markdown, API-definition and issue text passed through unchanged.
package extractor

import (
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"regexp"

	"github.com/ragcore-dev/docrag/internal/docmodel"
)

// Extract converts raw document bytes to plain text, dispatching on the
// document's declared source type rather than sniffing content.
func Extract(doc docmodel.Document) (string, error) {
	switch doc.SourceType {
	case docmodel.SourceWikiPage, docmodel.SourceLinkedPage:
		md, err := htmlToMarkdown(doc.RawBytes, doc.URL)
		if err != nil {
			return "", err
		}
		return stripImages(md), nil
	case docmodel.SourceGitMarkdown:
		return stripImages(string(doc.RawBytes)), nil
	case docmodel.SourceGitAPIDef, docmodel.SourceIssue, docmodel.SourceDiagramSummary:
		return string(doc.RawBytes), nil
	default:
		return string(doc.RawBytes), nil
	}
}

func htmlToMarkdown(raw []byte, pageURL string) (string, error) {
	opts := []converter.Option{}
	if pageURL != "" {
		opts = append(opts, converter.WithDomain(pageURL))
	}
	md, err := htmltomarkdown.ConvertString(string(raw), opts...)
	if err != nil {
		return "", err
	}
	return md, nil
}

var (
	markdownImagePattern  = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	htmlImgTagPattern     = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	referenceImagePattern = regexp.MustCompile(`(?mi)^[ \t]*\[[^\]]+\]:[ \t]*\S+\.(?:png|jpe?g|gif|svg|webp|bmp)\b.*$`)
)

// stripImages removes embedded image markup: inline Markdown images, raw
// <img> tags, and reference-style definitions ("[id]: url") whose URL ends
// in an image file extension.
func stripImages(text string) string {
	text = markdownImagePattern.ReplaceAllString(text, "")
	text = htmlImgTagPattern.ReplaceAllString(text, "")
	text = referenceImagePattern.ReplaceAllString(text, "")
	return text
}
