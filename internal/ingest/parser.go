package ingest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/parchmentlabs/parchment/internal/models"
)

// PDFExtractor turns raw PDF bytes into plain text. PDF parsing lives
// behind this interface so the extraction engine is swappable.
type PDFExtractor interface {
	Extract(data []byte) (string, error)
}

var (
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdLink    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmph    = regexp.MustCompile("[*_`~]+")
)

// typeForFilename maps a file extension to a content type.
func typeForFilename(name string) (models.ContentType, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.ContentTypePDF, nil
	case ".md", ".markdown":
		return models.ContentTypeMarkdown, nil
	case ".txt", ".text", "":
		return models.ContentTypeText, nil
	default:
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(name))
	}
}

// stripMarkdown reduces markdown to plain text for embedding. Structure
// markers carry no retrieval signal and waste chunk budget.
func stripMarkdown(text string) string {
	text = mdHeading.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdEmph.ReplaceAllString(text, "")
	return text
}

// titleForFilename derives a display title from a file name.
func titleForFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
