package extraction

import (
	"fmt"
	"sort"

	"github.com/paperbase-io/paperbase/internal/models"
)

// Extraction sources, recorded for observability only.
const (
	SourceCloud     = "cloud"
	SourceFallback  = "fallback"
	SourcePlaintext = "plaintext"
)

// Result is the uniform output of either extraction path. Pages are
// 1-based. The caller is agnostic to which path produced it.
type Result struct {
	Paragraphs []models.Paragraph
	Images     []models.Asset
	Tables     []models.Asset
	Formulas   []models.Asset
	PageCount  int
	Source     string
}

// Empty reports whether the result carries no usable content. An empty
// cloud result counts as a soft failure.
func (r *Result) Empty() bool {
	return len(r.Paragraphs) == 0 && len(r.Images) == 0
}

// Assets returns all non-text units in one slice.
func (r *Result) Assets() []models.Asset {
	out := make([]models.Asset, 0, len(r.Images)+len(r.Tables)+len(r.Formulas))
	out = append(out, r.Images...)
	out = append(out, r.Tables...)
	out = append(out, r.Formulas...)
	return out
}

// Pages lists the distinct page numbers that carry content, ascending.
// The persister walks these in order so progress commits page by page.
func (r *Result) Pages() []int {
	seen := make(map[int]bool)
	for _, p := range r.Paragraphs {
		seen[p.Page] = true
	}
	for _, a := range r.Assets() {
		seen[a.Page] = true
	}
	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// ParagraphsOn returns the paragraphs of one page in ordinal order.
func (r *Result) ParagraphsOn(page int) []models.Paragraph {
	var out []models.Paragraph
	for _, p := range r.Paragraphs {
		if p.Page == page {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// AssetsOn returns the assets of one page.
func (r *Result) AssetsOn(page int) []models.Asset {
	var out []models.Asset
	for _, a := range r.Assets() {
		if a.Page == page {
			out = append(out, a)
		}
	}
	return out
}

// BlockID derives a stable paragraph id from the document id prefix, page
// and block ordinal, so re-extraction regenerates identical ids.
func BlockID(docID string, page, ordinal int) string {
	prefix := docID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s-p%04d-b%04d", prefix, page, ordinal)
}

// AssetID derives a stable asset id in the same way, keyed by kind.
func AssetID(docID, kind string, page, ordinal int) string {
	prefix := docID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s-p%04d-%s%04d", prefix, page, kind[:1], ordinal)
}
