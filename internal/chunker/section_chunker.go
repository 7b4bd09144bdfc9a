// Package chunker assembles extracted paragraphs into retrieval-sized
// chunks, tagging each chunk with the document section it belongs to.
package chunker

import (
	"regexp"
	"strings"

	"github.com/paperbase-io/paperbase/internal/models"
)

// DefaultSection tags content that appears before the first recognized
// section header.
const DefaultSection = "content"

// sectionVocab is the fixed heading vocabulary. A paragraph is a section
// header only if, after case folding and stripping leading numbering, it
// exactly matches an entry (optionally pluralized).
var sectionVocab = []string{
	"abstract",
	"introduction",
	"related work",
	"background",
	"method",
	"methodology",
	"approach",
	"experiment",
	"result",
	"discussion",
	"conclusion",
	"references",
	"acknowledgment",
}

// Leading numbering such as "2.", "3.1", or "III." before a heading word.
var numberingRe = regexp.MustCompile(`^(?:\d+(?:\.\d+)*\.?|[ivxlcdmIVXLCDM]+\.)\s+`)

// HeaderSection reports whether the paragraph text is a section header,
// returning the canonical (singular, lower-case) section name.
func HeaderSection(text string) (string, bool) {
	t := strings.TrimSpace(text)
	t = numberingRe.ReplaceAllString(t, "")
	t = strings.ToLower(strings.TrimSpace(t))
	for _, v := range sectionVocab {
		if t == v || t == v+"s" {
			return v, true
		}
	}
	return "", false
}

// Split walks paragraphs in page/ordinal order and accumulates them into
// chunks of at most sizeThreshold characters. Paragraphs are never split:
// a chunk exceeds the threshold only when a single paragraph alone does.
// Header paragraphs flush the accumulation and set the section for what
// follows; their own text is not part of any chunk.
func Split(paragraphs []models.Paragraph, sizeThreshold int) []models.Chunk {
	if sizeThreshold <= 0 {
		sizeThreshold = 1200
	}

	var chunks []models.Chunk
	var buf strings.Builder
	section := DefaultSection
	startPage := 0
	ordinal := 0

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, models.Chunk{
			Ordinal:   ordinal,
			Text:      buf.String(),
			StartPage: startPage,
			Section:   section,
		})
		ordinal++
		buf.Reset()
	}

	for _, p := range paragraphs {
		if name, ok := HeaderSection(p.Text); ok {
			flush()
			section = name
			continue
		}
		if buf.Len() > 0 && buf.Len()+2+len(p.Text) > sizeThreshold {
			flush()
		}
		if buf.Len() == 0 {
			startPage = p.Page
		} else {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p.Text)
		if buf.Len() >= sizeThreshold {
			flush()
		}
	}
	flush()
	return chunks
}
