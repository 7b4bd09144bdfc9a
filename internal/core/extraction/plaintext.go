package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/paperbase-io/paperbase/internal/models"
)

// PlainTextConverter is the last extraction rung: whole-document text with
// no page or position information. Used only when the structured renderer
// cannot open the file at all.
type PlainTextConverter interface {
	Convert(data []byte) (string, error)
}

// DocconvConverter implements PlainTextConverter with sajari/docconv.
type DocconvConverter struct{}

func (DocconvConverter) Convert(data []byte) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", false)
	if err != nil {
		return "", fmt.Errorf("docconv: %w", err)
	}
	if res.Body == "" {
		return "", fmt.Errorf("docconv: empty text")
	}
	return res.Body, nil
}

// plainTextResult shapes a flat text body into a single-page Result so the
// rest of the pipeline stays uniform.
func plainTextResult(docID, text string) *Result {
	res := &Result{Source: SourcePlaintext, PageCount: 1}
	ord := 0
	for _, block := range strings.Split(text, "\n\n") {
		block = normalizeBlock(block)
		if block == "" {
			continue
		}
		res.Paragraphs = append(res.Paragraphs, models.Paragraph{
			ID:         BlockID(docID, 1, ord),
			DocumentID: docID,
			Page:       1,
			Ordinal:    ord,
			Text:       block,
		})
		ord++
	}
	return res
}
