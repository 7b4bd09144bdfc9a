package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbase-io/paperbase/internal/models"
)

func para(page int, text string) models.Paragraph {
	return models.Paragraph{Page: page, Text: text}
}

func TestHeaderSection(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		section string
		ok      bool
	}{
		{"plain heading", "Introduction", "introduction", true},
		{"upper case", "ABSTRACT", "abstract", true},
		{"numbered", "3. Method", "method", true},
		{"dotted numbering", "3.1 Background", "background", true},
		{"roman numeral", "IV. Discussion", "discussion", true},
		{"pluralized", "Experiments", "experiment", true},
		{"already plural vocab", "References", "references", true},
		{"heading inside sentence", "The introduction of noise", "", false},
		{"unknown heading", "Future Work", "", false},
		{"body text", "We evaluate on three datasets.", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			section, ok := HeaderSection(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.section, section)
		})
	}
}

func TestSplitSectionTagging(t *testing.T) {
	paragraphs := []models.Paragraph{
		para(1, "Title line of the paper."),
		para(1, "Abstract"),
		para(1, "We study a thing."),
		para(2, "1. Introduction"),
		para(2, "Things are interesting."),
		para(3, "5. Conclusions"),
		para(3, "We conclude."),
	}

	chunks := Split(paragraphs, 10_000)
	require.Len(t, chunks, 4)

	assert.Equal(t, DefaultSection, chunks[0].Section)
	assert.Equal(t, "Title line of the paper.", chunks[0].Text)

	assert.Equal(t, "abstract", chunks[1].Section)
	assert.Equal(t, "We study a thing.", chunks[1].Text)

	assert.Equal(t, "introduction", chunks[2].Section)
	assert.Equal(t, "conclusion", chunks[3].Section)
}

func TestSplitHeaderTextExcluded(t *testing.T) {
	chunks := Split([]models.Paragraph{
		para(1, "Abstract"),
		para(1, "Body."),
	}, 10_000)
	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Text, "Abstract")
}

func TestSplitNeverBreaksParagraphs(t *testing.T) {
	big := strings.Repeat("x", 500)
	chunks := Split([]models.Paragraph{
		para(1, big),
		para(2, big),
		para(2, "short one"),
	}, 400)

	// Each oversized paragraph becomes its own chunk; the threshold only
	// bounds where accumulation stops, never cuts text.
	require.Len(t, chunks, 3)
	assert.Equal(t, big, chunks[0].Text)
	assert.Equal(t, big, chunks[1].Text)
	assert.Equal(t, "short one", chunks[2].Text)
}

func TestSplitAccumulatesUpToThreshold(t *testing.T) {
	chunks := Split([]models.Paragraph{
		para(1, "one"),
		para(1, "two"),
		para(2, "three"),
	}, 10_000)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one\n\ntwo\n\nthree", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].StartPage)
}

func TestSplitBoundsAccumulatedParagraphs(t *testing.T) {
	small := strings.Repeat("s", 60)
	chunks := Split([]models.Paragraph{
		para(1, small),
		para(1, small),
		para(2, small),
	}, 100)

	// No pair of 60-char paragraphs fits in 100, so none may share a chunk.
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 100)
	}
}

func TestSplitPacksParagraphsThatFitTogether(t *testing.T) {
	small := strings.Repeat("s", 40)
	chunks := Split([]models.Paragraph{
		para(1, small),
		para(1, small),
		para(2, strings.Repeat("t", 90)),
	}, 100)

	// 40+2+40 fits under 100; the 90-char paragraph starts a new chunk.
	require.Len(t, chunks, 2)
	assert.Equal(t, small+"\n\n"+small, chunks[0].Text)
	assert.Equal(t, 1, chunks[0].StartPage)
	assert.Equal(t, 2, chunks[1].StartPage)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 100)
	}
}

func TestSplitStartPageTracksFirstParagraph(t *testing.T) {
	chunks := Split([]models.Paragraph{
		para(3, strings.Repeat("a", 70)),
		para(4, strings.Repeat("b", 70)),
		para(5, strings.Repeat("c", 70)),
	}, 60)
	require.Len(t, chunks, 3)
	assert.Equal(t, 3, chunks[0].StartPage)
	assert.Equal(t, 4, chunks[1].StartPage)
	assert.Equal(t, 5, chunks[2].StartPage)
}

func TestSplitOrdinalsAreSequential(t *testing.T) {
	var paragraphs []models.Paragraph
	for i := 0; i < 6; i++ {
		paragraphs = append(paragraphs, para(1, strings.Repeat("w", 100)))
	}
	chunks := Split(paragraphs, 100)
	require.Len(t, chunks, 6)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Empty(t, Split(nil, 1200))
}
