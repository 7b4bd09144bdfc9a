package extraction

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/models"
)

// PDFRenderer implements core.PageRenderer with a pure-Go PDF parser.
// It keeps the most recently opened file cached because the orchestrator
// walks one document page by page.
type PDFRenderer struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	reader *pdf.Reader
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) open(path string) (*pdf.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == path && r.reader != nil {
		return r.reader, nil
	}
	if r.file != nil {
		_ = r.file.Close()
		r.file, r.reader, r.path = nil, nil, ""
	}
	f, rd, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	r.path, r.file, r.reader = path, f, rd
	return rd, nil
}

func (r *PDFRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file, r.reader, r.path = nil, nil, ""
		return err
	}
	return nil
}

func (r *PDFRenderer) PageCount(path string) (int, error) {
	rd, err := r.open(path)
	if err != nil {
		return 0, err
	}
	return rd.NumPage(), nil
}

func (r *PDFRenderer) PageSize(path string, page int) (float64, float64, error) {
	rd, err := r.open(path)
	if err != nil {
		return 0, 0, err
	}
	p := rd.Page(page)
	if p.V.IsNull() {
		return 0, 0, fmt.Errorf("page %d not found", page)
	}
	w, h := mediaBox(p)
	return w, h, nil
}

// line is one baseline worth of text runs.
type line struct {
	y    float64
	size float64
	runs []pdf.Text
}

// TextBlocks groups the page's positioned text runs into lines by baseline
// and lines into blocks by vertical gap. Coordinates are PDF page space
// with the origin at the bottom-left.
func (r *PDFRenderer) TextBlocks(path string, page int) ([]core.TextBlock, error) {
	rd, err := r.open(path)
	if err != nil {
		return nil, err
	}
	p := rd.Page(page)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", page)
	}

	texts := p.Content().Text
	if len(texts) == 0 {
		return nil, nil
	}

	sort.SliceStable(texts, func(i, j int) bool {
		if texts[i].Y != texts[j].Y {
			return texts[i].Y > texts[j].Y
		}
		return texts[i].X < texts[j].X
	})

	const baselineTol = 2.0
	var lines []line
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		if n := len(lines); n > 0 && lines[n-1].y-t.Y < baselineTol {
			lines[n-1].runs = append(lines[n-1].runs, t)
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		lines = append(lines, line{y: t.Y, size: size, runs: []pdf.Text{t}})
	}

	var blocks []core.TextBlock
	var cur []line
	flush := func() {
		if len(cur) == 0 {
			return
		}
		blocks = appendBlock(blocks, cur)
		cur = cur[:0]
	}

	for i, ln := range lines {
		if i > 0 && lines[i-1].y-ln.y > ln.size*1.6 {
			flush()
		}
		cur = append(cur, ln)
	}
	flush()
	return blocks, nil
}

// appendBlock joins a group of lines into one text block with its
// enclosing bbox. Runs on a line are separated by a space when the
// horizontal gap between them is wider than kerning.
func appendBlock(blocks []core.TextBlock, lines []line) []core.TextBlock {
	var sb strings.Builder
	bbox := models.BBox{}
	seeded := false

	for i, ln := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for j, run := range ln.runs {
			if j > 0 {
				prev := ln.runs[j-1]
				if run.X-(prev.X+prev.W) > ln.size*0.2 {
					sb.WriteByte(' ')
				}
			}
			sb.WriteString(run.S)

			size := run.FontSize
			if size <= 0 {
				size = ln.size
			}
			if !seeded {
				bbox = models.BBox{run.X, run.Y, run.X + run.W, run.Y + size}
				seeded = true
				continue
			}
			if run.X < bbox[0] {
				bbox[0] = run.X
			}
			if run.Y < bbox[1] {
				bbox[1] = run.Y
			}
			if run.X+run.W > bbox[2] {
				bbox[2] = run.X + run.W
			}
			if run.Y+size > bbox[3] {
				bbox[3] = run.Y + size
			}
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return blocks
	}
	return append(blocks, core.TextBlock{Text: text, BBox: bbox})
}

// ImageRefs enumerates the page's XObject images by resource name. No
// placement operators are interpreted, so the bbox is the full page.
func (r *PDFRenderer) ImageRefs(path string, page int) ([]core.ImageRef, error) {
	rd, err := r.open(path)
	if err != nil {
		return nil, err
	}
	p := rd.Page(page)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", page)
	}

	res := p.Resources()
	if res.IsNull() {
		return nil, nil
	}
	xobj := res.Key("XObject")
	if xobj.IsNull() {
		return nil, nil
	}

	w, h := mediaBox(p)
	var out []core.ImageRef
	keys := xobj.Keys()
	sort.Strings(keys)
	for _, name := range keys {
		obj := xobj.Key(name)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		out = append(out, core.ImageRef{
			Xref: name,
			BBox: models.BBox{0, 0, w, h},
		})
	}
	return out, nil
}

func mediaBox(p pdf.Page) (w, h float64) {
	v := p.V
	for i := 0; i < 32 && !v.IsNull(); i++ {
		if mb := v.Key("MediaBox"); !mb.IsNull() && mb.Len() == 4 {
			x0, y0 := num(mb.Index(0)), num(mb.Index(1))
			x1, y1 := num(mb.Index(2)), num(mb.Index(3))
			return x1 - x0, y1 - y0
		}
		v = v.Key("Parent")
	}
	// US Letter default when the tree carries no MediaBox.
	return 612, 792
}

func num(v pdf.Value) float64 {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64())
	case pdf.Real:
		return v.Float64()
	default:
		return 0
	}
}

var _ core.PageRenderer = (*PDFRenderer)(nil)
