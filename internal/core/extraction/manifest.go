package extraction

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/paperbase-io/paperbase/internal/models"
)

// manifestItem is one entry of the content manifest the cloud service
// produces: text, image, table and equation units with page and bbox.
type manifestItem struct {
	Type         string    `json:"type"`
	Text         string    `json:"text"`
	TextFormat   string    `json:"text_format,omitempty"`
	PageIdx      int       `json:"page_idx"`
	BBox         []float64 `json:"bbox,omitempty"`
	ImgPath      string    `json:"img_path,omitempty"`
	ImgCaption   []string  `json:"img_caption,omitempty"`
	TableCaption []string  `json:"table_caption,omitempty"`
	TableBody    string    `json:"table_body,omitempty"`
}

const manifestName = "content_list.json"

// parseArchive locates the content manifest inside the result zip and
// converts it into a Result. page_idx is 0-based on the wire.
func parseArchive(docID string, archive []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open result archive: %w", err)
	}

	var manifest []byte
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, manifestName) {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", f.Name, err)
			}
			manifest, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", f.Name, err)
			}
			break
		}
	}
	if manifest == nil {
		return nil, fmt.Errorf("result archive has no %s", manifestName)
	}
	return parseManifest(docID, manifest)
}

func parseManifest(docID string, data []byte) (*Result, error) {
	var items []manifestItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	res := &Result{Source: SourceCloud}
	paraOrd := make(map[int]int) // per-page paragraph ordinal
	kindOrd := make(map[string]int)

	for _, it := range items {
		page := it.PageIdx + 1
		if page > res.PageCount {
			res.PageCount = page
		}
		switch it.Type {
		case "text":
			text := strings.TrimSpace(it.Text)
			if text == "" {
				continue
			}
			ord := paraOrd[page]
			paraOrd[page] = ord + 1
			res.Paragraphs = append(res.Paragraphs, models.Paragraph{
				ID:         BlockID(docID, page, ord),
				DocumentID: docID,
				Page:       page,
				Ordinal:    ord,
				Text:       text,
				BBox:       toBBox(it.BBox),
			})
		case "image":
			ord := kindOrd[models.AssetImage]
			kindOrd[models.AssetImage] = ord + 1
			res.Images = append(res.Images, models.Asset{
				ID:         AssetID(docID, models.AssetImage, page, ord),
				DocumentID: docID,
				Kind:       models.AssetImage,
				Page:       page,
				Ordinal:    ord,
				BBox:       toBBox(it.BBox),
				Caption:    strings.Join(it.ImgCaption, " "),
				StorageKey: it.ImgPath,
			})
		case "table":
			ord := kindOrd[models.AssetTable]
			kindOrd[models.AssetTable] = ord + 1
			res.Tables = append(res.Tables, models.Asset{
				ID:         AssetID(docID, models.AssetTable, page, ord),
				DocumentID: docID,
				Kind:       models.AssetTable,
				Page:       page,
				Ordinal:    ord,
				BBox:       toBBox(it.BBox),
				Caption:    strings.Join(it.TableCaption, " "),
			})
		case "equation":
			ord := kindOrd[models.AssetFormula]
			kindOrd[models.AssetFormula] = ord + 1
			res.Formulas = append(res.Formulas, models.Asset{
				ID:         AssetID(docID, models.AssetFormula, page, ord),
				DocumentID: docID,
				Kind:       models.AssetFormula,
				Page:       page,
				Ordinal:    ord,
				BBox:       toBBox(it.BBox),
				Latex:      it.Text,
			})
		}
	}
	return res, nil
}

func toBBox(v []float64) models.BBox {
	var b models.BBox
	for i := 0; i < len(v) && i < 4; i++ {
		b[i] = v[i]
	}
	return b
}
