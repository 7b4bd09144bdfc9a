package extraction

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/models"
)

// Page margins (in PDF units) treated as header and footer bands. Blocks
// whose vertical span falls entirely inside a band are discarded.
const bandHeight = 50.0

// Orchestrator runs dual-path structured extraction: the cloud service
// when configured, then the local renderer, then plain text. Only
// exhaustion of every path is fatal.
type Orchestrator struct {
	cloud    core.CloudExtractor // nil means unconfigured, resolved at startup
	renderer core.PageRenderer
	plain    PlainTextConverter
	log      *zap.Logger

	pollInterval  time.Duration
	pollTimeout   time.Duration
	minBlockWords int
}

type Options struct {
	Cloud         core.CloudExtractor
	Renderer      core.PageRenderer
	Plain         PlainTextConverter
	Logger        *zap.Logger
	PollInterval  time.Duration
	PollTimeout   time.Duration
	MinBlockWords int
}

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		cloud:         opts.Cloud,
		renderer:      opts.Renderer,
		plain:         opts.Plain,
		log:           opts.Logger,
		pollInterval:  opts.PollInterval,
		pollTimeout:   opts.PollTimeout,
		minBlockWords: opts.MinBlockWords,
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.pollInterval <= 0 {
		o.pollInterval = 5 * time.Second
	}
	if o.pollTimeout <= 0 {
		o.pollTimeout = 3 * time.Minute
	}
	if o.minBlockWords <= 0 {
		o.minBlockWords = 5
	}
	return o
}

// Extract produces a uniform Result from whichever path succeeds first.
// Errors are always *HardError: every cloud problem is converted into a
// fallback attempt internally.
func (o *Orchestrator) Extract(ctx context.Context, docID, fileName string, data []byte) (*Result, error) {
	if o.cloud != nil {
		res, err := o.cloudExtract(ctx, docID, fileName, data)
		if err == nil {
			return res, nil
		}
		// Soft by definition: log and fall through to the local path.
		o.log.Warn("cloud extraction failed, falling back",
			zap.String("document_id", docID), zap.Error(err))
	}

	res, err := o.fallbackExtract(ctx, docID, data)
	if err == nil && !res.Empty() {
		return res, nil
	}
	if err == nil {
		err = fmt.Errorf("local rendering produced no content")
	}
	o.log.Warn("local rendering failed, trying plain text",
		zap.String("document_id", docID), zap.Error(err))

	if o.plain != nil {
		text, perr := o.plain.Convert(data)
		if perr == nil {
			if res := plainTextResult(docID, text); !res.Empty() {
				return res, nil
			}
			perr = fmt.Errorf("plain text extraction produced no content")
		}
		return nil, &HardError{Msg: "all extraction paths exhausted", Err: perr}
	}
	return nil, &HardError{Msg: "all extraction paths exhausted", Err: err}
}

// cloudExtract submits the file and polls until done, failed, or the
// bounded timeout elapses. The remote job is never cancelled; the poller
// just gives up (at-least-once semantics).
func (o *Orchestrator) cloudExtract(ctx context.Context, docID, fileName string, data []byte) (*Result, error) {
	batchID, err := o.cloud.SubmitBatch(ctx, fileName, data)
	if err != nil {
		return nil, softf("submit", err)
	}

	deadline := time.Now().Add(o.pollTimeout)
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		st, err := o.cloud.PollBatch(ctx, batchID)
		if err != nil {
			return nil, softf("poll", err)
		}
		switch st.State {
		case core.BatchDone:
			archive, err := o.cloud.FetchResult(ctx, st.ResultURL)
			if err != nil {
				return nil, softf("fetch", err)
			}
			res, err := parseArchive(docID, archive)
			if err != nil {
				return nil, softf("parse", err)
			}
			if res.Empty() {
				return nil, softf("empty result", nil)
			}
			return res, nil
		case core.BatchFailed:
			return nil, softf("remote failure", fmt.Errorf("%s", st.ErrorMessage))
		case core.BatchPending, core.BatchRunning, core.BatchConverting:
			// keep polling
		default:
			return nil, softf("unknown state", fmt.Errorf("state %q", st.State))
		}

		if time.Now().After(deadline) {
			return nil, softf("timeout", fmt.Errorf("batch %s still %s after %s", batchID, st.State, o.pollTimeout))
		}
		select {
		case <-ctx.Done():
			return nil, softf("cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

// fallbackExtract renders each page locally. Per-page errors are logged
// and the page skipped; partial results beat total failure.
func (o *Orchestrator) fallbackExtract(ctx context.Context, docID string, data []byte) (*Result, error) {
	tmp, err := os.CreateTemp("", "paperbase-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	pageCount, err := o.renderer.PageCount(path)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}

	res := &Result{Source: SourceFallback, PageCount: pageCount}
	imgOrd := 0

	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, height, err := o.renderer.PageSize(path, page)
		if err != nil || height <= 0 {
			height = 792
		}

		blocks, err := o.renderer.TextBlocks(path, page)
		if err != nil {
			o.log.Warn("skipping unparsable page",
				zap.String("document_id", docID), zap.Int("page", page), zap.Error(err))
			continue
		}

		ord := 0
		for _, b := range blocks {
			if inHeaderBand(b.BBox, height) || inFooterBand(b.BBox) {
				continue
			}
			text := normalizeBlock(b.Text)
			if wordCount(text) < o.minBlockWords {
				continue
			}
			res.Paragraphs = append(res.Paragraphs, models.Paragraph{
				ID:         BlockID(docID, page, ord),
				DocumentID: docID,
				Page:       page,
				Ordinal:    ord,
				Text:       text,
				BBox:       b.BBox,
			})
			ord++
		}

		refs, err := o.renderer.ImageRefs(path, page)
		if err != nil {
			o.log.Warn("skipping page images",
				zap.String("document_id", docID), zap.Int("page", page), zap.Error(err))
		}
		for _, ref := range refs {
			res.Images = append(res.Images, models.Asset{
				ID:         AssetID(docID, models.AssetImage, page, imgOrd),
				DocumentID: docID,
				Kind:       models.AssetImage,
				Page:       page,
				Ordinal:    imgOrd,
				BBox:       ref.BBox,
				StorageKey: ref.Xref,
			})
			imgOrd++
		}
	}
	return res, nil
}

// inHeaderBand reports whether the block sits entirely in the top margin.
// PDF y grows upward, so the header band is [height-bandHeight, height].
func inHeaderBand(b models.BBox, pageHeight float64) bool {
	return b[1] >= pageHeight-bandHeight
}

// inFooterBand reports whether the block sits entirely in the bottom margin.
func inFooterBand(b models.BBox) bool {
	return b[3] <= bandHeight
}

var hyphenBreak = regexp.MustCompile(`(\w)-\n(\w)`)
var spaceRun = regexp.MustCompile(`[ \t]+`)

// normalizeBlock joins hyphenated line breaks, folds remaining newlines
// into spaces and collapses runs of whitespace.
func normalizeBlock(s string) string {
	s = hyphenBreak.ReplaceAllString(s, "$1$2")
	s = strings.ReplaceAll(s, "\n", " ")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
