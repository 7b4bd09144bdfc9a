package core

import (
	"context"

	"github.com/paperbase-io/paperbase/internal/models"
)

// Cloud extraction batch states as reported by the service.
const (
	BatchPending    = "pending"
	BatchRunning    = "running"
	BatchConverting = "converting"
	BatchDone       = "done"
	BatchFailed     = "failed"
)

// BatchStatus is one poll observation of a cloud extraction job.
type BatchStatus struct {
	State        string `json:"state"`
	ResultURL    string `json:"result_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// CloudExtractor is the remote structured-extraction service. Any error
// from these methods is a soft failure: the caller falls back to local
// rendering instead of surfacing it.
type CloudExtractor interface {
	SubmitBatch(ctx context.Context, fileName string, data []byte) (batchID string, err error)
	PollBatch(ctx context.Context, batchID string) (BatchStatus, error)
	// FetchResult downloads the result archive (a zip containing the
	// structured content manifest).
	FetchResult(ctx context.Context, resultURL string) ([]byte, error)
}

// TextBlock is a positioned run of text on a page.
type TextBlock struct {
	Text string
	BBox models.BBox
}

// ImageRef identifies an embedded image by its cross-reference name; no
// pixel data is decoded at this stage.
type ImageRef struct {
	Xref string
	BBox models.BBox
}

// PageRenderer is the local fallback parser. Pages are 1-based.
type PageRenderer interface {
	PageCount(path string) (int, error)
	PageSize(path string, page int) (width, height float64, err error)
	TextBlocks(path string, page int) ([]TextBlock, error)
	ImageRefs(path string, page int) ([]ImageRef, error)
}
