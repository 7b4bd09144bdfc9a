package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paperbase-io/paperbase/internal/core"
)

// HTTPCloudExtractor talks to the remote structured-extraction service
// over its REST API: submit a batch, poll it, download the result archive.
type HTTPCloudExtractor struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPCloudExtractor(baseURL, token string) *HTTPCloudExtractor {
	return &HTTPCloudExtractor{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type submitRequest struct {
	FileName string `json:"file_name"`
	File     string `json:"file"` // base64
}

type submitResponse struct {
	BatchID string `json:"batch_id"`
}

func (c *HTTPCloudExtractor) SubmitBatch(ctx context.Context, fileName string, data []byte) (string, error) {
	body, err := json.Marshal(submitRequest{
		FileName: fileName,
		File:     base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/batches", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit batch: %s", resp.Status)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.BatchID == "" {
		return "", fmt.Errorf("submit batch: empty batch id")
	}
	return out.BatchID, nil
}

func (c *HTTPCloudExtractor) PollBatch(ctx context.Context, batchID string) (core.BatchStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/batches/"+batchID, nil)
	if err != nil {
		return core.BatchStatus{}, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return core.BatchStatus{}, fmt.Errorf("poll batch %s: %w", batchID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return core.BatchStatus{}, fmt.Errorf("poll batch %s: %s", batchID, resp.Status)
	}

	var st core.BatchStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return core.BatchStatus{}, fmt.Errorf("decode batch status: %w", err)
	}
	return st, nil
}

func (c *HTTPCloudExtractor) FetchResult(ctx context.Context, resultURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch result: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPCloudExtractor) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

var _ core.CloudExtractor = (*HTTPCloudExtractor)(nil)
