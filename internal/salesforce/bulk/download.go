package bulk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/muselabdx/forceflow/internal/httpx"
)

// =============================================================================
// RESULT FILE DOWNLOAD
// =============================================================================

// ResultFile is a batch result body spooled to a private temporary file.
// The entire body is downloaded before reading begins so the server never
// drops a long-lived result connection mid-stream. Close removes the file.
type ResultFile struct {
	file *os.File
}

// Read reads from the downloaded result body.
func (r *ResultFile) Read(p []byte) (int, error) {
	return r.file.Read(p)
}

// Close closes and removes the temporary file.
func (r *ResultFile) Close() error {
	path := r.file.Name()
	err := r.file.Close()
	if rmErr := os.Remove(path); err == nil {
		err = rmErr
	}
	return err
}

// RetrieveResult downloads one batch result file. For DML batches resultID
// is empty; query batches address an individual result file by id. The
// caller must Close the returned file to release the underlying temp file.
func (c *Client) RetrieveResult(ctx context.Context, jobID, batchID, resultID string) (io.ReadCloser, error) {
	path := fmt.Sprintf("job/%s/batch/%s/result", jobID, batchID)
	if resultID != "" {
		path += "/" + resultID
	}

	resp, err := c.http.Stream(ctx, &httpx.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp("", "bulk-result-*")
	if err != nil {
		return nil, fmt.Errorf("create temp result file: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("download result file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("rewind result file: %w", err)
	}

	return &ResultFile{file: tmp}, nil
}
