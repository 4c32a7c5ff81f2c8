package stage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPStager downloads http:// and https:// locations.
type HTTPStager struct {
	client *http.Client
}

// NewHTTPStager creates an HTTPStager. timeout bounds each download; zero
// means 5 minutes.
func NewHTTPStager(timeout time.Duration) *HTTPStager {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPStager{client: &http.Client{Timeout: timeout}}
}

func (s *HTTPStager) StageIn(ctx context.Context, location, destPath string) error {
	scheme, _ := ParseScheme(location)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("http stager: unsupported scheme %q", scheme)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("http stager: mkdir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return fmt.Errorf("http stager: create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http stager: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http stager: GET %s: HTTP %d", location, resp.StatusCode)
	}

	// Write to a temp file first so partial downloads never surface at
	// destPath.
	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("http stager: create temp file: %w", err)
	}
	_, err = io.Copy(out, resp.Body)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("http stager: write file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("http stager: rename temp file: %w", err)
	}
	return nil
}
