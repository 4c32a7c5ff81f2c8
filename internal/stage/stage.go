// Package stage localizes remote task inputs. A Stager fetches one location
// into a destination path; the Localizer in front of it deduplicates
// downloads within a run.
package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Stager fetches the file at location into destPath.
type Stager interface {
	StageIn(ctx context.Context, location, destPath string) error
}

// ParseScheme splits a location into URI scheme and the remainder. Plain
// paths return an empty scheme.
func ParseScheme(location string) (scheme, rest string) {
	idx := strings.Index(location, "://")
	if idx < 0 {
		return "", location
	}
	return location[:idx], location[idx+3:]
}

// FileStager stages file:// locations and plain paths by copying.
type FileStager struct{}

func (FileStager) StageIn(_ context.Context, location, destPath string) error {
	scheme, path := ParseScheme(location)
	switch scheme {
	case "file", "":
		return copyFile(path, destPath)
	}
	return fmt.Errorf("file stager: unsupported scheme %q", scheme)
}

// CompositeStager routes staging by URI scheme.
type CompositeStager struct {
	handlers map[string]Stager
	fallback Stager
}

// NewCompositeStager creates a CompositeStager. fallback handles schemes
// without a registered handler; nil means unhandled schemes fail.
func NewCompositeStager(handlers map[string]Stager, fallback Stager) *CompositeStager {
	return &CompositeStager{handlers: handlers, fallback: fallback}
}

func (s *CompositeStager) StageIn(ctx context.Context, location, destPath string) error {
	scheme, _ := ParseScheme(location)
	if handler, ok := s.handlers[scheme]; ok {
		return handler.StageIn(ctx, location, destPath)
	}
	if s.fallback != nil {
		return s.fallback.StageIn(ctx, location, destPath)
	}
	return fmt.Errorf("no stager registered for scheme %q", scheme)
}

// Default returns the standard scheme routing: http(s) and s3 handlers over
// a file fallback. s3 may be nil when no AWS configuration is available;
// s3:// inputs then fail at stage time rather than at startup.
func Default(httpStager, s3Stager Stager) *CompositeStager {
	handlers := map[string]Stager{
		"http":  httpStager,
		"https": httpStager,
	}
	if s3Stager != nil {
		handlers["s3"] = s3Stager
	}
	return NewCompositeStager(handlers, FileStager{})
}

// copyFile copies src to dst, creating parent directories as needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
