package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sync"
)

// Localizer resolves input locations to local paths, staging remote ones
// into a per-run downloads directory. Repeated references to one location
// localize once.
type Localizer struct {
	stager Stager
	dir    string

	mu     sync.Mutex
	staged map[string]string      // location -> local path
	inWork map[string]*sync.Mutex // serializes concurrent stages of one location
}

// NewLocalizer creates a Localizer that stages into dir.
func NewLocalizer(stager Stager, dir string) *Localizer {
	return &Localizer{
		stager: stager,
		dir:    dir,
		staged: make(map[string]string),
		inWork: make(map[string]*sync.Mutex),
	}
}

// Localize returns a local path for location. Plain paths and file://
// locations pass through unchanged; remote locations download into a
// subdirectory keyed by the location hash, so equal locations share one
// copy and distinct locations with equal basenames never collide.
func (l *Localizer) Localize(ctx context.Context, location string) (string, error) {
	scheme, rest := ParseScheme(location)
	if scheme == "" {
		return location, nil
	}
	if scheme == "file" {
		return rest, nil
	}

	l.mu.Lock()
	lock, ok := l.inWork[location]
	if !ok {
		lock = &sync.Mutex{}
		l.inWork[location] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	if path, ok := l.staged[location]; ok {
		l.mu.Unlock()
		return path, nil
	}
	l.mu.Unlock()

	sum := sha256.Sum256([]byte(location))
	dest := filepath.Join(l.dir, hex.EncodeToString(sum[:8]), filepath.Base(rest))
	if err := l.stager.StageIn(ctx, location, dest); err != nil {
		return "", err
	}

	l.mu.Lock()
	l.staged[location] = dest
	l.mu.Unlock()
	return dest, nil
}
