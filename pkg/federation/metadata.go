package federation

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/fedbroker/fedbroker/pkg/observability"
)

// MetadataServer serves the identity provider metadata document from a
// configured path. The document is cached in memory and reloaded when the
// file changes on disk.
type MetadataServer struct {
	path   string
	logger *observability.Logger

	mu    sync.RWMutex
	bytes []byte
}

// NewMetadataServer creates a metadata server for the document at path.
func NewMetadataServer(path string, logger *observability.Logger) *MetadataServer {
	return &MetadataServer{path: path, logger: logger}
}

// Load reads the document from disk into the cache. An unreadable file
// surfaces as MetadataError; the previous cached document, if any, is kept.
func (m *MetadataServer) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return &MetadataError{Path: m.path, Err: err}
	}

	m.mu.Lock()
	m.bytes = data
	m.mu.Unlock()
	return nil
}

// Bytes returns the cached document, loading it on first use.
func (m *MetadataServer) Bytes() ([]byte, error) {
	m.mu.RLock()
	cached := m.bytes
	m.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	if err := m.Load(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bytes, nil
}

// Watch reloads the document whenever the file changes, until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// still trigger a reload.
func (m *MetadataServer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &MetadataError{Path: m.path, Err: err}
	}

	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return &MetadataError{Path: m.path, Err: err}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != m.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := m.Load(); err != nil {
					m.logger.WithError(err).Warn("failed to reload metadata document")
					continue
				}
				m.logger.WithField("path", m.path).Info("metadata document reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.WithError(err).Warn("metadata watcher error")
			}
		}
	}()

	return nil
}
