package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/vinnividivicci/openingbim-cicd/internal/events"
	"github.com/vinnividivicci/openingbim-cicd/internal/log"
)

// Category decides which subdirectory an artifact lands in. It has no effect
// on identifier uniqueness.
type Category string

const (
	// CategoryFragments holds converted viewer-format geometry.
	CategoryFragments Category = "fragments"
	// CategoryUploads holds raw uploaded inputs.
	CategoryUploads Category = "uploads"
	// CategoryResults holds normalized validation result documents.
	CategoryResults Category = "validation-results"
	// CategoryIfcCache holds raw model files kept for later conversion
	// requests that reference a validation job instead of re-uploading.
	CategoryIfcCache Category = "ifc-cache"
)

var categories = []Category{CategoryFragments, CategoryUploads, CategoryResults, CategoryIfcCache}

// Metadata describes a stored artifact.
type Metadata struct {
	ID              string    `json:"id"`
	OriginalName    string    `json:"original_name"`
	Path            string    `json:"path"`
	Size            int64     `json:"size"`
	MimeKind        string    `json:"mime_kind"`
	Category        Category  `json:"category"`
	Checksum        string    `json:"checksum"`
	CreatedAt       time.Time `json:"created_at"`
	ValidationJobID string    `json:"validation_job_id,omitempty"`
}

var ErrNotFound = errors.New("file not found")

// Store is a temp-file artifact store with an in-memory registry and a
// background expiry sweep. Identifiers are generated, never reissued.
type Store struct {
	baseDir       string
	retention     time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	hub           *events.Hub

	mu    sync.Mutex
	files map[string]*Metadata

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a store rooted at baseDir and prepares the category
// subdirectories. The sweep does not run until Start is called.
func New(baseDir string, retention, sweepInterval time.Duration, hub *events.Hub) (*Store, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("storage base directory is empty")
	}
	if retention <= 0 {
		retention = time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}

	s := &Store{
		baseDir:       filepath.Clean(trimmed),
		retention:     retention,
		sweepInterval: sweepInterval,
		now:           time.Now,
		hub:           hub,
		files:         make(map[string]*Metadata),
		stopCh:        make(chan struct{}),
	}

	for _, cat := range categories {
		if err := os.MkdirAll(filepath.Join(s.baseDir, string(cat)), 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory %q: %w", cat, err)
		}
	}

	return s, nil
}

// StoreFile persists data under a fresh id and records its metadata.
func (s *Store) StoreFile(data []byte, originalName string, cat Category, mimeKind string) (string, error) {
	return s.store(data, originalName, cat, mimeKind, "")
}

// StoreIfcForCache persists a raw model file under the cache category,
// stamping the validation job that produced it so a later conversion request
// can reuse the same input.
func (s *Store) StoreIfcForCache(data []byte, originalName, validationJobID string) (string, error) {
	return s.store(data, originalName, CategoryIfcCache, "application/x-step", validationJobID)
}

func (s *Store) store(data []byte, originalName string, cat Category, mimeKind, validationJobID string) (string, error) {
	id := uuid.NewString()
	path := filepath.Join(s.baseDir, string(cat), id+filepath.Ext(originalName))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %q: %w", originalName, err)
	}

	sum := blake3.Sum256(data)
	meta := &Metadata{
		ID:              id,
		OriginalName:    originalName,
		Path:            path,
		Size:            int64(len(data)),
		MimeKind:        mimeKind,
		Category:        cat,
		Checksum:        hex.EncodeToString(sum[:]),
		CreatedAt:       s.now().UTC(),
		ValidationJobID: validationJobID,
	}

	s.mu.Lock()
	s.files[id] = meta
	s.mu.Unlock()

	log.WithFile(id).Debug("artifact stored",
		"name", originalName, "category", string(cat), "size", meta.Size)
	return id, nil
}

// GetFile returns the artifact bytes and metadata, or ErrNotFound when the id
// was never issued or the file has been removed out-of-band. A stale registry
// entry detected on read is evicted.
func (s *Store) GetFile(id string) ([]byte, Metadata, error) {
	s.mu.Lock()
	meta, ok := s.files[id]
	if !ok {
		s.mu.Unlock()
		return nil, Metadata{}, ErrNotFound
	}
	m := *meta
	s.mu.Unlock()

	data, err := os.ReadFile(m.Path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			delete(s.files, id)
			s.mu.Unlock()
			log.WithFile(id).Warn("artifact missing on disk, registry entry evicted")
			return nil, Metadata{}, ErrNotFound
		}
		return nil, Metadata{}, fmt.Errorf("read artifact %q: %w", id, err)
	}

	return data, m, nil
}

// GetCachedIfc returns the cached raw model stored for a validation job, or
// ErrNotFound if no cache entry references that job.
func (s *Store) GetCachedIfc(validationJobID string) ([]byte, Metadata, error) {
	s.mu.Lock()
	var id string
	for _, meta := range s.files {
		if meta.Category == CategoryIfcCache && meta.ValidationJobID == validationJobID {
			id = meta.ID
			break
		}
	}
	s.mu.Unlock()

	if id == "" {
		return nil, Metadata{}, ErrNotFound
	}
	return s.GetFile(id)
}

// DeleteFile removes the artifact and its registry entry. It reports whether
// a live entry was actually deleted; repeated calls return false.
func (s *Store) DeleteFile(id string) bool {
	s.mu.Lock()
	meta, ok := s.files[id]
	if ok {
		delete(s.files, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	if err := os.Remove(meta.Path); err != nil && !os.IsNotExist(err) {
		// Registry entry is already gone; a leftover file is swept later.
		log.WithFile(id).Warn("remove artifact from disk", "error", err)
	}
	return true
}

// Start launches the background expiry sweep.
func (s *Store) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopCh:
				return
			}
		}
	}()
	log.WithComponent("store").Info("expiry sweep started",
		"interval", s.sweepInterval.String(), "retention", s.retention.String())
}

// Stop terminates the sweep and waits for it to exit.
func (s *Store) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// sweep deletes every artifact whose age exceeds the retention window.
func (s *Store) sweep() {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	var expired []string
	for id, meta := range s.files {
		if meta.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.DeleteFile(id)
	}

	if len(expired) > 0 {
		log.WithComponent("store").Info("expired artifacts removed", "count", len(expired))
		if s.hub != nil {
			s.hub.Publish("store.sweep", map[string]any{"deleted": len(expired)})
		}
	}
}

// Len returns the number of live registry entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
