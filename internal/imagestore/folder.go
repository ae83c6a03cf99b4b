// Package imagestore stores tile images referenced by the raster cache.
package imagestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/MeKo-Tech/tilemap/internal/rastercache"
	"github.com/MeKo-Tech/tilemap/internal/tile"
)

// ErrNotFound is returned when no image exists for a reference.
var ErrNotFound = errors.New("image not found")

// ErrInvalidRef is returned for references that escape the store root.
var ErrInvalidRef = errors.New("invalid image reference")

// Store reads and writes images by reference.
type Store interface {
	Put(ref rastercache.ResourceRef, data []byte) error
	Get(ref rastercache.ResourceRef) ([]byte, error)
	Exists(ref rastercache.ResourceRef) bool
}

// TileRef returns the reference of a slippy tile image:
// <maptype>/<z>/<x>/<y>.<ext>.
func TileRef(mt rastercache.MapType, id tile.CanonicalID, ext string) rastercache.ResourceRef {
	return rastercache.ResourceRef(path.Join(
		rastercache.ResolveFolder("", mt),
		strconv.Itoa(id.Z),
		strconv.Itoa(id.X),
		strconv.Itoa(id.Y)+"."+ext,
	))
}

// LevelRef returns the reference of a generated tile-set level image:
// <maptype>/<name>/<name>_z<zoom>.<ext>.
func LevelRef(mt rastercache.MapType, name string, zoom float64, ext string) rastercache.ResourceRef {
	z := strconv.FormatFloat(zoom, 'f', -1, 64)
	return rastercache.ResourceRef(path.Join(
		rastercache.ResolveFolder("", mt),
		name,
		name+"_z"+z+"."+ext,
	))
}

// FolderStore keeps images as files below a root directory.
type FolderStore struct {
	root string
}

var _ Store = (*FolderStore)(nil)

// NewFolderStore returns a store rooted at root. The directory is created on
// the first write.
func NewFolderStore(root string) *FolderStore {
	return &FolderStore{root: root}
}

// Root returns the root directory.
func (s *FolderStore) Root() string { return s.root }

// Path returns the file path of ref.
func (s *FolderStore) Path(ref rastercache.ResourceRef) (string, error) {
	clean := path.Clean("/" + string(ref))
	if ref == "" || clean == "/" || strings.Contains(string(ref), "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Put writes data to the file of ref, creating directories as needed.
func (s *FolderStore) Put(ref rastercache.ResourceRef, data []byte) error {
	p, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("failed to write image %s: %w", ref, err)
	}
	return nil
}

// Get reads the file of ref.
func (s *FolderStore) Get(ref rastercache.ResourceRef) ([]byte, error) {
	p, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", ref, err)
	}
	return data, nil
}

// Exists checks if the file of ref exists.
func (s *FolderStore) Exists(ref rastercache.ResourceRef) bool {
	p, err := s.Path(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// MemoryStore keeps images in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[rastercache.ResourceRef][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[rastercache.ResourceRef][]byte)}
}

func (s *MemoryStore) Put(ref rastercache.ResourceRef, data []byte) error {
	if ref == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[ref] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Get(ref rastercache.ResourceRef) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.images[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Exists(ref rastercache.ResourceRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.images[ref]
	return ok
}
