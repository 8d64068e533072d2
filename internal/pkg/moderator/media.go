package moderator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrStaging is returned when an upload cannot be written to local storage.
	ErrStaging = errors.New("moderator: staging failed")
	// ErrDecode is returned when media cannot be opened or decoded.
	ErrDecode = errors.New("moderator: decode failed")
	// ErrDetectorUnavailable is returned when the detector cannot be invoked.
	ErrDetectorUnavailable = errors.New("moderator: detector unavailable")
)

// MediaItem is an uploaded blob under moderation. Content must support rewind
// so the same stream can be validated, hashed and staged.
type MediaItem struct {
	Filename    string
	Size        int64
	ContentType string
	Content     io.ReadSeeker
}

// Ext returns the lower-cased file extension including the dot.
func (m *MediaItem) Ext() string {
	return strings.ToLower(filepath.Ext(m.Filename))
}

// Rewind seeks the content back to the start.
func (m *MediaItem) Rewind() error {
	if m.Content == nil {
		return fmt.Errorf("%w: no content", ErrStaging)
	}
	_, err := m.Content.Seek(0, io.SeekStart)
	return err
}

// ByteSize returns the declared size, or measures the stream when the size
// was not declared.
func (m *MediaItem) ByteSize() (int64, error) {
	if m.Size > 0 {
		return m.Size, nil
	}
	if m.Content == nil {
		return 0, nil
	}
	n, err := m.Content.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if err := m.Rewind(); err != nil {
		return 0, err
	}
	return n, nil
}

// StagedFile is a temporary copy of a MediaItem owned by one pipeline call.
type StagedFile struct {
	Path string
	Item *MediaItem
}

// Release deletes the staged file. It is safe to call more than once.
func (f *StagedFile) Release() error {
	if f == nil || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Stager materializes uploads as uniquely named files under a temp directory.
type Stager struct {
	dir string
}

// NewStager creates a Stager writing under dir (os.TempDir when empty).
func NewStager(dir string) *Stager {
	return &Stager{dir: dir}
}

// Stage copies the full content of item into a new temp file. The item's
// extension is preserved, falling back to defaultExt.
func (s *Stager) Stage(item *MediaItem, defaultExt string) (*StagedFile, error) {
	if err := item.Rewind(); err != nil {
		return nil, fmt.Errorf("%w: rewind: %v", ErrStaging, err)
	}
	defer item.Rewind()

	ext := item.Ext()
	if ext == "" {
		ext = defaultExt
	}
	f, err := os.CreateTemp(s.dir, "postguard-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %v", ErrStaging, err)
	}
	staged := &StagedFile{Path: f.Name(), Item: item}

	n, err := io.Copy(f, item.Content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		staged.Release()
		return nil, fmt.Errorf("%w: write temp file: %v", ErrStaging, err)
	}
	if n == 0 {
		staged.Release()
		return nil, fmt.Errorf("%w: empty upload", ErrStaging)
	}
	return staged, nil
}
