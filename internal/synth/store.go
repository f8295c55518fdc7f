package synth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the filesystem audio artifact store. References handed out are
// paths relative to the root and treated as opaque by callers. Artifacts
// are written once and never mutated.
type Store struct {
	root string
}

// NewStore creates an artifact store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact store: empty root")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// LineRef returns the reference for one line's audio artifact.
func (s *Store) LineRef(jobID string, segmentIndex, lineIndex int, format string) string {
	return filepath.Join("jobs", jobID, "segments", fmt.Sprintf("%03d", segmentIndex),
		fmt.Sprintf("line_%03d.%s", lineIndex, format))
}

// SegmentRef returns the reference for a stitched segment artifact.
func (s *Store) SegmentRef(jobID string, segmentIndex int, format string) string {
	return filepath.Join("jobs", jobID, "segments", fmt.Sprintf("%03d", segmentIndex),
		"segment."+format)
}

// EpisodeRef returns the reference for the final episode artifact.
func (s *Store) EpisodeRef(episodeID, format string) string {
	return filepath.Join("episodes", episodeID+"."+format)
}

// Write stores artifact bytes under a reference.
func (s *Store) Write(ref string, data []byte) error {
	path, err := s.Resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("artifact store: write %s: %w", ref, err)
	}
	return nil
}

// EnsureDir creates the parent directory for a reference, for artifacts
// written by external tools rather than Write.
func (s *Store) EnsureDir(ref string) (string, error) {
	path, err := s.Resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("artifact store: %w", err)
	}
	return path, nil
}

// Read loads artifact bytes by reference.
func (s *Store) Read(ref string) ([]byte, error) {
	path, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, podcastNotFound(ref)
		}
		return nil, fmt.Errorf("artifact store: read %s: %w", ref, err)
	}
	return data, nil
}

// Exists reports whether an artifact is present.
func (s *Store) Exists(ref string) bool {
	path, err := s.Resolve(ref)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// Resolve turns a reference into an absolute path, rejecting references
// that escape the store root.
func (s *Store) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("artifact store: empty ref")
	}
	cleaned := filepath.Clean(ref)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("artifact store: ref %q escapes the store", ref)
	}
	return filepath.Join(s.root, cleaned), nil
}

func podcastNotFound(ref string) error {
	return fmt.Errorf("artifact store: %s: %w", ref, os.ErrNotExist)
}
