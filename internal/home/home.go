package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the nesach home directory.
	DefaultDirName = ".nesach"

	// DataDirName is the subdirectory for session data and scans.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the nesach home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.nesach).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create data directory (this also creates the parent)
	if err := os.MkdirAll(d.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// PageImagesDir returns the directory for rendered page images of a session.
func (d *Dir) PageImagesDir(sessionID string) string {
	return filepath.Join(d.path, "page_images", sessionID)
}

// PageImagePath returns the path to a specific rendered page image.
// Page numbers are 1-indexed.
func (d *Dir) PageImagePath(sessionID string, pageNum int) string {
	return filepath.Join(d.PageImagesDir(sessionID), fmt.Sprintf("page_%04d.png", pageNum))
}

// PageImagePaths returns paths for all pages of a session's document.
func (d *Dir) PageImagePaths(sessionID string, pageCount int) []string {
	paths := make([]string, pageCount)
	for i := 1; i <= pageCount; i++ {
		paths[i-1] = d.PageImagePath(sessionID, i)
	}
	return paths
}

// EnsurePageImagesDir creates the page images directory for a session.
func (d *Dir) EnsurePageImagesDir(sessionID string) error {
	return os.MkdirAll(d.PageImagesDir(sessionID), 0o755)
}

// OriginalsDir returns the directory for the original uploaded documents
// of a session.
func (d *Dir) OriginalsDir(sessionID string) string {
	return filepath.Join(d.PageImagesDir(sessionID), "originals")
}

// OriginalPath returns the path to a session's uploaded document.
func (d *Dir) OriginalPath(sessionID, filename string) string {
	return filepath.Join(d.OriginalsDir(sessionID), filepath.Base(filename))
}

// EnsureOriginalsDir creates the originals directory for a session's documents.
func (d *Dir) EnsureOriginalsDir(sessionID string) error {
	return os.MkdirAll(d.OriginalsDir(sessionID), 0o755)
}

// ExportsDir returns the directory for exported files (Excel workbooks, etc.).
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, "exports")
}

// EnsureExportsDir creates the exports directory.
func (d *Dir) EnsureExportsDir() error {
	return os.MkdirAll(d.ExportsDir(), 0o755)
}
