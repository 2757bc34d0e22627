package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scholia-dev/scholia/internal/ignore"
)

// Scanner discovers indexable knowledge files in a corpus directory.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Scan walks the corpus directory and returns all eligible files,
// sorted by relative path. Hidden directories (including the storage
// directory) are skipped entirely, and a .scholiaignore file at the
// root excludes further paths.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) ([]*FileInfo, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root is not a directory: %s", absRoot)
	}

	matcher, err := ignore.Load(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", ignore.File, err)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	var files []*FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we can't access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if relPath == "." {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || matcher.Match(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinked files are not followed
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if !IsEligible(d.Name()) {
			return nil
		}
		if matcher.Match(relPath, false) {
			return nil
		}
		for _, name := range opts.ExtraIgnoreNames {
			if strings.EqualFold(d.Name(), name) {
				return nil
			}
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.Size() > maxFileSize {
			return nil
		}

		files = append(files, &FileInfo{
			Path:    filepath.ToSlash(relPath),
			AbsPath: path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
