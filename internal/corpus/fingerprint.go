package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FingerprintFile is the basename of the persisted fingerprint map.
const FingerprintFile = "file_hashes.json"

// Fingerprint maps corpus-relative paths to hex SHA-256 digests of
// their content. Two fingerprints compare equal only when they cover
// the same files with the same content.
type Fingerprint map[string]string

// ComputeFingerprint hashes every scanned file. Files that disappear
// between scan and hash are skipped rather than failing the whole
// computation.
func ComputeFingerprint(ctx context.Context, files []*FileInfo) (Fingerprint, error) {
	fp := make(Fingerprint, len(files))
	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		digest, err := HashFile(f.AbsPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to hash %s: %w", f.Path, err)
		}
		fp[f.Path] = digest
	}
	return fp, nil
}

// HashFile returns the hex SHA-256 digest of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal reports whether two fingerprints cover the same files with
// identical digests.
func (fp Fingerprint) Equal(other Fingerprint) bool {
	if len(fp) != len(other) {
		return false
	}
	for path, digest := range fp {
		if other[path] != digest {
			return false
		}
	}
	return true
}

// LoadFingerprint reads a persisted fingerprint map.
func LoadFingerprint(path string) (Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fp Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("failed to parse fingerprint file: %w", err)
	}
	if fp == nil {
		fp = Fingerprint{}
	}
	return fp, nil
}

// Save persists the fingerprint map atomically (temp file + rename).
func (fp Fingerprint) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write fingerprint file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename fingerprint file: %w", err)
	}
	return nil
}

// NeedsRebuild reports whether the persisted fingerprint at path is
// missing, unreadable, or different from the current corpus state. Any
// doubt resolves to a rebuild.
func NeedsRebuild(path string, current Fingerprint) bool {
	stored, err := LoadFingerprint(path)
	if err != nil {
		return true
	}
	return !stored.Equal(current)
}
