package finishes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ComputeSHA256 returns the hex SHA-256 digest of a file's content.
// The digest is a pure function of the file bytes and is what the lineage
// ledger records per source file.
func ComputeSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeFileHashes hashes several files, keyed by base filename.
func ComputeFileHashes(paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		digest, err := ComputeSHA256(p)
		if err != nil {
			return nil, err
		}
		out[filepath.Base(p)] = digest
	}
	return out, nil
}

// VerifyFileUnchanged reports whether a file still matches a recorded digest.
func VerifyFileUnchanged(path string, expected string) (bool, error) {
	if len(expected) != 64 {
		return false, fmt.Errorf("expected digest must be 64 hex characters, got %q", expected)
	}
	if _, err := hex.DecodeString(expected); err != nil {
		return false, fmt.Errorf("expected digest must be hexadecimal: %q", expected)
	}
	actual, err := ComputeSHA256(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
