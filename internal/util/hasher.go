package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// HashFileSHA256 streams a file through SHA-256.
func HashFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return HashReaderSHA256(f)
}

// HashReaderSHA256 uses a 1 MiB buffer to keep syscalls down on large snapshots.
func HashReaderSHA256(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, 1<<20)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFileSHA256 reports whether the file hashes to want (case-insensitive)
// and returns the actual digest.
func VerifyFileSHA256(path, want string) (bool, string, error) {
	got, err := HashFileSHA256(path)
	if err != nil {
		return false, "", err
	}
	return strings.EqualFold(got, strings.TrimSpace(want)), got, nil
}
