// Package identity computes the content-addressed digests that name a job.
//
// A job id is derived from the digest of the normalized effective
// configuration plus the digest of the input bytes, so identical (config,
// input) pairs always map to the same output directory.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"pdfscribe/internal/config"
)

// HashBytes returns the hex SHA-256 digest of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashString returns the hex SHA-256 digest of s.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// JobID derives the job identifier from the config and input digests.
func JobID(configDigest, inputDigest string) string {
	return HashString(configDigest + ":" + inputDigest)
}

// HashFile digests the file at path according to the hashing mode.
//
// full_sha256 streams the whole file. fast_window hashes the first window,
// the last window (when the file is larger than one window), and the byte
// length. The windowed mode avoids reading huge files in full but is not
// collision resistant against crafted inputs sharing head, tail, and
// length; it is only meant to catch accidental duplicates.
func HashFile(path, mode string, windowBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()

	switch mode {
	case config.HashModeFull:
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("hashing %s: %w", path, err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil

	case config.HashModeFastWindow:
		w := windowBytes
		if w > size {
			w = size
		}

		h := sha256.New()
		if w > 0 {
			if _, err := io.CopyN(h, f, w); err != nil {
				return "", fmt.Errorf("hashing head of %s: %w", path, err)
			}
			if size > w {
				if _, err := f.Seek(size-w, io.SeekStart); err != nil {
					return "", fmt.Errorf("seeking tail of %s: %w", path, err)
				}
				if _, err := io.CopyN(h, f, w); err != nil {
					return "", fmt.Errorf("hashing tail of %s: %w", path, err)
				}
			}
		}

		var lenBytes [8]byte
		binary.LittleEndian.PutUint64(lenBytes[:], uint64(size))
		h.Write(lenBytes[:])
		return hex.EncodeToString(h.Sum(nil)), nil

	default:
		return "", fmt.Errorf("unknown hashing.mode: %q", mode)
	}
}
