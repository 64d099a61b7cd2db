// Package fileutil copies files with optional integrity verification. The
// daemon uses it to promote staged extraction artifacts into the served
// output directory.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// CopyFile copies src to dst with 0o644 permissions.
func CopyFile(src, dst string) error {
	return CopyFileMode(src, dst, 0o644)
}

// CopyFileMode copies src to dst, creating or truncating dst with the given
// mode.
func CopyFileMode(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// CopyFileVerified copies src to dst and confirms the copy matches the source
// by size and SHA256 digest. On any mismatch dst is removed and an error
// returned, so a half-written artifact is never left behind for serving.
func CopyFileVerified(src, dst string) error {
	wantSum, wantSize, err := hashFile(src)
	if err != nil {
		return fmt.Errorf("hash source: %w", err)
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	gotSum, gotSize, err := hashFile(dst)
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("hash copy: %w", err)
	}
	if gotSize != wantSize {
		_ = os.Remove(dst)
		return fmt.Errorf("artifact copy truncated: %d of %d bytes", gotSize, wantSize)
	}
	if !bytes.Equal(gotSum, wantSum) {
		_ = os.Remove(dst)
		return errors.New("artifact copy digest mismatch")
	}
	return nil
}

func hashFile(path string) (sum []byte, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, 0, err
	}
	return h.Sum(nil), n, nil
}
