package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// CopyBufferSize is the fixed buffer used for streamed appends.
const CopyBufferSize = 8 * 1024

var ErrTooLarge = errors.New("stream exceeds size limit")

// HashFile returns the hex sha256 digest and byte length of path.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// AppendLimited appends r to path with a fixed buffer, syncing before
// returning. The write is rolled back if r yields more than limit bytes or
// fails mid-stream, so a failed append never leaves a partial part behind.
func AppendLimited(path string, r io.Reader, limit int64) (int64, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	start := info.Size()

	buf := make([]byte, CopyBufferSize)
	written, err := io.CopyBuffer(out, io.LimitReader(r, limit+1), buf)
	if err == nil && written > limit {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if err == nil {
		err = out.Sync()
	}
	if err != nil {
		if truncErr := out.Truncate(start); truncErr != nil {
			return 0, errors.Join(err, truncErr)
		}
		return 0, err
	}
	return written, out.Close()
}

// Size returns the byte length of path, or 0 when it does not exist.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// RemoveIfExists removes path and ignores a missing file.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
