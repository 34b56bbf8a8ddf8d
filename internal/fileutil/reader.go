package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

// DefaultMaxTextSize bounds how much of a text file is read for indexing and pre-caching.
const DefaultMaxTextSize int64 = 5 << 20

var (
	ErrTooLarge = errors.New("file too large")
	ErrNotText  = errors.New("file contains non-UTF8 content")
)

// ReadText reads a whole text file. Files larger than maxSize (0 selects
// DefaultMaxTextSize) and files that are not valid UTF-8 are rejected.
func ReadText(path string, maxSize int64) (string, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxTextSize
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("error stating %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxSize {
		return "", fmt.Errorf("%s: %w (%d bytes)", path, ErrTooLarge, info.Size())
	}

	content, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return "", fmt.Errorf("error reading %s: %w", path, err)
	}
	if int64(len(content)) > maxSize {
		return "", fmt.Errorf("%s: %w", path, ErrTooLarge)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%s: %w", path, ErrNotText)
	}
	return string(content), nil
}
