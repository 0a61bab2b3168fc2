package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// DefaultMaxInputSize bounds an upload when the caller passes no limit (100MB).
const DefaultMaxInputSize int64 = 100 * 1024 * 1024

// ErrFileTooLarge is returned when an upload exceeds the configured limit.
var ErrFileTooLarge = errors.New("file too large")

// ErrEmptyFile is returned for uploads with no content at all.
var ErrEmptyFile = errors.New("empty file")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadInput reads an upload fully, enforcing limit, and returns UTF-8 text with
// the byte order mark removed and invalid sequences replaced by U+FFFD.
func ReadInput(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, limit)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("\uFFFD"))
	}
	return data, nil
}
