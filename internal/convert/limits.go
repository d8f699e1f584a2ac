// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrOutputTooLarge is returned when generated IR exceeds the byte limit.
	ErrOutputTooLarge = errors.New("generated IR file exceeds the size limit")

	// ErrOutputTooLong is returned when generated IR exceeds the line limit.
	ErrOutputTooLong = errors.New("generated IR file exceeds the length limit")
)

// CheckLimits verifies that the IR file at path has at most maxBytes bytes
// and maxLines lines. A zero limit is not enforced.
func CheckLimits(path string, maxBytes int64, maxLines int) error {
	if maxBytes <= 0 && maxLines <= 0 {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking IR size: %w", err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrOutputTooLarge, info.Size(), maxBytes)
	}
	if maxLines <= 0 {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("checking IR length: %w", err)
	}
	defer f.Close()

	lines, err := countLines(f)
	if err != nil {
		return fmt.Errorf("checking IR length: %w", err)
	}
	if lines > maxLines {
		return fmt.Errorf("%w: %d lines (limit %d)", ErrOutputTooLong, lines, maxLines)
	}
	return nil
}

// countLines counts newline-terminated lines, plus a final unterminated one.
func countLines(r io.Reader) (int, error) {
	buf := make([]byte, 32*1024)
	count := 0
	var last byte = '\n'
	for {
		n, err := r.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}
