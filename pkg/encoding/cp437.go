// Package encoding provides text encoding utilities for Daggerfall data files.
package encoding

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// CP437ToUTF8 converts Code Page 437 bytes to a UTF-8 string.
// Returns the original bytes as a string if conversion fails.
func CP437ToUTF8(data []byte) string {
	result, _, err := transform.Bytes(charmap.CodePage437.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// UTF8ToCP437 converts a UTF-8 string to Code Page 437 bytes.
// Runes without a CP437 mapping become '?'.
func UTF8ToCP437(s string) []byte {
	var out bytes.Buffer
	for _, r := range s {
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out.WriteByte(b)
	}
	return out.Bytes()
}

// FixedStringToUTF8 converts a fixed-size CP437 field to UTF-8, stopping at
// the first NUL.
func FixedStringToUTF8(data []byte) string {
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		data = data[:idx]
	}
	return CP437ToUTF8(data)
}

// UTF8ToFixedString encodes s into a NUL-padded CP437 field of the given size.
func UTF8ToFixedString(s string, size int) []byte {
	result := make([]byte, size)
	copy(result, UTF8ToCP437(s))
	return result
}

// NormalizePath normalizes an archive or data path for case-insensitive lookup.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.ToUpper(path)
}

// TrimNullString removes trailing NUL bytes and converts to string.
func TrimNullString(data []byte) string {
	return string(bytes.TrimRight(data, "\x00"))
}
