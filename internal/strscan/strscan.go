// Package strscan recovers printable strings from raw binary data.
// It never fails on malformed input; the worst case is zero results.
package strscan

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMinLength is the minimum run length kept by the extractors.
// Shorter runs are overwhelmingly decode noise.
const DefaultMinLength = 4

// Encoding identifies how a recovered string was stored in the binary.
type Encoding string

const (
	EncodingASCII   Encoding = "ascii"
	EncodingUTF16LE Encoding = "utf16le"
	EncodingUTF16BE Encoding = "utf16be"
)

// ExtractedString is a recovered string with its location metadata.
// Offset and Length refer to the original byte stream, not the decoded
// value.
type ExtractedString struct {
	Value    string
	Offset   int64
	Length   int
	Encoding Encoding
}

// Extract returns the printable ASCII runs of data, in file-offset order.
// Runs shorter than minLen are discarded; minLen <= 0 selects
// DefaultMinLength.
func Extract(data []byte, minLen int) []string {
	ctx := ExtractWithContext(data, minLen, false)
	out := make([]string, 0, len(ctx))
	for _, s := range ctx {
		out = append(out, s.Value)
	}
	return out
}

// ExtractWithContext scans data for maximal printable runs and returns them
// with offsets and encodings. ASCII runs are always scanned; UTF-16LE and
// UTF-16BE scans are added when includeUTF16 is set. Output follows
// file-offset order within each encoding, ASCII first.
func ExtractWithContext(data []byte, minLen int, includeUTF16 bool) []ExtractedString {
	if minLen <= 0 {
		minLen = DefaultMinLength
	}

	out := extractASCII(data, minLen)
	if includeUTF16 {
		out = append(out, extractUTF16(data, minLen, EncodingUTF16LE)...)
		out = append(out, extractUTF16(data, minLen, EncodingUTF16BE)...)
	}
	return out
}

func isPrintableASCII(b byte) bool {
	return b >= 0x20 && b <= 0x7E
}

func extractASCII(data []byte, minLen int) []ExtractedString {
	var out []ExtractedString
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		if end-start >= minLen {
			out = append(out, ExtractedString{
				Value:    string(data[start:end]),
				Offset:   int64(start),
				Length:   end - start,
				Encoding: EncodingASCII,
			})
		}
		start = -1
	}

	for i, b := range data {
		if isPrintableASCII(b) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))
	return out
}

// extractUTF16 scans for printable code units stored as 2-byte pairs. Only
// the BMP printable-ASCII subset is matched; that covers the wide strings
// PE binaries actually carry. A raw byte stream guarantees no alignment,
// so the scan runs at both byte phases and merges the hits in offset
// order. A run found at one phase decodes to garbage at the other, so the
// passes do not duplicate each other.
func extractUTF16(data []byte, minLen int, enc Encoding) []ExtractedString {
	out := extractUTF16Phase(data, 0, minLen, enc)
	out = append(out, extractUTF16Phase(data, 1, minLen, enc)...)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func extractUTF16Phase(data []byte, phase, minLen int, enc Encoding) []ExtractedString {
	var out []ExtractedString
	var sb strings.Builder
	start := -1

	flush := func(end int) {
		if start >= 0 && sb.Len() >= minLen {
			out = append(out, ExtractedString{
				Value:    sb.String(),
				Offset:   int64(start),
				Length:   end - start,
				Encoding: enc,
			})
		}
		sb.Reset()
		start = -1
	}

	i := phase
	for ; i+1 < len(data); i += 2 {
		var cu uint16
		if enc == EncodingUTF16LE {
			cu = uint16(data[i]) | uint16(data[i+1])<<8
		} else {
			cu = uint16(data[i])<<8 | uint16(data[i+1])
		}

		if cu >= 0x20 && cu <= 0x7E {
			if start < 0 {
				start = i
			}
			sb.WriteRune(rune(cu))
			continue
		}
		flush(i)
	}
	flush(i)
	return out
}

// EscapeUnprintable returns a string where printable Unicode runes are
// preserved. Control and unprintable runes are escaped as \uXXXX; invalid
// UTF-8 bytes are escaped as \xXX.
func EscapeUnprintable(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteString(fmt.Sprintf("\\x%02X", b[0]))
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteString(fmt.Sprintf("\\u%04X", r))
		}
		b = b[size:]
	}
	return sb.String()
}
