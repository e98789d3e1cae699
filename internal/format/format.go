// Package format classifies byte streams by executable container format.
// Detection is bounded and never fails on malformed input: anything that
// is not a recognizable PE, ELF, or Mach-O header yields Unknown.
package format

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Format is a detected binary container format.
type Format string

const (
	PE      Format = "PE"
	ELF     Format = "ELF"
	MachO   Format = "MACHO"
	Unknown Format = "UNKNOWN"
)

// headerBound is the maximum header prefix read by Detect. It is large
// enough to cover e_lfanew plus the PE signature for any sane layout.
const headerBound = 4096

// Detect classifies the file at path by container format. It returns an
// error only when the path is missing or unreadable; a short, corrupt, or
// unrecognized header yields Unknown with a nil error.
func Detect(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Unknown, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, headerBound)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return Unknown, fmt.Errorf("read %s: %w", path, err)
	}
	return DetectBytes(header[:n]), nil
}

// DetectBytes classifies an in-memory header prefix. For PE inputs the
// buffer must extend past e_lfanew to confirm the PE\0\0 signature; a
// prefix that stops short classifies as Unknown.
func DetectBytes(data []byte) Format {
	if len(data) < 4 {
		return Unknown
	}

	if data[0] == 'M' && data[1] == 'Z' {
		if hasPESignature(data) {
			return PE
		}
		return Unknown
	}

	if data[0] == 0x7F && data[1] == 'E' && data[2] == 'L' && data[3] == 'F' {
		if isValidELFIdent(data) {
			return ELF
		}
		return Unknown
	}

	if isMachOMagic(data) {
		return MachO
	}

	return Unknown
}

// hasPESignature validates the PE\0\0 marker at the file offset stored as
// a little-endian uint32 at 0x3C (e_lfanew).
func hasPESignature(data []byte) bool {
	if len(data) < 0x40 {
		return false
	}
	lfanew := binary.LittleEndian.Uint32(data[0x3C:])
	if lfanew > uint32(len(data))-4 {
		return false
	}
	sig := data[lfanew : lfanew+4]
	return sig[0] == 'P' && sig[1] == 'E' && sig[2] == 0 && sig[3] == 0
}

// isValidELFIdent checks the class, endianness, and version bytes that
// follow the ELF magic.
func isValidELFIdent(data []byte) bool {
	if len(data) < 7 {
		return false
	}
	class := data[4]   // 1 = 32-bit, 2 = 64-bit
	endian := data[5]  // 1 = little, 2 = big
	version := data[6] // must be EV_CURRENT
	return (class == 1 || class == 2) && (endian == 1 || endian == 2) && version == 1
}

func isMachOMagic(data []byte) bool {
	magic := binary.BigEndian.Uint32(data)
	switch magic {
	case 0xFEEDFACE, 0xFEEDFACF, 0xCEFAEDFE, 0xCFFAEDFE:
		return true
	}
	return false
}
