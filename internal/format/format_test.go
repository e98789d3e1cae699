package format

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildPEHeader returns a minimal buffer that passes PE detection: MZ magic
// plus a PE\0\0 signature at the offset stored at 0x3C.
func buildPEHeader(lfanew uint32) []byte {
	data := make([]byte, lfanew+4)
	data[0] = 'M'
	data[1] = 'Z'
	binary.LittleEndian.PutUint32(data[0x3C:], lfanew)
	copy(data[lfanew:], []byte{'P', 'E', 0, 0})
	return data
}

func TestDetectBytes(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{
			name: "valid PE",
			data: buildPEHeader(0x80),
			want: PE,
		},
		{
			name: "MZ without PE signature",
			data: append([]byte{'M', 'Z'}, make([]byte, 0x100)...),
			want: Unknown,
		},
		{
			name: "MZ with lfanew past buffer",
			data: buildPEHeader(0x80)[:0x60],
			want: Unknown,
		},
		{
			name: "valid ELF 64-bit LE",
			data: []byte{0x7F, 'E', 'L', 'F', 2, 1, 1, 0},
			want: ELF,
		},
		{
			name: "valid ELF 32-bit BE",
			data: []byte{0x7F, 'E', 'L', 'F', 1, 2, 1, 0},
			want: ELF,
		},
		{
			name: "ELF magic with bad class",
			data: []byte{0x7F, 'E', 'L', 'F', 9, 1, 1, 0},
			want: Unknown,
		},
		{
			name: "macho 64-bit",
			data: []byte{0xFE, 0xED, 0xFA, 0xCF},
			want: MachO,
		},
		{
			name: "macho byte-swapped",
			data: []byte{0xCF, 0xFA, 0xED, 0xFE},
			want: MachO,
		},
		{
			name: "random bytes",
			data: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02},
			want: Unknown,
		},
		{
			name: "too short",
			data: []byte{0x7F, 'E'},
			want: Unknown,
		},
		{
			name: "empty",
			data: nil,
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectBytes(tt.data); got != tt.want {
				t.Errorf("DetectBytes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectFile(t *testing.T) {
	dir := t.TempDir()

	pePath := filepath.Join(dir, "sample.exe")
	if err := os.WriteFile(pePath, buildPEHeader(0x100), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Detect(pePath)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if got != PE {
		t.Errorf("Detect() = %v, want %v", got, PE)
	}
}

func TestDetectMissingFile(t *testing.T) {
	_, err := Detect(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatal("Detect() on missing file should return an error")
	}
}

func TestDetectShortFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiny")
	if err := os.WriteFile(path, []byte{'M'}, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Detect(path)
	if err != nil {
		t.Fatalf("Detect() error = %v, want nil for short file", err)
	}
	if got != Unknown {
		t.Errorf("Detect() = %v, want %v", got, Unknown)
	}
}
