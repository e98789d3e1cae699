// Package image extracts section, symbol, and import metadata from ELF
// and PE containers. It supplies the disassembler with base addresses and
// code bytes, and the API analyzer with address-to-name tables.
package image

import (
	"debug/elf"
	"debug/pe"
	"fmt"
	"io"
	"strings"

	"github.com/ianlancetaylor/demangle"

	"binlift/internal/format"
)

// Image is the format-level view of one binary. Code holds the executable
// section bytes; CodeVA is its virtual address. Imports maps thunk/IAT
// addresses to external names, Symbols maps function addresses to local
// names. All maps are non-nil.
type Image struct {
	Arch      string
	Mode      int // processor mode in bits: 32 or 64
	Code      []byte
	CodeVA    uint64
	Imports   map[uint64]string
	Symbols   map[uint64]string
	Libraries []string
}

// Load parses the container at path according to the detected format.
// Mach-O and unknown containers are not modeled; callers degrade to
// whole-file analysis when an error is returned.
func Load(path string, f format.Format) (*Image, error) {
	switch f {
	case format.ELF:
		return loadELF(path)
	case format.PE:
		return loadPE(path)
	}
	return nil, fmt.Errorf("no structural loader for format %s", f)
}

// cleanName demangles C++ symbol names and strips version suffixes like
// strlen@GLIBC_2.2.5.
func cleanName(name string) string {
	if i := strings.Index(name, "@"); i > 0 {
		name = name[:i]
	}
	return demangle.Filter(name)
}

func loadELF(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}
	defer f.Close()

	im := &Image{
		Imports: map[uint64]string{},
		Symbols: map[uint64]string{},
	}

	switch f.Machine {
	case elf.EM_386:
		im.Arch, im.Mode = "x86", 32
	case elf.EM_X86_64:
		im.Arch, im.Mode = "x86_64", 64
	default:
		im.Arch, im.Mode = strings.ToLower(strings.TrimPrefix(f.Machine.String(), "EM_")), 64
	}

	if text := f.Section(".text"); text != nil {
		data, err := text.Data()
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read .text: %w", err)
		}
		im.Code = data
		im.CodeVA = text.Addr
	} else {
		// Stripped section tables: fall back to the first executable
		// PT_LOAD segment, the way a loader would.
		for _, p := range f.Progs {
			if p.Type == elf.PT_LOAD && p.Flags&elf.PF_X != 0 {
				data := make([]byte, p.Filesz)
				if _, err := p.ReadAt(data, 0); err != nil && err != io.EOF {
					continue
				}
				im.Code = data
				im.CodeVA = p.Vaddr
				break
			}
		}
	}

	// Static symbols name local functions; defined dynamic symbols cover
	// direct calls into exported code.
	if syms, err := f.Symbols(); err == nil {
		for _, s := range syms {
			if elf.ST_TYPE(s.Info) == elf.STT_FUNC && s.Value != 0 && s.Name != "" {
				im.Symbols[s.Value] = cleanName(s.Name)
			}
		}
	}
	if dyns, err := f.DynamicSymbols(); err == nil {
		for _, s := range dyns {
			if s.Name == "" || s.Value == 0 {
				continue
			}
			im.Imports[s.Value] = cleanName(s.Name)
		}
	}
	mapPLTImports(f, im)
	if libs, err := f.ImportedLibraries(); err == nil {
		im.Libraries = libs
	}

	return im, nil
}

// mapPLTImports walks the PLT relocation section and names the addresses
// an imported function is actually called through. Undefined dynamic
// symbols carry no address of their own, so each .rela.plt (or .rel.plt)
// entry hands out two: the GOT slot it patches, for jmp/call through the
// slot, and the corresponding 16-byte PLT stub. Malformed tables yield
// fewer imports, never a failure.
func mapPLTImports(f *elf.File, im *Image) {
	rela := true
	sec := f.Section(".rela.plt")
	if sec == nil {
		rela = false
		if sec = f.Section(".rel.plt"); sec == nil {
			return
		}
	}
	data, err := sec.Data()
	if err != nil {
		return
	}
	dyns, err := f.DynamicSymbols()
	if err != nil {
		return
	}

	// Entry layout depends on class: Elf64 packs the symbol index in the
	// upper 32 bits of r_info, Elf32 in the upper 24.
	var entrySize int
	switch {
	case f.Class == elf.ELFCLASS64 && rela:
		entrySize = 24
	case f.Class == elf.ELFCLASS64:
		entrySize = 16
	case rela:
		entrySize = 12
	default:
		entrySize = 8
	}

	var pltBase uint64
	if plt := f.Section(".plt"); plt != nil {
		pltBase = plt.Addr
	}

	for i := 0; (i+1)*entrySize <= len(data); i++ {
		entry := data[i*entrySize:]

		var slot uint64
		var symIndex int
		if f.Class == elf.ELFCLASS64 {
			slot = f.ByteOrder.Uint64(entry)
			symIndex = int(f.ByteOrder.Uint64(entry[8:]) >> 32)
		} else {
			slot = uint64(f.ByteOrder.Uint32(entry))
			symIndex = int(f.ByteOrder.Uint32(entry[4:]) >> 8)
		}

		// Relocation symbol indexes are 1-based; DynamicSymbols drops the
		// leading null symbol.
		if symIndex <= 0 || symIndex > len(dyns) {
			continue
		}
		name := dyns[symIndex-1].Name
		if name == "" {
			continue
		}
		name = cleanName(name)

		im.Imports[slot] = name
		if pltBase != 0 {
			// Stub i lives one reserved entry past the PLT header.
			im.Imports[pltBase+uint64(16*(i+1))] = name
		}
	}
}

func loadPE(path string) (*Image, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pe: %w", err)
	}
	defer f.Close()

	im := &Image{
		Imports: map[uint64]string{},
		Symbols: map[uint64]string{},
	}

	var imageBase uint64
	var importDir pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(oh.ImageBase)
		if len(oh.DataDirectory) > pe.IMAGE_DIRECTORY_ENTRY_IMPORT {
			importDir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_IMPORT]
		}
	case *pe.OptionalHeader64:
		imageBase = oh.ImageBase
		if len(oh.DataDirectory) > pe.IMAGE_DIRECTORY_ENTRY_IMPORT {
			importDir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_IMPORT]
		}
	}

	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		im.Arch, im.Mode = "x86", 32
	case pe.IMAGE_FILE_MACHINE_AMD64:
		im.Arch, im.Mode = "x86_64", 64
	default:
		im.Arch, im.Mode = fmt.Sprintf("machine_%#x", f.Machine), 32
	}

	if text := f.Section(".text"); text != nil {
		data, err := text.Data()
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read .text: %w", err)
		}
		im.Code = data
		im.CodeVA = imageBase + uint64(text.VirtualAddress)
	}

	for _, s := range f.Symbols {
		if s.Value != 0 && s.Name != "" {
			im.Symbols[imageBase+uint64(s.Value)] = cleanName(s.Name)
		}
	}

	parseImports(f, im, imageBase, importDir)
	return im, nil
}

// parseImports walks the PE import directory and maps each IAT slot's
// virtual address to the imported name, so `call [iat]` sites resolve.
// Any malformed table silently yields fewer imports, never a failure.
func parseImports(f *pe.File, im *Image, imageBase uint64, dir pe.DataDirectory) {
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return
	}
	data, base, ok := sectionDataAt(f, dir.VirtualAddress)
	if !ok {
		return
	}

	is64 := im.Mode == 64
	off := int(dir.VirtualAddress - base)

	// 20-byte import descriptors, terminated by an all-zero entry.
	for ; off+20 <= len(data); off += 20 {
		origThunk := read32(data, off)
		nameRVA := read32(data, off+12)
		firstThunk := read32(data, off+16)
		if origThunk == 0 && nameRVA == 0 && firstThunk == 0 {
			break
		}
		if lib, ok := readCString(f, nameRVA); ok {
			im.Libraries = append(im.Libraries, strings.ToLower(lib))
		}

		lookup := origThunk
		if lookup == 0 {
			lookup = firstThunk
		}
		walkThunks(f, im, imageBase, lookup, firstThunk, is64)
	}
}

func walkThunks(f *pe.File, im *Image, imageBase uint64, lookupRVA, iatRVA uint32, is64 bool) {
	data, base, ok := sectionDataAt(f, lookupRVA)
	if !ok {
		return
	}

	entrySize := uint32(4)
	if is64 {
		entrySize = 8
	}

	for i := uint32(0); ; i++ {
		off := int(lookupRVA - base + i*entrySize)
		if off+int(entrySize) > len(data) {
			return
		}

		var entry uint64
		if is64 {
			entry = read64(data, off)
		} else {
			entry = uint64(read32(data, off))
		}
		if entry == 0 {
			return
		}

		// High bit set means import-by-ordinal; those have no name.
		ordinal := (is64 && entry&(1<<63) != 0) || (!is64 && entry&(1<<31) != 0)
		if ordinal {
			continue
		}

		// Hint/name entry: 2-byte hint then the NUL-terminated name.
		if name, ok := readCString(f, uint32(entry)+2); ok && name != "" {
			im.Imports[imageBase+uint64(iatRVA+i*entrySize)] = name
		}
	}
}

// sectionDataAt returns the raw data of the section containing the RVA,
// with the section's base RVA.
func sectionDataAt(f *pe.File, rva uint32) ([]byte, uint32, bool) {
	for _, s := range f.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.VirtualSize {
			data, err := s.Data()
			if err != nil && err != io.EOF {
				return nil, 0, false
			}
			return data, s.VirtualAddress, true
		}
	}
	return nil, 0, false
}

func readCString(f *pe.File, rva uint32) (string, bool) {
	data, base, ok := sectionDataAt(f, rva)
	if !ok {
		return "", false
	}
	off := int(rva - base)
	for end := off; end < len(data); end++ {
		if data[end] == 0 {
			return string(data[off:end]), true
		}
	}
	return "", false
}

func read32(data []byte, off int) uint32 {
	if off+4 > len(data) {
		return 0
	}
	return uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
}

func read64(data []byte, off int) uint64 {
	if off+8 > len(data) {
		return 0
	}
	return uint64(read32(data, off)) | uint64(read32(data, off+4))<<32
}
