package disasm

import (
	"bytes"
	"testing"
)

func TestFunctionsTwoConcatenated(t *testing.T) {
	code := bytes.Join([][]byte{prologueEpilogue, prologueEpilogue}, nil)

	funcs := Functions(code, 0x1000, 32)
	if len(funcs) != 2 {
		t.Fatalf("got %d functions, want 2", len(funcs))
	}

	if funcs[0].Start != 0x1000 || funcs[1].Start != 0x1008 {
		t.Errorf("starts = %#x, %#x; want 0x1000, 0x1008", funcs[0].Start, funcs[1].Start)
	}
	for _, fn := range funcs {
		if len(fn.Insts) == 0 {
			t.Errorf("%s has no instructions", fn.Name)
		}
		if !fn.Insts[len(fn.Insts)-1].IsRet() {
			t.Errorf("%s does not end in ret", fn.Name)
		}
	}
	if funcs[0].Name != "func_1000" {
		t.Errorf("synthetic name = %q, want func_1000", funcs[0].Name)
	}
}

func TestFunctionsAddressOrder(t *testing.T) {
	code := bytes.Join([][]byte{
		{0x90, 0x90}, // padding before the first prologue
		prologueEpilogue,
		{0x90},
		prologueEpilogue,
	}, nil)

	funcs := Functions(code, 0x4000, 32)
	if len(funcs) != 2 {
		t.Fatalf("got %d functions, want 2", len(funcs))
	}
	if funcs[0].Start >= funcs[1].Start {
		t.Errorf("functions not in address order: %#x, %#x", funcs[0].Start, funcs[1].Start)
	}
}

func TestFunctionsMissingEpilogue(t *testing.T) {
	// First function never reaches leave; ret. It must be closed at the
	// next prologue instead of swallowing the second function.
	truncated := []byte{0x55, 0x89, 0xE5, 0x90, 0x90}
	code := bytes.Join([][]byte{truncated, prologueEpilogue}, nil)

	funcs := Functions(code, 0x1000, 32)
	if len(funcs) != 2 {
		t.Fatalf("got %d functions, want 2", len(funcs))
	}
	if funcs[0].End() != funcs[1].Start {
		t.Errorf("first function ends at %#x, next starts at %#x", funcs[0].End(), funcs[1].Start)
	}
}

func TestFunctionsNoneInRandomBytes(t *testing.T) {
	code := []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF}
	if funcs := Functions(code, 0, 32); len(funcs) != 0 {
		t.Errorf("got %d functions from junk, want 0", len(funcs))
	}
}

func TestWithSymbols(t *testing.T) {
	funcs := Functions(prologueEpilogue, 0x401000, 32)
	if len(funcs) != 1 {
		t.Fatalf("got %d functions, want 1", len(funcs))
	}

	funcs = WithSymbols(funcs, map[uint64]string{0x401000: "main"})
	if funcs[0].Name != "main" {
		t.Errorf("name = %q, want main", funcs[0].Name)
	}

	// Addresses without symbols keep the synthetic name.
	funcs = WithSymbols(funcs, map[uint64]string{0xdead: "other"})
	if funcs[0].Name != "main" {
		t.Errorf("name = %q after unrelated symbol map", funcs[0].Name)
	}
}

func TestFunctionContains(t *testing.T) {
	funcs := Functions(prologueEpilogue, 0x1000, 32)
	fn := funcs[0]

	if !fn.Contains(0x1000) || !fn.Contains(0x1007) {
		t.Error("Contains() rejects in-range addresses")
	}
	if fn.Contains(0x1008) || fn.Contains(0x0FFF) {
		t.Error("Contains() accepts out-of-range addresses")
	}
}
