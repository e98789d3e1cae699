package apicall

import (
	"testing"

	"binlift/internal/disasm"
)

func callTo(op disasm.Operand) disasm.Function {
	return disasm.Function{
		Name:  "func_1000",
		Start: 0x1000,
		Insts: []disasm.Inst{
			{VA: 0x1000, Mnemonic: "call", Operands: []disasm.Operand{op}, Len: 5},
		},
	}
}

func TestAnalyzeSymbolicCall(t *testing.T) {
	funcs := []disasm.Function{
		callTo(disasm.Operand{Kind: disasm.OpSymbol, Sym: "CreateFileA"}),
	}

	calls := Analyze(funcs, nil)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}

	got := calls[0]
	if got.Name != "CreateFileA" {
		t.Errorf("name = %q, want CreateFileA", got.Name)
	}
	if got.Type != CallDirect {
		t.Errorf("type = %q, want direct", got.Type)
	}
	if got.Category != CategoryFileIO {
		t.Errorf("category = %q, want file-io", got.Category)
	}
	if got.VA != 0x1000 {
		t.Errorf("VA = %#x, want 0x1000", got.VA)
	}
}

func TestAnalyzeImportResolution(t *testing.T) {
	funcs := []disasm.Function{
		callTo(disasm.Operand{Kind: disasm.OpImmediate, Imm: 0x7000}),
	}
	imports := map[uint64]string{0x7000: "socket"}

	calls := Analyze(funcs, imports)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "socket" || calls[0].Type != CallDirect || calls[0].Category != CategoryNetwork {
		t.Errorf("unexpected call %+v", calls[0])
	}
}

func TestAnalyzeThunkCallResolution(t *testing.T) {
	// call dword ptr [0x405000], the shape every PE import call takes.
	// The decoded slot address must be looked up in the import table.
	insts := disasm.Sweep([]byte{0xFF, 0x15, 0x00, 0x50, 0x40, 0x00}, 0x1000, 32)
	funcs := []disasm.Function{{Name: "func_1000", Start: 0x1000, Insts: insts}}
	imports := map[uint64]string{0x405000: "CreateFileA"}

	calls := Analyze(funcs, imports)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	got := calls[0]
	if got.Name != "CreateFileA" || got.Type != CallDirect || got.Category != CategoryFileIO {
		t.Errorf("unexpected call %+v", got)
	}

	// The same call against an empty import table stays indirect.
	unresolved := Analyze(funcs, nil)
	if len(unresolved) != 1 || unresolved[0].Type != CallIndirect || unresolved[0].Name != "" {
		t.Errorf("unexpected unresolved call %+v", unresolved[0])
	}
}

func TestAnalyzeIndirectCall(t *testing.T) {
	funcs := []disasm.Function{
		callTo(disasm.Operand{Kind: disasm.OpRegister, Reg: "eax"}),
	}

	calls := Analyze(funcs, nil)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Type != CallIndirect {
		t.Errorf("type = %q, want indirect", calls[0].Type)
	}
	if calls[0].Name != "" {
		t.Errorf("name = %q, want empty for unresolved target", calls[0].Name)
	}
}

func TestAnalyzeSkipsNonCalls(t *testing.T) {
	funcs := []disasm.Function{{
		Name:  "func_2000",
		Start: 0x2000,
		Insts: []disasm.Inst{
			{VA: 0x2000, Mnemonic: "push", Len: 1},
			{VA: 0x2001, Mnemonic: "mov", Len: 2},
			{VA: 0x2003, Mnemonic: "ret", Len: 1},
		},
	}}

	if calls := Analyze(funcs, nil); len(calls) != 0 {
		t.Errorf("got %d calls from call-free function, want 0", len(calls))
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		want Category
	}{
		{"CreateFileA", CategoryFileIO},
		{"WSAStartup", CategoryNetwork},
		{"CreateProcessA", CategoryProcess},
		{"RegOpenKeyExA", CategoryRegistry},
		{"VirtualAlloc", CategoryMemory},
		{"malloc", CategoryMemory},
		{"read", CategoryFileIO},
		{"SomeVendorThing", CategoryUnknown},
		{"", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.name); got != tt.want {
				t.Errorf("Categorize(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
