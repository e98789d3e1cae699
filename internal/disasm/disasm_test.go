package disasm

import (
	"reflect"
	"testing"
)

// prologueEpilogue is push ebp; mov ebp, esp; sub esp, 0x10; leave; ret.
var prologueEpilogue = []byte{0x55, 0x89, 0xE5, 0x83, 0xEC, 0x10, 0xC9, 0xC3}

func mnemonics(insts []Inst) []string {
	out := make([]string, len(insts))
	for i, in := range insts {
		out[i] = in.Mnemonic
	}
	return out
}

func TestSweepBaseline(t *testing.T) {
	insts := Sweep(prologueEpilogue, 0x1000, 32)

	want := []string{"push", "mov", "sub", "leave", "ret"}
	if got := mnemonics(insts); !reflect.DeepEqual(got, want) {
		t.Fatalf("mnemonics = %v, want %v", got, want)
	}

	wantVAs := []uint64{0x1000, 0x1001, 0x1003, 0x1006, 0x1007}
	for i, in := range insts {
		if in.VA != wantVAs[i] {
			t.Errorf("inst %d VA = %#x, want %#x", i, in.VA, wantVAs[i])
		}
	}
}

func TestSweepCursorAdvancesByLength(t *testing.T) {
	insts := Sweep(prologueEpilogue, 0, 32)

	total := 0
	for _, in := range insts {
		if in.Len <= 0 {
			t.Fatalf("instruction %q has non-positive length %d", in.Mnemonic, in.Len)
		}
		total += in.Len
	}
	if total != len(prologueEpilogue) {
		t.Errorf("lengths sum to %d, want %d", total, len(prologueEpilogue))
	}
}

func TestSweepUnknownBytes(t *testing.T) {
	// FF /7 is an undefined encoding; the sweep must degrade to 1-byte
	// unknown instructions instead of aborting.
	code := []byte{0xFF, 0xFF, 0x90}
	insts := Sweep(code, 0x2000, 32)

	if len(insts) != 3 {
		t.Fatalf("got %d instructions, want 3: %v", len(insts), mnemonics(insts))
	}
	for i := 0; i < 2; i++ {
		if insts[i].Mnemonic != UnknownMnemonic || insts[i].Len != 1 {
			t.Errorf("inst %d = %q len %d, want %q len 1", i, insts[i].Mnemonic, insts[i].Len, UnknownMnemonic)
		}
	}
	if insts[2].Mnemonic != "nop" {
		t.Errorf("inst 2 = %q, want nop", insts[2].Mnemonic)
	}
}

func TestSweepEmpty(t *testing.T) {
	if insts := Sweep(nil, 0x1000, 32); len(insts) != 0 {
		t.Errorf("Sweep(nil) = %v, want empty", insts)
	}
}

func TestRelativeTargetsResolveAbsolute(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want uint64
	}{
		{
			name: "call rel32",
			code: []byte{0xE8, 0x0B, 0x00, 0x00, 0x00},
			want: 0x1010,
		},
		{
			name: "jmp rel8",
			code: []byte{0xEB, 0x04},
			want: 0x1006,
		},
		{
			name: "jne rel8",
			code: []byte{0x75, 0x02},
			want: 0x1004,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insts := Sweep(tt.code, 0x1000, 32)
			if len(insts) != 1 {
				t.Fatalf("got %d instructions, want 1", len(insts))
			}
			target, ok := insts[0].Target()
			if !ok {
				t.Fatalf("Target() not resolved for %s", insts[0].Text())
			}
			if target != tt.want {
				t.Errorf("target = %#x, want %#x", target, tt.want)
			}
		})
	}
}

func TestIndirectCallHasNoTarget(t *testing.T) {
	// call eax
	insts := Sweep([]byte{0xFF, 0xD0}, 0x1000, 32)
	if len(insts) != 1 || !insts[0].IsCall() {
		t.Fatalf("expected a single call, got %v", mnemonics(insts))
	}
	if _, ok := insts[0].Target(); ok {
		t.Error("register-indirect call should not resolve a target")
	}
}

func TestMemoryCallTargetAddresses(t *testing.T) {
	// Import thunk calls are memory-indirect through a statically known
	// slot: an absolute displacement in 32-bit code, a RIP-relative one
	// in 64-bit code. Both must surface the slot address.
	tests := []struct {
		name string
		code []byte
		mode int
		want uint64
	}{
		{"absolute slot", []byte{0xFF, 0x15, 0x00, 0x50, 0x40, 0x00}, 32, 0x405000},
		{"rip-relative slot", []byte{0xFF, 0x15, 0x00, 0x02, 0x00, 0x00}, 64, 0x1206},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insts := Sweep(tt.code, 0x1000, tt.mode)
			if len(insts) != 1 || !insts[0].IsCall() {
				t.Fatalf("expected a single call, got %v", mnemonics(insts))
			}
			op := insts[0].Operands[0]
			if op.Kind != OpMemory {
				t.Fatalf("operand kind = %v, want memory", op.Kind)
			}
			if !op.AddrOK || op.Addr != tt.want {
				t.Errorf("slot address = %#x (ok=%v), want %#x", op.Addr, op.AddrOK, tt.want)
			}
		})
	}
}

func TestRegisterBasedMemoryStaysUnresolved(t *testing.T) {
	// call [eax]: the slot depends on runtime state.
	insts := Sweep([]byte{0xFF, 0x10}, 0x1000, 32)
	if len(insts) != 1 || !insts[0].IsCall() {
		t.Fatalf("expected a single call, got %v", mnemonics(insts))
	}
	if op := insts[0].Operands[0]; op.AddrOK {
		t.Errorf("register-based memory operand resolved to %#x", op.Addr)
	}
}

func TestInstPredicates(t *testing.T) {
	tests := []struct {
		mnemonic string
		jump     bool
		cond     bool
	}{
		{"jmp", true, false},
		{"jne", true, true},
		{"je", true, true},
		{"call", false, false},
		{"ret", false, false},
		{"mov", false, false},
	}

	for _, tt := range tests {
		in := Inst{Mnemonic: tt.mnemonic}
		if in.IsJump() != tt.jump {
			t.Errorf("%s: IsJump() = %v, want %v", tt.mnemonic, in.IsJump(), tt.jump)
		}
		if in.IsCondJump() != tt.cond {
			t.Errorf("%s: IsCondJump() = %v, want %v", tt.mnemonic, in.IsCondJump(), tt.cond)
		}
	}
}
