// Package disasm defines a common instruction representation and a
// linear-sweep decoder for a baseline x86/x86-64 instruction subset.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// OperandKind tags the variant stored in an Operand.
type OperandKind int

const (
	OpRegister OperandKind = iota
	OpImmediate
	OpMemory
	OpSymbol
)

// Operand is a tagged instruction operand. Exactly one of Reg, Imm, Mem,
// or Sym is meaningful, selected by Kind. Relative branch displacements
// are resolved to absolute addresses and stored as immediates.
//
// For memory operands whose address is statically known — an absolute
// displacement like [0x405000], or a RIP-relative reference resolved
// against the instruction address — Addr holds that address and AddrOK
// is true. Call sites through import thunks take exactly these shapes.
type Operand struct {
	Kind   OperandKind
	Reg    string
	Imm    int64
	Mem    string
	Sym    string
	Addr   uint64
	AddrOK bool
}

func (o Operand) String() string {
	switch o.Kind {
	case OpRegister:
		return o.Reg
	case OpImmediate:
		return fmt.Sprintf("0x%x", uint64(o.Imm))
	case OpMemory:
		return o.Mem
	case OpSymbol:
		return o.Sym
	}
	return "?"
}

// Inst is a decoded instruction. Len drives the sweep cursor; VA is
// absolute (base address + cumulative offset).
type Inst struct {
	VA       uint64
	Mnemonic string
	Operands []Operand
	Len      int
}

// Text formats the instruction the way a disassembly listing would.
func (in Inst) Text() string {
	if len(in.Operands) == 0 {
		return in.Mnemonic
	}
	ops := make([]string, len(in.Operands))
	for i, o := range in.Operands {
		ops[i] = o.String()
	}
	return in.Mnemonic + " " + strings.Join(ops, ", ")
}

// IsCall reports whether the instruction is a call.
func (in Inst) IsCall() bool { return in.Mnemonic == "call" }

// IsRet reports whether the instruction is a return.
func (in Inst) IsRet() bool { return in.Mnemonic == "ret" }

// IsJump reports whether the instruction is any jump.
func (in Inst) IsJump() bool {
	return strings.HasPrefix(in.Mnemonic, "j")
}

// IsCondJump reports whether the instruction is a conditional jump. jmp is
// the only unconditional form in the modeled subset.
func (in Inst) IsCondJump() bool {
	return in.IsJump() && in.Mnemonic != "jmp"
}

// Target returns the absolute target address of a jump or call with an
// immediate operand. Register and memory targets return false.
func (in Inst) Target() (uint64, bool) {
	if !in.IsJump() && !in.IsCall() {
		return 0, false
	}
	if len(in.Operands) == 0 {
		return 0, false
	}
	if op := in.Operands[0]; op.Kind == OpImmediate {
		return uint64(op.Imm), true
	}
	return 0, false
}

// UnknownMnemonic is emitted for bytes the decoder does not recognize.
// The conservative 1-byte length keeps the sweep terminating.
const UnknownMnemonic = "unknown"

// Sweep linearly decodes code, assigning addresses from base. mode is the
// processor mode in bits (32 or 64; anything else selects 32). An
// undecodable byte is emitted as a 1-byte "unknown" instruction and the
// sweep continues, so decoding a hostile buffer never aborts the pass.
func Sweep(code []byte, base uint64, mode int) []Inst {
	if mode != 64 {
		mode = 32
	}

	var out []Inst
	offset := 0
	for offset < len(code) {
		va := base + uint64(offset)
		raw, err := x86asm.Decode(code[offset:], mode)
		// Decode can report a zero Op with a nil error for some byte runs;
		// treat that the same as a decode failure.
		if err != nil || raw.Len <= 0 || raw.Op == 0 {
			out = append(out, Inst{VA: va, Mnemonic: UnknownMnemonic, Len: 1})
			offset++
			continue
		}
		out = append(out, convert(raw, va))
		offset += raw.Len
	}
	return out
}

func convert(raw x86asm.Inst, va uint64) Inst {
	in := Inst{
		VA:       va,
		Mnemonic: strings.ToLower(raw.Op.String()),
		Len:      raw.Len,
	}
	for _, arg := range raw.Args {
		if arg == nil {
			break
		}
		in.Operands = append(in.Operands, convertArg(arg, va, raw.Len))
	}
	return in
}

func convertArg(arg x86asm.Arg, va uint64, instLen int) Operand {
	switch a := arg.(type) {
	case x86asm.Reg:
		return Operand{Kind: OpRegister, Reg: strings.ToLower(a.String())}
	case x86asm.Imm:
		return Operand{Kind: OpImmediate, Imm: int64(a)}
	case x86asm.Rel:
		// Branch displacement is relative to the next instruction.
		return Operand{Kind: OpImmediate, Imm: int64(va) + int64(instLen) + int64(a)}
	case x86asm.Mem:
		op := Operand{Kind: OpMemory, Mem: strings.ToLower(a.String())}
		switch {
		case a.Base == 0 && a.Index == 0:
			// Absolute displacement: [0x405000].
			op.Addr, op.AddrOK = uint64(a.Disp), true
		case (a.Base == x86asm.RIP || a.Base == x86asm.EIP) && a.Index == 0:
			// RIP-relative: displacement counts from the next instruction.
			op.Addr, op.AddrOK = uint64(int64(va)+int64(instLen)+a.Disp), true
		}
		return op
	}
	return Operand{Kind: OpMemory, Mem: strings.ToLower(arg.String())}
}
