package disasm

import "fmt"

// Function is a contiguous instruction range identified as a function.
// Name is synthetic (func_<hex address>) unless a symbol table supplies a
// real one via WithSymbols.
type Function struct {
	Name  string
	Start uint64
	Insts []Inst
}

// End returns the address one past the last instruction.
func (f Function) End() uint64 {
	if len(f.Insts) == 0 {
		return f.Start
	}
	last := f.Insts[len(f.Insts)-1]
	return last.VA + uint64(last.Len)
}

// Contains reports whether va falls inside the function's address range.
func (f Function) Contains(va uint64) bool {
	return va >= f.Start && va < f.End()
}

func isFramePointer(op Operand) bool {
	return op.Kind == OpRegister && (op.Reg == "ebp" || op.Reg == "rbp")
}

func isStackPointer(op Operand) bool {
	return op.Kind == OpRegister && (op.Reg == "esp" || op.Reg == "rsp")
}

// prologueAt reports whether the instruction stream starting at i matches
// the classic frame setup: push ebp/rbp followed by mov ebp, esp.
func prologueAt(insts []Inst, i int) bool {
	if i+1 >= len(insts) {
		return false
	}
	push, mov := insts[i], insts[i+1]
	if push.Mnemonic != "push" || len(push.Operands) == 0 || !isFramePointer(push.Operands[0]) {
		return false
	}
	if mov.Mnemonic != "mov" || len(mov.Operands) < 2 {
		return false
	}
	return isFramePointer(mov.Operands[0]) && isStackPointer(mov.Operands[1])
}

// epilogueAt reports whether insts[i] starts a leave; ret pair.
func epilogueAt(insts []Inst, i int) bool {
	return i+1 < len(insts) && insts[i].Mnemonic == "leave" && insts[i+1].IsRet()
}

// Functions decodes code and returns the functions identified by
// prologue/epilogue matching, in address order. A prologue opens a
// function; the next leave; ret pair closes it inclusively. A function
// whose epilogue never appears (tail-call-optimized code, truncated
// buffers) is closed just before the next prologue, or at the end of the
// stream.
func Functions(code []byte, base uint64, mode int) []Function {
	return functionsFromInsts(Sweep(code, base, mode))
}

func functionsFromInsts(insts []Inst) []Function {
	var funcs []Function

	for i := 0; i < len(insts); {
		if !prologueAt(insts, i) {
			i++
			continue
		}

		end := -1 // index of the closing ret, inclusive
		next := len(insts)
		for j := i + 2; j < len(insts); j++ {
			if epilogueAt(insts, j) {
				end = j + 1
				break
			}
			if prologueAt(insts, j) {
				next = j
				break
			}
		}

		var body []Inst
		switch {
		case end >= 0:
			body = insts[i : end+1]
		default:
			body = insts[i:next]
		}

		funcs = append(funcs, Function{
			Name:  fmt.Sprintf("func_%x", insts[i].VA),
			Start: insts[i].VA,
			Insts: body,
		})

		i += len(body)
	}

	return funcs
}

// WithSymbols renames functions whose start address appears in syms and
// returns the same slice for chaining.
func WithSymbols(funcs []Function, syms map[uint64]string) []Function {
	if len(syms) == 0 {
		return funcs
	}
	for i := range funcs {
		if name, ok := syms[funcs[i].Start]; ok && name != "" {
			funcs[i].Name = name
		}
	}
	return funcs
}
