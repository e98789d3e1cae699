// Package apicall classifies call instructions against known external API
// names so downstream consumers can see what a binary touches.
package apicall

import (
	"strings"

	"binlift/internal/disasm"
)

// CallType distinguishes resolved calls from computed ones.
type CallType string

const (
	CallDirect   CallType = "direct"
	CallIndirect CallType = "indirect"
)

// Category groups an API by the capability it grants.
type Category string

const (
	CategoryFileIO   Category = "file-io"
	CategoryNetwork  Category = "network"
	CategoryProcess  Category = "process"
	CategoryRegistry Category = "registry"
	CategoryMemory   Category = "memory"
	CategoryUnknown  Category = "unknown"
)

// Call is one classified call site. Name is empty for indirect calls whose
// target could not be resolved; that is a legal, common outcome rather
// than an error.
type Call struct {
	Name     string
	VA       uint64
	Type     CallType
	Category Category
}

// categories maps lowercase API names to their capability group. The
// table covers the well-known Win32, libc, and POSIX surface; anything
// absent classifies as unknown.
var categories = map[string]Category{
	// File I/O
	"createfilea":  CategoryFileIO,
	"createfilew":  CategoryFileIO,
	"readfile":     CategoryFileIO,
	"writefile":    CategoryFileIO,
	"deletefilea":  CategoryFileIO,
	"closehandle":  CategoryFileIO,
	"setfilepointer": CategoryFileIO,
	"fopen":        CategoryFileIO,
	"fread":        CategoryFileIO,
	"fwrite":       CategoryFileIO,
	"fclose":       CategoryFileIO,
	"open":         CategoryFileIO,
	"read":         CategoryFileIO,
	"write":        CategoryFileIO,
	"close":        CategoryFileIO,
	"unlink":       CategoryFileIO,

	// Network
	"socket":          CategoryNetwork,
	"connect":         CategoryNetwork,
	"bind":            CategoryNetwork,
	"listen":          CategoryNetwork,
	"accept":          CategoryNetwork,
	"send":            CategoryNetwork,
	"recv":            CategoryNetwork,
	"wsastartup":      CategoryNetwork,
	"wsacleanup":      CategoryNetwork,
	"internetopena":   CategoryNetwork,
	"internetopenurla": CategoryNetwork,
	"gethostbyname":   CategoryNetwork,

	// Process
	"createprocessa":     CategoryProcess,
	"createprocessw":     CategoryProcess,
	"createthread":       CategoryProcess,
	"createremotethread": CategoryProcess,
	"openprocess":        CategoryProcess,
	"terminateprocess":   CategoryProcess,
	"exitprocess":        CategoryProcess,
	"fork":               CategoryProcess,
	"execve":             CategoryProcess,
	"system":             CategoryProcess,
	"waitpid":            CategoryProcess,

	// Registry
	"regopenkeyexa":   CategoryRegistry,
	"regopenkeyexw":   CategoryRegistry,
	"regqueryvalueexa": CategoryRegistry,
	"regsetvalueexa":  CategoryRegistry,
	"regclosekey":     CategoryRegistry,
	"regcreatekeyexa": CategoryRegistry,

	// Memory
	"virtualalloc":   CategoryMemory,
	"virtualfree":    CategoryMemory,
	"virtualprotect": CategoryMemory,
	"heapalloc":      CategoryMemory,
	"heapfree":       CategoryMemory,
	"malloc":         CategoryMemory,
	"calloc":         CategoryMemory,
	"realloc":        CategoryMemory,
	"free":           CategoryMemory,
	"mmap":           CategoryMemory,
	"munmap":         CategoryMemory,
}

// Categorize returns the capability group for an API name. Unknown names
// default to CategoryUnknown; they are kept, not dropped, so the caller
// still sees the dependency.
func Categorize(name string) Category {
	if c, ok := categories[strings.ToLower(name)]; ok {
		return c
	}
	return CategoryUnknown
}

// Analyze walks every call instruction in funcs and classifies it. A call
// resolves to a name through a symbolic operand, or through the imports
// table when its target — an immediate, or the statically known address
// of a memory operand — matches an import thunk. Computed targets with
// no resolution yield indirect calls with an empty name.
func Analyze(funcs []disasm.Function, imports map[uint64]string) []Call {
	calls := []Call{}

	for _, fn := range funcs {
		for _, in := range fn.Insts {
			if !in.IsCall() {
				continue
			}
			calls = append(calls, classify(in, imports))
		}
	}
	return calls
}

func classify(in disasm.Inst, imports map[uint64]string) Call {
	call := Call{VA: in.VA, Type: CallIndirect, Category: CategoryUnknown}
	if len(in.Operands) == 0 {
		return call
	}

	op := in.Operands[0]
	switch op.Kind {
	case disasm.OpSymbol:
		call.Name = op.Sym
		call.Type = CallDirect

	case disasm.OpImmediate:
		if name, ok := imports[uint64(op.Imm)]; ok && name != "" {
			call.Name = name
			call.Type = CallDirect
		} else {
			// A direct call to an address with no symbol is still a
			// resolved target; name it the way the disassembler names
			// unlabeled functions.
			call.Type = CallDirect
		}

	case disasm.OpMemory:
		// Calls through import thunks are memory-indirect: the IAT slot
		// or GOT entry address is an absolute or RIP-relative
		// displacement, and the loader's import table names it.
		if op.AddrOK {
			if name, ok := imports[op.Addr]; ok && name != "" {
				call.Name = name
				call.Type = CallDirect
			}
		}

	case disasm.OpRegister:
		// Computed target. Indirect with no name is the expected shape.
	}

	if call.Name != "" {
		call.Category = Categorize(call.Name)
	}
	return call
}
