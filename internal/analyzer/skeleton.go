package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"binlift/internal/apicall"
	"binlift/internal/disasm"
)

// skeleton targets. The skeleton is a commented stub per recovered
// function, meant as a starting point for manual reconstruction, not as
// compilable output.
const (
	TargetGo     = "go"
	TargetPython = "python"
	TargetC      = "c"
)

// renderSkeleton emits one stub per recovered function in the requested
// target language. Unknown targets fall back to go.
func renderSkeleton(res *Result, target string) string {
	switch target {
	case TargetPython, TargetC:
	default:
		target = TargetGo
	}

	var b strings.Builder
	header(&b, res, target)

	for _, fn := range res.Functions {
		names := callNames(fn, res.APICalls)
		blocks := 0
		if g, ok := res.Graphs[fn.Name]; ok {
			blocks = len(g.Blocks)
		}
		switch target {
		case TargetPython:
			fmt.Fprintf(&b, "\ndef %s():\n", fn.Name)
			fmt.Fprintf(&b, "    # va 0x%x, %d instructions, %d blocks\n", fn.Start, len(fn.Insts), blocks)
			if len(names) > 0 {
				fmt.Fprintf(&b, "    # calls: %s\n", strings.Join(names, ", "))
			}
			b.WriteString("    pass\n")
		case TargetC:
			fmt.Fprintf(&b, "\n/* va 0x%x, %d instructions, %d blocks */\n", fn.Start, len(fn.Insts), blocks)
			fmt.Fprintf(&b, "void %s(void) {\n", fn.Name)
			if len(names) > 0 {
				fmt.Fprintf(&b, "\t/* calls: %s */\n", strings.Join(names, ", "))
			}
			b.WriteString("}\n")
		default:
			fmt.Fprintf(&b, "\n// va 0x%x, %d instructions, %d blocks\n", fn.Start, len(fn.Insts), blocks)
			fmt.Fprintf(&b, "func %s() {\n", fn.Name)
			if len(names) > 0 {
				fmt.Fprintf(&b, "\t// calls: %s\n", strings.Join(names, ", "))
			}
			b.WriteString("}\n")
		}
	}
	return b.String()
}

func header(b *strings.Builder, res *Result, target string) {
	line := func(format string, args ...any) {
		switch target {
		case TargetPython:
			b.WriteString("# ")
		case TargetC:
			b.WriteString("// ")
		default:
			b.WriteString("// ")
		}
		fmt.Fprintf(b, format, args...)
		b.WriteByte('\n')
	}

	line("reconstructed from %s (%s, %s)", res.Path, res.Format, res.Arch)
	line("%d functions, %d strings, %d classified calls", len(res.Functions), len(res.Strings), len(res.APICalls))
	if len(res.Libraries) > 0 {
		line("libraries: %s", strings.Join(res.Libraries, ", "))
	}
	if res.Partial {
		line("input truncated; listing is incomplete")
	}
}

// callNames collects the distinct resolved API names called from within
// fn, annotated with their capability category, sorted for stable output.
func callNames(fn disasm.Function, calls []apicall.Call) []string {
	seen := map[string]bool{}
	names := []string{}
	for _, c := range calls {
		if c.Name == "" || !fn.Contains(c.VA) || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Category))
	}
	sort.Strings(names)
	return names
}
