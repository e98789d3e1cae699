// Package colorize renders disassembly listings and code skeletons with
// terminal syntax highlighting. Setting BINLIFT_NO_COLOR disables all
// coloring, which the non-interactive output paths rely on.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

func colorsDisabled() bool {
	return os.Getenv("BINLIFT_NO_COLOR") != ""
}

// getAssemblyLexer returns an x86 assembly lexer with fallbacks. The
// listing is Intel-syntax, so nasm is tried first.
func getAssemblyLexer() chroma.Lexer {
	candidates := []string{"nasm", "gas", "GAS", "Gas"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks.
func getDisasmStyle() *chroma.Style {
	_ = DisasmDark // keep the custom style registered

	candidates := []string{"disasm-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter.
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

func highlight(lexer chroma.Lexer, code string) (string, error) {
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// ColorizeAssembly applies syntax highlighting to a multi-line assembly
// listing. On any failure the plain listing is returned.
func ColorizeAssembly(code string) (string, error) {
	if colorsDisabled() {
		return code, nil
	}

	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}
	return highlight(lexer, code)
}

// ColorizeSkeleton highlights a generated code skeleton in its target
// language (go, python, c). Unknown targets render plain.
func ColorizeSkeleton(code, target string) string {
	if colorsDisabled() {
		return code
	}

	lexer := lexers.Get(target)
	if lexer == nil {
		return code
	}

	out, err := highlight(lexer, code)
	if err != nil {
		return code
	}
	return out
}

// ColorizeInstructionLine colorizes a single listing line of the form
// "VA  mnemonic operands". The hex address renders gray; the instruction
// text goes through the assembly lexer.
func ColorizeInstructionLine(line string) string {
	if colorsDisabled() {
		return line
	}

	parts := strings.SplitN(line, " ", 2)
	if len(parts) < 2 || !isHexWord(parts[0]) {
		return colorizeFullLine(line)
	}

	addrColored := fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m", parts[0])
	return fmt.Sprintf("%s %s", addrColored, colorizeFullLine(parts[1]))
}

func isHexWord(s string) bool {
	w := strings.TrimPrefix(s, "0x")
	if w == "" {
		return false
	}
	for i := 0; i < len(w); i++ {
		ch := w[i]
		if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}

func colorizeFullLine(line string) string {
	lexer := getAssemblyLexer()
	if lexer == nil {
		return line
	}
	out, err := highlight(lexer, line)
	if err != nil {
		return line
	}
	return out
}

// StripANSI removes ANSI escape codes, returning the plain string.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
