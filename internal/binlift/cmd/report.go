package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"binlift/internal/analyzer"
	"binlift/internal/apicall"
	"binlift/internal/cfgraph"
	"binlift/internal/disasm"
	"binlift/internal/strscan"
	"binlift/internal/ui/colorize"
)

// JSONOutput is the stable machine-readable shape used for scripting and
// regression testing.
type JSONOutput struct {
	Path        string          `json:"path"`
	Digest      string          `json:"digest"`
	Format      string          `json:"format"`
	Arch        string          `json:"arch"`
	Partial     bool            `json:"partial"`
	Functions   []JSONFunction  `json:"functions"`
	Strings     []JSONString    `json:"strings"`
	APICalls    []JSONAPICall   `json:"api_calls"`
	Obfuscation JSONObfuscation `json:"obfuscation"`
	Libraries   []string        `json:"libraries"`
	Skeleton    string          `json:"skeleton"`
}

type JSONFunction struct {
	Name         string `json:"name"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Instructions int    `json:"instructions"`
	Blocks       int    `json:"blocks"`
}

type JSONString struct {
	Value    string `json:"value"`
	Offset   int64  `json:"offset"`
	Encoding string `json:"encoding"`
}

type JSONAPICall struct {
	Name     string `json:"name,omitempty"`
	Address  string `json:"address"`
	Type     string `json:"type"`
	Category string `json:"category"`
}

type JSONObfuscation struct {
	Types              []string `json:"types"`
	OriginalEntropy    float64  `json:"original_entropy"`
	TransformedEntropy float64  `json:"transformed_entropy"`
}

// runJSON analyzes the file and prints the result as indented JSON.
func runJSON(a *analyzer.Analyzer, path, target string) error {
	res, err := a.Analyze(path, target)
	if err != nil {
		return err
	}

	out := JSONOutput{
		Path:      res.Path,
		Digest:    res.Digest,
		Format:    string(res.Format),
		Arch:      res.Arch,
		Partial:   res.Partial,
		Functions: []JSONFunction{},
		Strings:   []JSONString{},
		APICalls:  []JSONAPICall{},
		Obfuscation: JSONObfuscation{
			Types:              res.Deobfuscation.Types,
			OriginalEntropy:    res.Deobfuscation.OriginalEntropy,
			TransformedEntropy: res.Deobfuscation.TransformedEntropy,
		},
		Libraries: res.Libraries,
		Skeleton:  res.Skeleton,
	}

	for _, fn := range res.Functions {
		blocks := 0
		if g, ok := res.Graphs[fn.Name]; ok {
			blocks = len(g.Blocks)
		}
		out.Functions = append(out.Functions, JSONFunction{
			Name:         fn.Name,
			Start:        fmt.Sprintf("0x%x", fn.Start),
			End:          fmt.Sprintf("0x%x", fn.End()),
			Instructions: len(fn.Insts),
			Blocks:       blocks,
		})
	}
	for _, s := range res.Strings {
		out.Strings = append(out.Strings, JSONString{
			Value:    strscan.EscapeUnprintable([]byte(s.Value)),
			Offset:   s.Offset,
			Encoding: string(s.Encoding),
		})
	}
	for _, c := range res.APICalls {
		out.APICalls = append(out.APICalls, JSONAPICall{
			Name:     c.Name,
			Address:  fmt.Sprintf("0x%x", c.VA),
			Type:     string(c.Type),
			Category: string(c.Category),
		})
	}

	bts, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(bts))
	return nil
}

// previewInsts caps per-function listings in summary mode; --full lifts
// the cap.
const previewInsts = 16

// runReport analyzes the file and prints a human-readable text report.
func runReport(a *analyzer.Analyzer, path, target string, full bool) error {
	res, err := a.Analyze(path, target)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "; %s\n", res.Path)
	fmt.Fprintf(&b, "; %s\n", res.Digest)
	fmt.Fprintf(&b, "; %s, %s", res.Format, res.Arch)
	if res.Partial {
		b.WriteString(" (truncated)")
	}
	b.WriteString("\n")
	if len(res.Libraries) > 0 {
		fmt.Fprintf(&b, "; libraries: %s\n", strings.Join(res.Libraries, ", "))
	}

	if len(res.Deobfuscation.Types) > 0 {
		fmt.Fprintf(&b, "\nObfuscation: %s (entropy %.2f -> %.2f)\n",
			strings.Join(res.Deobfuscation.Types, ", "),
			res.Deobfuscation.OriginalEntropy,
			res.Deobfuscation.TransformedEntropy)
	}

	fmt.Fprintf(&b, "\nFunctions (%d)\n", len(res.Functions))
	for _, fn := range res.Functions {
		fmt.Fprintf(&b, "\n%s:\n", fn.Name)
		b.WriteString(functionListing(fn, res.Graphs[fn.Name], full))
	}

	fmt.Fprintf(&b, "\nStrings (%d)\n", len(res.Strings))
	for _, s := range res.Strings {
		fmt.Fprintf(&b, "  %8x  %-8s %s\n", s.Offset, s.Encoding, strscan.EscapeUnprintable([]byte(s.Value)))
	}

	if len(res.APICalls) > 0 {
		fmt.Fprintf(&b, "\nAPI calls (%d)\n", len(res.APICalls))
		for _, c := range res.APICalls {
			name := c.Name
			if name == "" {
				name = "<computed>"
			}
			fmt.Fprintf(&b, "  %8x  %-9s %-9s %s\n", c.VA, c.Type, c.Category, name)
		}
	}

	if res.Skeleton != "" {
		b.WriteString("\nSkeleton\n\n")
		b.WriteString(colorize.ColorizeSkeleton(res.Skeleton, target))
	}

	fmt.Fprint(os.Stdout, b.String())
	return nil
}

// functionListing renders one function's instructions, annotating block
// boundaries from its control-flow graph.
func functionListing(fn disasm.Function, g *cfgraph.Graph, full bool) string {
	starts := map[uint64]int{}
	if g != nil {
		for _, blk := range g.Blocks {
			starts[blk.Start] = blk.ID
		}
	}

	var b strings.Builder
	for i, in := range fn.Insts {
		if !full && i == previewInsts {
			fmt.Fprintf(&b, "  ... %d more instructions\n", len(fn.Insts)-i)
			break
		}
		if id, ok := starts[in.VA]; ok && id != 0 {
			fmt.Fprintf(&b, "  ; block %d\n", id)
		}
		line := fmt.Sprintf("%8x  %s", in.VA, in.Text())
		b.WriteString("  " + colorize.ColorizeInstructionLine(strings.TrimLeft(line, " ")) + "\n")
	}
	return b.String()
}

// apiCallNames summarizes the resolved API names inside fn for list rows.
func apiCallNames(fn disasm.Function, calls []apicall.Call) string {
	names := []string{}
	seen := map[string]bool{}
	for _, c := range calls {
		if c.Name == "" || !fn.Contains(c.VA) || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
