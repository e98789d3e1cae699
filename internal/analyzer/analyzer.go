// Package analyzer composes format detection, string extraction,
// disassembly, control-flow recovery, API classification, and
// deobfuscation into one aggregate result for downstream translation.
//
// One Analyze call is strictly sequential and touches no shared state, so
// independent binaries may be analyzed concurrently from multiple
// goroutines.
package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"binlift/internal/apicall"
	"binlift/internal/cfgraph"
	"binlift/internal/deobf"
	"binlift/internal/disasm"
	"binlift/internal/format"
	"binlift/internal/image"
	"binlift/internal/strscan"
)

// DefaultMaxScanBytes bounds pathological inputs feeding the linear
// sweep. Exceeding it truncates analysis and marks the result partial.
const DefaultMaxScanBytes = 16 << 20

// digestLen is the truncated content-hash length in hex characters,
// matching the project's cache-key convention.
const digestLen = 16

// Options configure one Analyzer. Every knob is explicit; nothing is read
// from process-wide state. Zero values select the documented defaults.
type Options struct {
	MinStringLength  int
	EntropyThreshold float64
	MaxScanBytes     int64
	Arch             string // optional hint: "x86" or "x86_64"
	Logger           *slog.Logger
}

// Analyzer runs the recovery pipeline. Safe for concurrent use.
type Analyzer struct {
	opts Options
	log  *slog.Logger
}

// New returns an Analyzer with the given options.
func New(opts Options) *Analyzer {
	if opts.MinStringLength <= 0 {
		opts.MinStringLength = strscan.DefaultMinLength
	}
	if opts.MaxScanBytes <= 0 {
		opts.MaxScanBytes = DefaultMaxScanBytes
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{opts: opts, log: log}
}

// Result is the terminal aggregate of one analysis. All collections are
// non-nil; an unsupported binary yields Format Unknown with empty
// collections rather than an error, so "nothing recovered" is a valid,
// inspectable state.
type Result struct {
	Path          string
	Digest        string
	Format        format.Format
	Arch          string
	Partial       bool
	Functions     []disasm.Function
	Graphs        map[string]*cfgraph.Graph
	Strings       []strscan.ExtractedString
	APICalls      []apicall.Call
	Deobfuscation *deobf.Result
	Libraries     []string
	Skeleton      string
}

// Analyze runs the full pipeline on the file at path. target selects the
// language of the generated code skeleton (go, python, c; empty selects
// go). The only fatal conditions are an unreadable path and a file too
// short to hold any format marker; everything else degrades.
func (a *Analyzer) Analyze(path, target string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%s: %d bytes is too short to hold a format marker", path, len(data))
	}

	res := &Result{
		Path:      path,
		Arch:      a.opts.Arch,
		Functions: []disasm.Function{},
		Graphs:    map[string]*cfgraph.Graph{},
		Strings:   []strscan.ExtractedString{},
		APICalls:  []apicall.Call{},
		Libraries: []string{},
	}

	if int64(len(data)) > a.opts.MaxScanBytes {
		data = data[:a.opts.MaxScanBytes]
		res.Partial = true
		a.log.Warn("input truncated", "path", path, "limit", a.opts.MaxScanBytes)
	}

	// The digest keys the analyzed region, so it is taken after
	// truncation.
	res.Digest = contentDigest(data)

	res.Format = format.DetectBytes(data)
	a.log.Debug("format detected", "path", path, "format", res.Format)

	im := a.loadImage(path, res.Format)
	if im != nil {
		res.Arch = im.Arch
		res.Libraries = append(res.Libraries, im.Libraries...)
	}
	if res.Arch == "" {
		res.Arch = "x86"
	}

	if found := strscan.ExtractWithContext(data, a.opts.MinStringLength, true); found != nil {
		res.Strings = found
	}

	scan := deobf.Scan(data, deobf.Options{Threshold: a.opts.EntropyThreshold})
	res.Deobfuscation = &scan

	code, base, mode, truncated := a.codeRegion(im, &scan, res.Arch)
	if truncated {
		res.Partial = true
		a.log.Warn("code section truncated", "path", path, "limit", a.opts.MaxScanBytes)
	}
	if len(code) > 0 {
		funcs := disasm.Functions(code, base, mode)
		if im != nil {
			funcs = disasm.WithSymbols(funcs, im.Symbols)
		}
		if funcs != nil {
			res.Functions = funcs
		}

		for _, fn := range res.Functions {
			res.Graphs[fn.Name] = cfgraph.Analyze(fn)
		}

		var imports map[uint64]string
		if im != nil {
			imports = im.Imports
		}
		res.APICalls = apicall.Analyze(res.Functions, imports)
	}

	res.Skeleton = renderSkeleton(res, target)

	a.log.Info("analysis complete",
		"path", path,
		"format", res.Format,
		"functions", len(res.Functions),
		"strings", len(res.Strings),
		"api_calls", len(res.APICalls),
		"partial", res.Partial)
	return res, nil
}

// loadImage parses container metadata. A corrupt or unmodeled container
// is a recoverable condition: the pipeline continues without section or
// import context.
func (a *Analyzer) loadImage(path string, f format.Format) *image.Image {
	if f != format.ELF && f != format.PE {
		return nil
	}
	im, err := image.Load(path, f)
	if err != nil {
		a.log.Debug("container metadata unavailable", "path", path, "error", err)
		return nil
	}
	return im
}

// codeRegion selects the bytes the sweep consumes. A structural image
// supplies the real code section, clamped to MaxScanBytes so a section
// header claiming an enormous size cannot blow past the scan bound the
// raw path honors. Without an image, a recognized deobfuscation
// transform re-feeds its payload into the disassembler; plain
// unknown-format input stays out of the sweep entirely, degrading the
// pipeline to strings plus entropy scanning.
func (a *Analyzer) codeRegion(im *image.Image, scan *deobf.Result, arch string) (code []byte, base uint64, mode int, truncated bool) {
	if im != nil && len(im.Code) > 0 {
		code, base, mode = im.Code, im.CodeVA, im.Mode
		if int64(len(code)) > a.opts.MaxScanBytes {
			code = code[:a.opts.MaxScanBytes]
			truncated = true
		}
		return code, base, mode, truncated
	}

	mode = 32
	if arch == "x86_64" {
		mode = 64
	}
	for _, kind := range scan.Types {
		if kind == deobf.ObfXOR || kind == deobf.ObfRotation {
			return scan.Payload, 0, mode, false
		}
	}
	return nil, 0, mode, false
}

// contentDigest returns the truncated SHA-256 digest used as the external
// cache key for this binary's content.
func contentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:digestLen]
}
