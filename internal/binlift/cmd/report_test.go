package cmd

import (
	"strings"
	"testing"

	"binlift/internal/apicall"
	"binlift/internal/cfgraph"
	"binlift/internal/disasm"
)

// sampleFunction is push ebp; mov ebp, esp; jnz $+0; leave; ret, giving a
// two-block graph.
func sampleFunction(t *testing.T) (disasm.Function, *cfgraph.Graph) {
	t.Helper()
	code := []byte{
		0x55,       // push ebp
		0x89, 0xE5, // mov ebp, esp
		0x75, 0x00, // jnz $+0 (falls through either way)
		0xC9,       // leave
		0xC3,       // ret
	}
	funcs := disasm.Functions(code, 0x1000, 32)
	if len(funcs) != 1 {
		t.Fatalf("got %d functions, want 1", len(funcs))
	}
	fn := funcs[0]
	return fn, cfgraph.Analyze(fn)
}

func TestFunctionListing(t *testing.T) {
	t.Setenv("BINLIFT_NO_COLOR", "1")
	fn, g := sampleFunction(t)

	full := functionListing(fn, g, true)
	for _, want := range []string{"1000", "push", "leave", "ret", "; block"} {
		if !strings.Contains(full, want) {
			t.Errorf("listing missing %q:\n%s", want, full)
		}
	}
	if strings.Contains(full, "more instructions") {
		t.Error("full listing should not be truncated")
	}
}

func TestFunctionListingPreviewCap(t *testing.T) {
	t.Setenv("BINLIFT_NO_COLOR", "1")

	// A long run of nops between prologue and epilogue.
	code := []byte{0x55, 0x89, 0xE5}
	for i := 0; i < previewInsts*2; i++ {
		code = append(code, 0x90)
	}
	code = append(code, 0xC9, 0xC3)

	funcs := disasm.Functions(code, 0x1000, 32)
	if len(funcs) != 1 {
		t.Fatalf("got %d functions, want 1", len(funcs))
	}
	got := functionListing(funcs[0], cfgraph.Analyze(funcs[0]), false)
	if !strings.Contains(got, "more instructions") {
		t.Errorf("summary listing not capped:\n%s", got)
	}
}

func TestAPICallNames(t *testing.T) {
	fn, _ := sampleFunction(t)

	calls := []apicall.Call{
		{Name: "ReadFile", VA: fn.Start + 1, Type: apicall.CallDirect, Category: apicall.CategoryFileIO},
		{Name: "ReadFile", VA: fn.Start + 2, Type: apicall.CallDirect, Category: apicall.CategoryFileIO},
		{Name: "", VA: fn.Start + 3, Type: apicall.CallIndirect},
		{Name: "socket", VA: 0x9999, Type: apicall.CallDirect, Category: apicall.CategoryNetwork},
	}

	got := apiCallNames(fn, calls)
	if got != "ReadFile" {
		t.Errorf("apiCallNames() = %q, want ReadFile only (deduped, in-range, named)", got)
	}
}
