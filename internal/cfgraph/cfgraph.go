// Package cfgraph builds per-function control-flow graphs from decoded
// instruction sequences.
package cfgraph

import (
	"sort"

	"binlift/internal/disasm"
)

// EdgeKind classifies a control-flow edge.
type EdgeKind string

const (
	EdgeFallthrough    EdgeKind = "fallthrough"
	EdgeBranchTaken    EdgeKind = "branch-taken"
	EdgeBranchNotTaken EdgeKind = "branch-not-taken"
	EdgeExternal       EdgeKind = "external"
)

// ExternalBlockID is the synthetic sink for transfers leaving the
// function's address range.
const ExternalBlockID = -1

// Block is a maximal straight-line instruction run. Calls never terminate
// a block; the call instructions a block contains are kept as metadata for
// API analysis.
type Block struct {
	ID    int
	Start uint64
	End   uint64 // one past the last instruction
	Insts []disasm.Inst
	Calls []disasm.Inst
}

// Edge connects two blocks by ID. To may be ExternalBlockID.
type Edge struct {
	From int
	To   int
	Kind EdgeKind
}

// Graph is the control-flow graph of one function.
type Graph struct {
	Blocks []Block
	Edges  []Edge
}

// Outgoing returns the edges leaving the block with the given ID.
func (g *Graph) Outgoing(id int) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// Analyze splits fn into basic blocks and connects them. Blocks partition
// the function's instructions in address order with no gaps or overlaps;
// every block has at most two outgoing edges. Transfers that resolve
// outside the function become edges to the external sink rather than
// failures.
func Analyze(fn disasm.Function) *Graph {
	g := &Graph{Blocks: []Block{}, Edges: []Edge{}}
	if len(fn.Insts) == 0 {
		return g
	}

	leaders := findLeaders(fn)
	g.Blocks = splitBlocks(fn.Insts, leaders)

	startToID := make(map[uint64]int, len(g.Blocks))
	for _, b := range g.Blocks {
		startToID[b.Start] = b.ID
	}

	for i, b := range g.Blocks {
		last := b.Insts[len(b.Insts)-1]

		switch {
		case last.IsRet():
			// Terminal block.

		case last.Mnemonic == "jmp":
			g.addBranch(b.ID, last, fn, startToID, EdgeBranchTaken)

		case last.IsCondJump():
			g.addBranch(b.ID, last, fn, startToID, EdgeBranchTaken)
			if i+1 < len(g.Blocks) {
				g.Edges = append(g.Edges, Edge{From: b.ID, To: g.Blocks[i+1].ID, Kind: EdgeBranchNotTaken})
			}

		default:
			if i+1 < len(g.Blocks) {
				g.Edges = append(g.Edges, Edge{From: b.ID, To: g.Blocks[i+1].ID, Kind: EdgeFallthrough})
			}
		}
	}

	return g
}

// addBranch connects a jump to its target block, or to the external sink
// when the target is unresolved or outside the function.
func (g *Graph) addBranch(from int, in disasm.Inst, fn disasm.Function, startToID map[uint64]int, kind EdgeKind) {
	target, ok := in.Target()
	if !ok || !fn.Contains(target) {
		g.Edges = append(g.Edges, Edge{From: from, To: ExternalBlockID, Kind: EdgeExternal})
		return
	}
	if id, found := startToID[target]; found {
		g.Edges = append(g.Edges, Edge{From: from, To: id, Kind: kind})
		return
	}
	// In-range target that is not a block start can only come from a
	// misdecoded stream; degrade to the external sink.
	g.Edges = append(g.Edges, Edge{From: from, To: ExternalBlockID, Kind: EdgeExternal})
}

// findLeaders returns the sorted addresses that begin basic blocks: the
// entry, every in-range jump target, and every instruction following a
// control transfer. Calls transfer control but always return, so they do
// not produce leaders.
func findLeaders(fn disasm.Function) []uint64 {
	set := map[uint64]bool{fn.Insts[0].VA: true}

	for i, in := range fn.Insts {
		if in.IsJump() {
			if target, ok := in.Target(); ok && fn.Contains(target) {
				set[target] = true
			}
		}
		if (in.IsJump() || in.IsRet()) && i+1 < len(fn.Insts) {
			set[fn.Insts[i+1].VA] = true
		}
	}

	leaders := make([]uint64, 0, len(set))
	for va := range set {
		leaders = append(leaders, va)
	}
	sort.Slice(leaders, func(i, j int) bool { return leaders[i] < leaders[j] })
	return leaders
}

func splitBlocks(insts []disasm.Inst, leaders []uint64) []Block {
	isLeader := make(map[uint64]bool, len(leaders))
	for _, va := range leaders {
		isLeader[va] = true
	}

	var blocks []Block
	var cur *Block
	for _, in := range insts {
		if isLeader[in.VA] || cur == nil {
			if cur != nil {
				blocks = append(blocks, *cur)
			}
			cur = &Block{ID: len(blocks), Start: in.VA}
		}
		cur.Insts = append(cur.Insts, in)
		cur.End = in.VA + uint64(in.Len)
		if in.IsCall() {
			cur.Calls = append(cur.Calls, in)
		}
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	return blocks
}
