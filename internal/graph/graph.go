// Package graph declares, per tokenization strategy, which token family
// may legally follow which. The graph knows nothing about token values,
// so it stays strategy-sized rather than vocabulary-sized. Decoders use
// it to resynchronize on malformed sequences; callers can also run it
// over generated sequences as an advisory check.
package graph

import "github.com/Natooz/MIDITok/internal/vocab"

// TransitionGraph maps a token family to its permitted successors. Built
// once per strategy configuration and read-only afterwards.
type TransitionGraph struct {
	next map[vocab.Family]map[vocab.Family]bool
}

// New returns an empty graph ready for Allow calls.
func New() *TransitionGraph {
	return &TransitionGraph{next: make(map[vocab.Family]map[vocab.Family]bool)}
}

// Allow permits each of to to follow from.
func (g *TransitionGraph) Allow(from vocab.Family, to ...vocab.Family) *TransitionGraph {
	set := g.next[from]
	if set == nil {
		set = make(map[vocab.Family]bool)
		g.next[from] = set
	}
	for _, f := range to {
		set[f] = true
	}
	return g
}

// Allows reports whether to may follow from. Control families (padding,
// sequence markers, mask, unknown) are transparent on either side.
func (g *TransitionGraph) Allows(from, to vocab.Family) bool {
	if isControl(from) || isControl(to) {
		return true
	}
	return g.next[from][to]
}

// Successors returns the permitted successors of from, in no particular
// order. The result is a copy.
func (g *TransitionGraph) Successors(from vocab.Family) []vocab.Family {
	var out []vocab.Family
	for f := range g.next[from] {
		out = append(out, f)
	}
	return out
}

// Validate walks the sequence of families, checking each consecutive
// pair. It returns true when every adjacency is legal; otherwise false
// together with the index of the first offending (second-of-pair) token.
// It never fails hard: sequences of length 0 or 1 are trivially valid.
func (g *TransitionGraph) Validate(families []vocab.Family) (bool, int) {
	prev := vocab.FamilyPad // control, transparent
	prevSet := false
	for i, f := range families {
		if isControl(f) {
			continue
		}
		if prevSet && !g.Allows(prev, f) {
			return false, i
		}
		prev, prevSet = f, true
	}
	return true, -1
}

func isControl(f vocab.Family) bool {
	switch f {
	case vocab.FamilyPad, vocab.FamilySOS, vocab.FamilyEOS, vocab.FamilyMask, vocab.FamilyUnk, vocab.FamilyIgnore:
		return true
	}
	return false
}
