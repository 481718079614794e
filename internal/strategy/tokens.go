package strategy

import "github.com/Natooz/MIDITok/internal/vocab"

// idsFromEvents maps pre-token events to ids. Events are produced
// against the same vocabulary they are looked up in, so misses can only
// come from a programming error; they fall back to the unknown token
// when one is allocated and are dropped otherwise.
func idsFromEvents(events []Event, voc *vocab.Vocabulary) []int {
	ids := make([]int, 0, len(events))
	for _, ev := range events {
		if id, ok := voc.ID(ev.Tok); ok {
			ids = append(ids, id)
			continue
		}
		if unk, ok := voc.SpecialID(vocab.FamilyUnk); ok {
			ids = append(ids, unk)
		}
	}
	return ids
}

// SequenceFamilies maps a token sequence to the family sequence the
// transition graph validates. For compound sequences each word
// contributes the family of its first non-ignore slot, which the
// strategies arrange to be the word's class. Unknown ids map to the
// unknown family, which the graph treats as transparent.
func SequenceFamilies(t Tokens, voc *vocab.Vocabulary) []vocab.Family {
	if t.Words == nil {
		out := make([]vocab.Family, len(t.IDs))
		for i, id := range t.IDs {
			out[i] = familyOf(id, voc)
		}
		return out
	}
	out := make([]vocab.Family, len(t.Words))
	for i, word := range t.Words {
		out[i] = vocab.FamilyIgnore
		for _, id := range word {
			if f := familyOf(id, voc); f != vocab.FamilyIgnore {
				out[i] = f
				break
			}
		}
	}
	return out
}

func familyOf(id int, voc *vocab.Vocabulary) vocab.Family {
	tok, ok := voc.TokenAt(id)
	if !ok {
		return vocab.FamilyUnk
	}
	return tok.Family
}
