// Package vocab enumerates token families and assigns integer ids.
//
// A Vocabulary is a bijective mapping between (family, value) tokens and
// ids. Enumeration order is fixed by the caller's build order, so two
// builds from the same configuration assign identical ids; model weights
// trained against one build stay valid across runs. Special control
// tokens are allocated first and therefore hold fixed, reserved ids no
// matter what content families follow.
package vocab

import "fmt"

// Family is the semantic category of a token. The transition graph and
// the strategy state machines operate on families, never on values.
type Family int

const (
	FamilyPad Family = iota
	FamilySOS
	FamilyEOS
	FamilyMask
	FamilyUnk
	FamilyBar
	FamilyPosition
	FamilyPitch
	FamilyNoteOn
	FamilyNoteOff
	FamilyVelocity
	FamilyDuration
	FamilyTimeShift
	FamilyProgram
	FamilyTempo
	FamilyTimeSignature
	FamilyTrack
	// FamilyIgnore fills the unused slots of compound words.
	FamilyIgnore
)

var familyNames = map[Family]string{
	FamilyPad:           "PAD",
	FamilySOS:           "SOS",
	FamilyEOS:           "EOS",
	FamilyMask:          "MASK",
	FamilyUnk:           "UNK",
	FamilyBar:           "Bar",
	FamilyPosition:      "Position",
	FamilyPitch:         "Pitch",
	FamilyNoteOn:        "NoteOn",
	FamilyNoteOff:       "NoteOff",
	FamilyVelocity:      "Velocity",
	FamilyDuration:      "Duration",
	FamilyTimeShift:     "TimeShift",
	FamilyProgram:       "Program",
	FamilyTempo:         "Tempo",
	FamilyTimeSignature: "TimeSig",
	FamilyTrack:         "Track",
	FamilyIgnore:        "Ignore",
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Track token values.
const (
	TrackStart = 0
	TrackEnd   = 1
)

// Token is a (family, value) pair. Values are family-specific: the MIDI
// pitch for Pitch/NoteOn/NoteOff, the representative velocity for
// Velocity, a grid-step count for Duration/TimeShift, a bin index for
// Tempo, and so on.
type Token struct {
	Family Family
	Value  int
}

func (t Token) String() string {
	return fmt.Sprintf("%s_%d", t.Family, t.Value)
}

// SpecialTokens selects which control tokens a vocabulary reserves ids
// for. Reserved ids are allocated before any content token, in the field
// order of this struct.
type SpecialTokens struct {
	Pad  bool `mapstructure:"pad" json:"pad"`
	SOS  bool `mapstructure:"sos" json:"sos"`
	EOS  bool `mapstructure:"eos" json:"eos"`
	Mask bool `mapstructure:"mask" json:"mask"`
	Unk  bool `mapstructure:"unk" json:"unk"`
}

// Vocabulary is an immutable (family, value) <-> id bijection.
type Vocabulary struct {
	ids    map[Token]int
	tokens []Token
}

// Builder accumulates tokens in a deterministic order. The zero value is
// not usable; call NewBuilder.
type Builder struct {
	voc *Vocabulary
}

func NewBuilder() *Builder {
	return &Builder{voc: &Vocabulary{ids: make(map[Token]int)}}
}

// AddSpecial reserves ids for the enabled special tokens. It must be the
// first call on a fresh builder so the reserved ids stay fixed across
// configurations that differ only in content families.
func (b *Builder) AddSpecial(s SpecialTokens) *Builder {
	if s.Pad {
		b.Add(Token{FamilyPad, 0})
	}
	if s.SOS {
		b.Add(Token{FamilySOS, 0})
	}
	if s.EOS {
		b.Add(Token{FamilyEOS, 0})
	}
	if s.Mask {
		b.Add(Token{FamilyMask, 0})
	}
	if s.Unk {
		b.Add(Token{FamilyUnk, 0})
	}
	return b
}

// Add appends one token. Adding a token twice keeps its first id.
func (b *Builder) Add(t Token) *Builder {
	if _, ok := b.voc.ids[t]; ok {
		return b
	}
	b.voc.ids[t] = len(b.voc.tokens)
	b.voc.tokens = append(b.voc.tokens, t)
	return b
}

// AddRange appends family tokens for every value in [lo, hi] ascending.
func (b *Builder) AddRange(f Family, lo, hi int) *Builder {
	for v := lo; v <= hi; v++ {
		b.Add(Token{f, v})
	}
	return b
}

// AddValues appends family tokens for the given values in order.
func (b *Builder) AddValues(f Family, values []int) *Builder {
	for _, v := range values {
		b.Add(Token{f, v})
	}
	return b
}

// Build finalizes the vocabulary. The builder must not be reused.
func (b *Builder) Build() *Vocabulary {
	v := b.voc
	b.voc = nil
	return v
}

// Len returns the number of tokens.
func (v *Vocabulary) Len() int { return len(v.tokens) }

// ID returns the id of a token, if present.
func (v *Vocabulary) ID(t Token) (int, bool) {
	id, ok := v.ids[t]
	return id, ok
}

// MustID returns the id of a token the caller knows is present. Encoders
// use it for tokens they themselves enumerated into the vocabulary.
func (v *Vocabulary) MustID(t Token) int {
	id, ok := v.ids[t]
	if !ok {
		panic(fmt.Sprintf("vocab: token %s not in vocabulary", t))
	}
	return id
}

// TokenAt returns the token with the given id, if the id is in range.
func (v *Vocabulary) TokenAt(id int) (Token, bool) {
	if id < 0 || id >= len(v.tokens) {
		return Token{}, false
	}
	return v.tokens[id], true
}

// SpecialID returns the reserved id for a special family, if allocated.
func (v *Vocabulary) SpecialID(f Family) (int, bool) {
	return v.ID(Token{f, 0})
}
