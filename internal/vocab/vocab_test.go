package vocab

import (
	"encoding/json"
	"testing"
)

func TestBuilder_SpecialTokensFirst(t *testing.T) {
	voc := NewBuilder().
		AddSpecial(SpecialTokens{Pad: true, SOS: true, EOS: true, Mask: true, Unk: true}).
		AddRange(FamilyPitch, 60, 62).
		Build()

	wantOrder := []Family{FamilyPad, FamilySOS, FamilyEOS, FamilyMask, FamilyUnk}
	for i, f := range wantOrder {
		tok, ok := voc.TokenAt(i)
		if !ok || tok.Family != f {
			t.Errorf("TokenAt(%d) = %v, %v; want family %s", i, tok, ok, f)
		}
	}
	if id, ok := voc.ID(Token{FamilyPitch, 60}); !ok || id != 5 {
		t.Errorf("ID(Pitch_60) = %d, %v; want 5, true", id, ok)
	}
}

func TestBuilder_Bijection(t *testing.T) {
	voc := NewBuilder().
		AddSpecial(SpecialTokens{Pad: true, Unk: true}).
		AddRange(FamilyPitch, 21, 108).
		AddValues(FamilyVelocity, []int{1, 64, 127}).
		Build()

	for id := 0; id < voc.Len(); id++ {
		tok, ok := voc.TokenAt(id)
		if !ok {
			t.Fatalf("TokenAt(%d) missing", id)
		}
		back, ok := voc.ID(tok)
		if !ok || back != id {
			t.Fatalf("ID(TokenAt(%d)) = %d, %v", id, back, ok)
		}
	}
}

func TestBuilder_DuplicateKeepsFirstID(t *testing.T) {
	voc := NewBuilder().
		Add(Token{FamilyPitch, 60}).
		Add(Token{FamilyPitch, 60}).
		Add(Token{FamilyPitch, 61}).
		Build()

	if voc.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", voc.Len())
	}
	if id, _ := voc.ID(Token{FamilyPitch, 60}); id != 0 {
		t.Errorf("ID(Pitch_60) = %d; want 0", id)
	}
}

func TestVocabulary_TokenAtOutOfRange(t *testing.T) {
	voc := NewBuilder().Add(Token{FamilyPitch, 60}).Build()

	if _, ok := voc.TokenAt(-1); ok {
		t.Error("TokenAt(-1) = ok; want miss")
	}
	if _, ok := voc.TokenAt(1); ok {
		t.Error("TokenAt(1) = ok; want miss")
	}
}

func TestSpecialID(t *testing.T) {
	voc := NewBuilder().AddSpecial(SpecialTokens{Pad: true, EOS: true}).Build()

	if id, ok := voc.SpecialID(FamilyPad); !ok || id != 0 {
		t.Errorf("SpecialID(Pad) = %d, %v; want 0, true", id, ok)
	}
	if id, ok := voc.SpecialID(FamilyEOS); !ok || id != 1 {
		t.Errorf("SpecialID(EOS) = %d, %v; want 1, true", id, ok)
	}
	if _, ok := voc.SpecialID(FamilyMask); ok {
		t.Error("SpecialID(Mask) = ok; want miss")
	}
}

func TestTokenString(t *testing.T) {
	tests := []struct {
		tok  Token
		want string
	}{
		{Token{FamilyPitch, 60}, "Pitch_60"},
		{Token{FamilyBar, 0}, "Bar_0"},
		{Token{FamilyTimeSignature, 2}, "TimeSig_2"},
	}
	for _, tt := range tests {
		if got := tt.tok.String(); got != tt.want {
			t.Errorf("String() = %q; want %q", got, tt.want)
		}
	}
}

func TestLinearBins(t *testing.T) {
	tests := []struct {
		name      string
		lo, hi, n int
		wantLen   int
		wantFirst int
		wantLast  int
	}{
		{"full velocity range", 1, 127, 127, 127, 1, 127},
		{"duration steps", 1, 64, 64, 64, 1, 64},
		{"coarse", 0, 100, 5, 5, 0, 100},
		{"single bin sits at hi", 1, 127, 1, 1, 127, 127},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bins := LinearBins(tt.lo, tt.hi, tt.n)
			if len(bins) != tt.wantLen {
				t.Fatalf("len = %d; want %d", len(bins), tt.wantLen)
			}
			if bins[0] != tt.wantFirst || bins[len(bins)-1] != tt.wantLast {
				t.Errorf("bins span [%d, %d]; want [%d, %d]", bins[0], bins[len(bins)-1], tt.wantFirst, tt.wantLast)
			}
			for i := 1; i < len(bins); i++ {
				if bins[i] <= bins[i-1] {
					t.Fatalf("bins not strictly ascending at %d: %v", i, bins)
				}
			}
		})
	}
}

func TestLinearBins_DedupsWhenCountExceedsRange(t *testing.T) {
	bins := LinearBins(1, 4, 10)
	want := []int{1, 2, 3, 4}
	if len(bins) != len(want) {
		t.Fatalf("bins = %v; want %v", bins, want)
	}
	for i := range want {
		if bins[i] != want[i] {
			t.Fatalf("bins = %v; want %v", bins, want)
		}
	}
}

func TestNearestBin(t *testing.T) {
	bins := []int{0, 10, 20}

	tests := []struct {
		v    int
		want int
	}{
		{0, 0},
		{4, 0},
		{5, 0}, // tie goes to the lower bin
		{6, 1},
		{14, 1},
		{100, 2},
	}
	for _, tt := range tests {
		if got := NearestBin(bins, tt.v); got != tt.want {
			t.Errorf("NearestBin(%d) = %d; want %d", tt.v, got, tt.want)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyClip, false},
		{"clip", PolicyClip, false},
		{"drop", PolicyDrop, false},
		{"discard", PolicyClip, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePolicy(%q) = nil; want error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestDiagKind_JSONRoundTrip(t *testing.T) {
	kinds := []DiagKind{DiagOutOfRange, DiagNoteDropped, DiagInvalidTokenID, DiagTransitionViolation}
	for _, k := range kinds {
		data, err := json.Marshal(k)
		if err != nil {
			t.Fatalf("Marshal(%v) error = %v", k, err)
		}
		var back DiagKind
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if back != k {
			t.Errorf("round trip %v -> %s -> %v", k, data, back)
		}
	}

	var bad DiagKind
	if err := json.Unmarshal([]byte(`"NotAKind"`), &bad); err == nil {
		t.Error("Unmarshal unknown kind = nil; want error")
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 10, 20); got != 10 {
		t.Errorf("Clamp(5, 10, 20) = %d; want 10", got)
	}
	if got := Clamp(25, 10, 20); got != 20 {
		t.Errorf("Clamp(25, 10, 20) = %d; want 20", got)
	}
	if got := Clamp(15, 10, 20); got != 15 {
		t.Errorf("Clamp(15, 10, 20) = %d; want 15", got)
	}
}
