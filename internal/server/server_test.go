package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/tokenizer"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// stubCodec implements Codec with pluggable behaviour for failure-path
// tests; happy paths run against a real tokenizer.
type stubCodec struct {
	cfg      tokenizer.Config
	onEncode func(*event.Performance) (tokenizer.Sequence, []tokenizer.Diagnostic, error)
	onDecode func(tokenizer.Sequence) (*event.Performance, []tokenizer.Diagnostic, error)
}

func (s *stubCodec) Encode(p *event.Performance) (tokenizer.Sequence, []tokenizer.Diagnostic, error) {
	return s.onEncode(p)
}

func (s *stubCodec) Decode(seq tokenizer.Sequence) (*event.Performance, []tokenizer.Diagnostic, error) {
	return s.onDecode(seq)
}

func (s *stubCodec) Config() tokenizer.Config { return s.cfg }

func (s *stubCodec) Vocabulary() *vocab.Vocabulary {
	return vocab.NewBuilder().AddSpecial(vocab.SpecialTokens{Pad: true}).Build()
}

func realCodec(t *testing.T, cfg tokenizer.Config) *tokenizer.Tokenizer {
	t.Helper()
	tok, err := tokenizer.New(cfg)
	if err != nil {
		t.Fatalf("tokenizer.New() error = %v", err)
	}
	return tok
}

func testPerformance() *event.Performance {
	return &event.Performance{
		Resolution: 480,
		Tracks: []event.Track{{
			Notes: []event.Note{
				{Pitch: 60, Velocity: 80, Start: 0, End: 480},
				{Pitch: 64, Velocity: 100, Start: 480, End: 960},
			},
		}},
	}
}

func postJSON(t *testing.T, h http.Handler, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func TestHealth_Returns200WithStatusOK(t *testing.T) {
	h := NewHandler(realCodec(t, tokenizer.DefaultConfig()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var body map[string]string
	err := json.NewDecoder(rec.Body).Decode(&body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %q", body["status"])
	}

	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}
}

// ---------------------------------------------------------------------------
// GET /vocab
// ---------------------------------------------------------------------------

func TestVocab_ListsTokens(t *testing.T) {
	codec := realCodec(t, tokenizer.DefaultConfig())
	h := NewHandler(codec)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/vocab", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var body struct {
		Size     int          `json:"size"`
		Strategy string       `json:"strategy"`
		Tokens   []vocabEntry `json:"tokens"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.Size != codec.VocabSize() {
		t.Errorf("size = %d; want %d", body.Size, codec.VocabSize())
	}

	if body.Strategy != "bar-position" {
		t.Errorf("strategy = %q; want %q", body.Strategy, "bar-position")
	}

	if len(body.Tokens) == 0 {
		t.Fatal("want a non-empty token list")
	}
	if body.Tokens[0].Token != "PAD_0" {
		t.Errorf("first token = %q; want %q", body.Tokens[0].Token, "PAD_0")
	}
}

// ---------------------------------------------------------------------------
// POST /tokenize
// ---------------------------------------------------------------------------

func TestTokenize_ReturnsSequence(t *testing.T) {
	h := NewHandler(realCodec(t, tokenizer.DefaultConfig()))

	rec := postJSON(t, h, "/tokenize", testPerformance())
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body tokenizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if len(body.Sequence.IDs) == 0 {
		t.Error("want a non-empty id sequence")
	}

	if body.Diagnostics == nil {
		t.Error("diagnostics should serialize as an empty array, not null")
	}

	if body.Sequence.Config.StrategyName != "bar-position" {
		t.Errorf("embedded strategy = %q; want %q", body.Sequence.Config.StrategyName, "bar-position")
	}
}

func TestTokenize_MethodNotAllowed(t *testing.T) {
	h := NewHandler(realCodec(t, tokenizer.DefaultConfig()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tokenize", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestTokenize_InvalidJSON(t *testing.T) {
	h := NewHandler(realCodec(t, tokenizer.DefaultConfig()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tokenize", bytes.NewReader([]byte("{not json")))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestTokenize_BodyTooLarge(t *testing.T) {
	h := NewHandler(realCodec(t, tokenizer.DefaultConfig()), WithMaxBodyBytes(16))

	rec := postJSON(t, h, "/tokenize", testPerformance())
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}
}

func TestTokenize_MalformedPerformance(t *testing.T) {
	h := NewHandler(realCodec(t, tokenizer.DefaultConfig()))

	perf := testPerformance()
	perf.Tracks[0].Notes[0].End = perf.Tracks[0].Notes[0].Start

	rec := postJSON(t, h, "/tokenize", perf)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTokenize_InternalError(t *testing.T) {
	stub := &stubCodec{
		cfg: tokenizer.DefaultConfig(),
		onEncode: func(*event.Performance) (tokenizer.Sequence, []tokenizer.Diagnostic, error) {
			return tokenizer.Sequence{}, nil, errors.New("boom")
		},
	}
	h := NewHandler(stub)

	rec := postJSON(t, h, "/tokenize", testPerformance())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
}

func TestTokenize_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	stub := &stubCodec{
		cfg: tokenizer.DefaultConfig(),
		onEncode: func(*event.Performance) (tokenizer.Sequence, []tokenizer.Diagnostic, error) {
			<-release
			return tokenizer.Sequence{}, nil, nil
		},
	}
	h := NewHandler(stub, WithRequestTimeout(20*time.Millisecond))

	rec := postJSON(t, h, "/tokenize", testPerformance())
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("want 504, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /detokenize
// ---------------------------------------------------------------------------

func TestDetokenize_RoundTrip(t *testing.T) {
	codec := realCodec(t, tokenizer.DefaultConfig())
	h := NewHandler(codec)

	seq, _, err := codec.Encode(testPerformance())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	rec := postJSON(t, h, "/detokenize", seq)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body detokenizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.Performance == nil || body.Performance.NoteCount() != 2 {
		t.Fatalf("performance = %+v; want 2 notes", body.Performance)
	}
}

func TestDetokenize_UsesEmbeddedConfig(t *testing.T) {
	// The server runs bar-position; the request carries a time-shift
	// sequence, so the handler must build a codec from the embedded config.
	other := tokenizer.DefaultConfig()
	other.StrategyName = "time-shift"
	otherCodec := realCodec(t, other)
	seq, _, err := otherCodec.Encode(testPerformance())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var built int
	old := newCodec
	newCodec = func(cfg tokenizer.Config) (Codec, error) {
		built++
		return tokenizer.New(cfg)
	}
	defer func() { newCodec = old }()

	h := NewHandler(realCodec(t, tokenizer.DefaultConfig()))

	rec := postJSON(t, h, "/detokenize", seq)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if built != 1 {
		t.Errorf("codec built %d times; want 1", built)
	}

	var body detokenizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Performance.NoteCount() != 2 {
		t.Errorf("decoded %d notes; want 2", body.Performance.NoteCount())
	}
}

func TestDetokenize_EmbeddedConfigWinsOverMatchingStrategy(t *testing.T) {
	// Same strategy and resolution as the server's codec, but a
	// different velocity bin count, so every id past the specials
	// shifts. The decode must use the vocabulary the sequence was
	// encoded with, not the server's.
	other := tokenizer.DefaultConfig()
	other.VelocityBins = 127
	otherCodec := realCodec(t, other)
	seq, _, err := otherCodec.Encode(testPerformance())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	h := NewHandler(realCodec(t, tokenizer.DefaultConfig()))

	rec := postJSON(t, h, "/detokenize", seq)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body detokenizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Performance.NoteCount() != 2 {
		t.Fatalf("decoded %d notes; want 2", body.Performance.NoteCount())
	}
	got := body.Performance.Tracks[0].Notes
	if got[0].Velocity != 80 || got[1].Velocity != 100 {
		t.Errorf("velocities = %d, %d; want 80, 100", got[0].Velocity, got[1].Velocity)
	}
	if len(body.Diagnostics) != 0 {
		t.Errorf("diagnostics = %+v; want none", body.Diagnostics)
	}
}

func TestDetokenize_BadEmbeddedConfig(t *testing.T) {
	h := NewHandler(realCodec(t, tokenizer.DefaultConfig()))

	seq := tokenizer.Sequence{IDs: []int{0, 1, 2}}
	seq.Config.StrategyName = "nonsense"

	rec := postJSON(t, h, "/detokenize", seq)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// ParseLogLevel
// ---------------------------------------------------------------------------

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", "INFO", false},
		{"info", "INFO", false},
		{"debug", "DEBUG", false},
		{"warn", "WARN", false},
		{"warning", "WARN", false},
		{"error", "ERROR", false},
		{"ERROR", "ERROR", false},
		{"verbose", "", true},
	}

	for _, tt := range tests {
		t.Run("level "+tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLogLevel(%q) = %v; want error", tt.input, got)
				}

				return
			}

			if err != nil {
				t.Errorf("ParseLogLevel(%q) unexpected error: %v", tt.input, err)
				return
			}

			if got.String() != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v; want %v", tt.input, got, tt.want)
			}
		})
	}
}
