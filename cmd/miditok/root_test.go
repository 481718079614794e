package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Natooz/MIDITok/internal/config"
	"github.com/Natooz/MIDITok/internal/testutil"
	"github.com/Natooz/MIDITok/internal/tokenizer"
)

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"tokenize", "detokenize", "vocab", "validate", "serve", "health"}
	for _, name := range want {
		found := false

		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected subcommand %q not found in root", name)
		}
	}
}

func TestNewRootCmd_HasPersistentConfigFlag(t *testing.T) {
	root := NewRootCmd()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config persistent flag to be registered")
	}
	if root.PersistentFlags().Lookup("strategy") == nil {
		t.Error("expected --strategy persistent flag to be registered")
	}
}

func TestSetupLogger_DoesNotPanic(_ *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		setupLogger(level)
	}
}

func TestSetupLogger_InvalidLevelFallsBackToInfo(_ *testing.T) {
	// Should not panic on invalid level.
	setupLogger("not-a-level")
}

func TestRequireConfig_FailsWhenNotInitialized(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	// Zero-value config has an empty strategy → requireConfig returns error.
	activeCfg = config.Config{}

	_, err := requireConfig()
	if err == nil {
		t.Fatal("expected error when config is not loaded")
	}
}

func TestRequireConfig_SucceedsWhenLoaded(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	activeCfg = config.DefaultConfig()

	got, err := requireConfig()
	if err != nil {
		t.Fatalf("requireConfig returned unexpected error: %v", err)
	}

	if got.Tokenizer.Strategy != "bar-position" {
		t.Errorf("unexpected strategy: %q", got.Tokenizer.Strategy)
	}
}

// --- loadPerformance / writePerformance / loadSequence ---

func TestLoadPerformance_FromStdin(t *testing.T) {
	p := testutil.Performance(480, testutil.Note(60, 80, 0, 480))
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := loadPerformance("-", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("loadPerformance() error = %v", err)
	}
	if got.NoteCount() != 1 {
		t.Errorf("notes = %d; want 1", got.NoteCount())
	}
}

func TestLoadPerformance_FromMIDIFile(t *testing.T) {
	p := testutil.Performance(480, testutil.Note(60, 80, 0, 480))
	path := testutil.WriteTempSMF(t, p)

	got, err := loadPerformance(path, nil)
	if err != nil {
		t.Fatalf("loadPerformance() error = %v", err)
	}
	if got.Resolution != 480 || got.NoteCount() != 1 {
		t.Errorf("resolution = %d, notes = %d; want 480, 1", got.Resolution, got.NoteCount())
	}
}

func TestLoadPerformance_UnsupportedExtension(t *testing.T) {
	if _, err := loadPerformance("song.wav", nil); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestWritePerformance_JSONToStdout(t *testing.T) {
	p := testutil.Performance(480, testutil.Note(60, 80, 0, 480))

	var buf bytes.Buffer
	if err := writePerformance("-", p, &buf); err != nil {
		t.Fatalf("writePerformance() error = %v", err)
	}
	if !strings.Contains(buf.String(), "\"resolution\": 480") {
		t.Errorf("stdout output missing resolution field: %s", buf.String())
	}
}

func TestWritePerformance_MIDIRoundTrip(t *testing.T) {
	p := testutil.Performance(480,
		testutil.Note(60, 80, 0, 480),
		testutil.Note(64, 100, 480, 960),
	)

	path := filepath.Join(t.TempDir(), "out.mid")
	if err := writePerformance(path, p, nil); err != nil {
		t.Fatalf("writePerformance() error = %v", err)
	}

	got, err := loadPerformance(path, nil)
	if err != nil {
		t.Fatalf("loadPerformance() error = %v", err)
	}
	if got.NoteCount() != 2 {
		t.Errorf("notes = %d; want 2", got.NoteCount())
	}
}

func TestLoadSequence_FromStdinResolvesConfig(t *testing.T) {
	tok, err := tokenizer.New(tokenizer.DefaultConfig())
	if err != nil {
		t.Fatalf("tokenizer.New() error = %v", err)
	}
	seq, _, err := tok.Encode(testutil.Performance(480, testutil.Note(60, 80, 0, 480)))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	data, err := json.Marshal(seq)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := loadSequence("-", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("loadSequence() error = %v", err)
	}

	if got.Config.StrategyName != "bar-position" {
		t.Errorf("strategy = %q; want %q", got.Config.StrategyName, "bar-position")
	}
	if len(got.IDs) != len(seq.IDs) {
		t.Errorf("ids = %d; want %d", len(got.IDs), len(seq.IDs))
	}

	// Resolve must have filled the derived policy fields.
	if got.Config.PitchPolicyName != "drop" {
		t.Errorf("pitch policy = %q; want %q", got.Config.PitchPolicyName, "drop")
	}
}

func TestWriteSequence_ToFileAndBack(t *testing.T) {
	tok, err := tokenizer.New(tokenizer.DefaultConfig())
	if err != nil {
		t.Fatalf("tokenizer.New() error = %v", err)
	}
	seq, _, err := tok.Encode(testutil.Performance(480, testutil.Note(60, 80, 0, 480)))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "seq.json")
	if err := writeSequence(path, seq, nil); err != nil {
		t.Fatalf("writeSequence() error = %v", err)
	}

	got, err := loadSequence(path, nil)
	if err != nil {
		t.Fatalf("loadSequence() error = %v", err)
	}
	if len(got.IDs) != len(seq.IDs) {
		t.Errorf("ids = %d; want %d", len(got.IDs), len(seq.IDs))
	}
}
