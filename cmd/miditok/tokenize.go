package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/smfio"
	"github.com/Natooz/MIDITok/internal/tokenizer"
)

func newTokenizeCmd() *cobra.Command {
	var in string
	var out string

	cmd := &cobra.Command{
		Use:   "tokenize",
		Short: "Convert a MIDI file or performance JSON to a token sequence",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			engineCfg, err := cfg.Tokenizer.ToEngine()
			if err != nil {
				return err
			}
			tok, err := tokenizer.New(engineCfg)
			if err != nil {
				return err
			}

			perf, err := loadPerformance(in, os.Stdin)
			if err != nil {
				return err
			}

			seq, diags, err := tok.Encode(perf)
			if err != nil {
				return err
			}
			reportDiagnostics(diags)

			slog.Info("tokenized",
				slog.String("strategy", engineCfg.StrategyName),
				slog.Int("notes", perf.NoteCount()),
				slog.Int("tokens", seq.Len()),
				slog.Int("diagnostics", len(diags)),
			)

			return writeSequence(out, seq, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&in, "input", "", "Input MIDI file or performance JSON ('-' for JSON on stdin)")
	cmd.Flags().StringVar(&out, "out", "-", "Output sequence JSON path ('-' for stdout)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// loadPerformance reads a performance from a MIDI file or a JSON file,
// chosen by extension. "-" reads performance JSON from stdin.
func loadPerformance(path string, stdin io.Reader) (*event.Performance, error) {
	if path == "-" {
		var p event.Performance
		if err := json.NewDecoder(stdin).Decode(&p); err != nil {
			return nil, fmt.Errorf("decode performance from stdin: %w", err)
		}
		return &p, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi", ".smf":
		return smfio.ReadFile(path)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read performance: %w", err)
		}
		var p event.Performance
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode performance %s: %w", path, err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unsupported input %q (want .mid, .midi, or .json)", path)
	}
}

func writeSequence(outPath string, seq tokenizer.Sequence, stdout io.Writer) error {
	if outPath == "-" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(seq)
	}
	return tokenizer.SaveSequence(outPath, seq)
}

func reportDiagnostics(diags []tokenizer.Diagnostic) {
	for _, d := range diags {
		slog.Warn("diagnostic",
			slog.String("kind", d.Kind.String()),
			slog.Int("index", d.Index),
			slog.String("message", d.Message),
		)
	}
}
