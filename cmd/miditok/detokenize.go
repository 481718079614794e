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

func newDetokenizeCmd() *cobra.Command {
	var in string
	var out string
	var strict bool

	cmd := &cobra.Command{
		Use:   "detokenize",
		Short: "Convert a token sequence back to a MIDI file or performance JSON",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := requireConfig(); err != nil {
				return err
			}

			seq, err := loadSequence(in, os.Stdin)
			if err != nil {
				return err
			}

			// The sequence carries the configuration it was encoded
			// with; decoding always uses it.
			engineCfg := seq.Config
			engineCfg.Strict = strict
			tok, err := tokenizer.New(engineCfg)
			if err != nil {
				return err
			}

			perf, diags, err := tok.Decode(seq)
			if err != nil {
				return err
			}
			reportDiagnostics(diags)

			slog.Info("detokenized",
				slog.String("strategy", engineCfg.StrategyName),
				slog.Int("tokens", seq.Len()),
				slog.Int("notes", perf.NoteCount()),
				slog.Int("diagnostics", len(diags)),
			)

			return writePerformance(out, perf, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&in, "input", "", "Input sequence JSON ('-' for stdin)")
	cmd.Flags().StringVar(&out, "out", "-", "Output MIDI file or performance JSON path ('-' for JSON on stdout)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on transition violations instead of skipping")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func loadSequence(path string, stdin io.Reader) (tokenizer.Sequence, error) {
	if path == "-" {
		var seq tokenizer.Sequence
		if err := json.NewDecoder(stdin).Decode(&seq); err != nil {
			return tokenizer.Sequence{}, fmt.Errorf("decode sequence from stdin: %w", err)
		}
		if err := seq.Config.Resolve(); err != nil {
			return tokenizer.Sequence{}, err
		}
		return seq, nil
	}
	return tokenizer.LoadSequence(path)
}

func writePerformance(outPath string, p *event.Performance, stdout io.Writer) error {
	if outPath == "-" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".mid", ".midi", ".smf":
		return smfio.WriteFile(outPath, p)
	default:
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("encode performance: %w", err)
		}
		return os.WriteFile(outPath, append(data, '\n'), 0o644)
	}
}
