package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Natooz/MIDITok/internal/tokenizer"
)

func newValidateCmd() *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a token sequence against the transition rules",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := requireConfig(); err != nil {
				return err
			}

			seq, err := loadSequence(in, os.Stdin)
			if err != nil {
				return err
			}

			tok, err := tokenizer.New(seq.Config)
			if err != nil {
				return err
			}

			ok, badIndex := tok.Validate(seq.Tokens())
			if !ok {
				return fmt.Errorf("invalid transition at index %d", badIndex)
			}

			_, err = fmt.Fprintln(os.Stdout, "ok")
			return err
		},
	}

	cmd.Flags().StringVar(&in, "input", "", "Input sequence JSON ('-' for stdin)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
