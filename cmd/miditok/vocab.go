package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Natooz/MIDITok/internal/tokenizer"
)

func newVocabCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Print the vocabulary of the configured tokenizer",
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

			voc := tok.Vocabulary()
			if asJSON {
				type entry struct {
					ID    int    `json:"id"`
					Token string `json:"token"`
				}
				entries := make([]entry, voc.Len())
				for id := 0; id < voc.Len(); id++ {
					t, _ := voc.TokenAt(id)
					entries[id] = entry{ID: id, Token: t.String()}
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"strategy": engineCfg.StrategyName,
					"size":     voc.Len(),
					"tokens":   entries,
				})
			}

			for id := 0; id < voc.Len(); id++ {
				t, _ := voc.TokenAt(id)
				fmt.Printf("%d\t%s\n", id, t)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the vocabulary as JSON")

	return cmd
}
