package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Natooz/MIDITok/internal/strategy"
)

// Sequence is the persisted exchange form of one encode result: the ids
// (flat for simple strategies, fixed-width words for compound ones)
// together with the configuration needed to rebuild the identical
// vocabulary, so a decode never re-derives defaults.
type Sequence struct {
	Config Config  `json:"config"`
	IDs    []int   `json:"ids,omitempty"`
	Words  [][]int `json:"words,omitempty"`
}

// Tokens returns the strategy-level view of the sequence.
func (s Sequence) Tokens() strategy.Tokens {
	return strategy.Tokens{IDs: s.IDs, Words: s.Words}
}

// Len returns the number of steps in the sequence.
func (s Sequence) Len() int { return s.Tokens().Len() }

// SaveSequence writes a sequence as indented JSON.
func SaveSequence(path string, seq Sequence) error {
	data, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sequence: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sequence: %w", err)
	}
	return nil
}

// LoadSequence reads a sequence written by SaveSequence and resolves
// the embedded configuration.
func LoadSequence(path string) (Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sequence{}, fmt.Errorf("read sequence: %w", err)
	}
	var seq Sequence
	if err := json.Unmarshal(data, &seq); err != nil {
		return Sequence{}, fmt.Errorf("decode sequence: %w", err)
	}
	if err := seq.Config.Resolve(); err != nil {
		return Sequence{}, err
	}
	return seq, nil
}
