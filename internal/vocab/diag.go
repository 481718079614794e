package vocab

import (
	"encoding/json"
	"fmt"
)

// Policy decides what happens to a value outside its configured range.
type Policy int

const (
	// PolicyClip clamps the value to the nearest range boundary.
	PolicyClip Policy = iota
	// PolicyDrop discards the note or change carrying the value.
	PolicyDrop
)

func (p Policy) String() string {
	switch p {
	case PolicyClip:
		return "clip"
	case PolicyDrop:
		return "drop"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "clip":
		return PolicyClip, nil
	case "drop":
		return PolicyDrop, nil
	default:
		return PolicyClip, fmt.Errorf("unknown out-of-range policy %q (want clip|drop)", s)
	}
}

// DiagKind identifies a recoverable anomaly absorbed during an encode or
// decode pass. Structural failures are errors, not diagnostics.
type DiagKind int

const (
	// DiagOutOfRange reports a field value clipped to its range boundary.
	DiagOutOfRange DiagKind = iota
	// DiagNoteDropped reports a note discarded under PolicyDrop.
	DiagNoteDropped
	// DiagInvalidTokenID reports a decode id outside the vocabulary.
	DiagInvalidTokenID
	// DiagTransitionViolation reports an illegal family adjacency.
	DiagTransitionViolation
)

// MarshalJSON renders the kind as its name so diagnostics stay readable
// in API responses and saved reports.
func (k DiagKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *DiagKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "OutOfRangeValue":
		*k = DiagOutOfRange
	case "NoteDropped":
		*k = DiagNoteDropped
	case "InvalidTokenId":
		*k = DiagInvalidTokenID
	case "TransitionViolation":
		*k = DiagTransitionViolation
	default:
		return fmt.Errorf("unknown diagnostic kind %q", s)
	}
	return nil
}

func (k DiagKind) String() string {
	switch k {
	case DiagOutOfRange:
		return "OutOfRangeValue"
	case DiagNoteDropped:
		return "NoteDropped"
	case DiagInvalidTokenID:
		return "InvalidTokenId"
	case DiagTransitionViolation:
		return "TransitionViolation"
	default:
		return fmt.Sprintf("DiagKind(%d)", int(k))
	}
}

// Diagnostic is one absorbed anomaly. Index points at the offending
// token (decode) or note (encode) in its containing sequence.
type Diagnostic struct {
	Kind    DiagKind `json:"kind"`
	Index   int      `json:"index"`
	Message string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at %d: %s", d.Kind, d.Index, d.Message)
}
