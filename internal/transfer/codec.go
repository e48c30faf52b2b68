// Package transfer moves journeys between devices as versioned JSON
// envelopes, independently of the persistence store.
package transfer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AnthonyJS/SignalStrength/internal/journey"
)

const FormatVersion = "1.0"

// Envelope is the transfer file layout.
type Envelope struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	Journey    journey.Journey `json:"journey"`
}

// FormatError marks a malformed import payload. It is fatal to the import
// operation only.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "transfer: " + e.Reason
}

// Export wraps the journey in a versioned envelope.
func Export(j journey.Journey, at time.Time) ([]byte, error) {
	env := Envelope{Version: FormatVersion, ExportedAt: at.UTC(), Journey: j.Clone()}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transfer: marshal: %w", err)
	}
	return data, nil
}

// Import parses an envelope and returns the fully re-validated journey. Any
// payload without a journey object fails with a FormatError.
func Import(data []byte) (journey.Journey, error) {
	var raw struct {
		Version string          `json:"version"`
		Journey json.RawMessage `json:"journey"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return journey.Journey{}, &FormatError{Reason: "payload is not valid JSON: " + err.Error()}
	}
	if len(raw.Journey) == 0 || string(raw.Journey) == "null" {
		return journey.Journey{}, &FormatError{Reason: "payload has no journey field"}
	}
	if raw.Version != FormatVersion {
		return journey.Journey{}, &FormatError{Reason: fmt.Sprintf("unsupported version %q", raw.Version)}
	}

	var j journey.Journey
	if err := json.Unmarshal(raw.Journey, &j); err != nil {
		return journey.Journey{}, &FormatError{Reason: "journey record is malformed: " + err.Error()}
	}
	if j.Samples == nil {
		j.Samples = []journey.Sample{}
	}
	if err := j.Validate(); err != nil {
		return journey.Journey{}, err
	}
	return j, nil
}

// Filename derives a collision-safe export name from the journey name:
// non-alphanumeric runs collapse to single dashes and the export time is
// appended.
func Filename(name string, at time.Time) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "journey"
	}
	return fmt.Sprintf("%s-%d.json", slug, at.UnixMilli())
}
