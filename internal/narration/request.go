// Package narration turns page text into speech through the hosted TTS API
// and makes sure only the latest narration per tab stays in flight.
package narration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/autopdf/internal/voice"
)

// DefaultModel is the voice engine used when the request names none.
const DefaultModel = "PlayDialog"

// Output formats accepted by the TTS API.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
)

var (
	// ErrEmptyText is returned when there is nothing to narrate.
	ErrEmptyText = errors.New("no text available to generate audio")
	// ErrInvalidParameter wraps out-of-range tuning values.
	ErrInvalidParameter = errors.New("invalid narration parameter")
)

// Request describes one narration.
type Request struct {
	Text         string   `json:"text"`
	Voice        string   `json:"voice"`
	Model        string   `json:"model"`
	Speed        *float64 `json:"speed,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	OutputFormat string   `json:"output_format,omitempty"`
	// VoiceEngine is the upstream name for Model, accepted for older clients.
	VoiceEngine string `json:"voice_engine,omitempty"`
}

// Normalize fills defaults and validates ranges.
func (r *Request) Normalize() error {
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return ErrEmptyText
	}
	if r.Voice == "" {
		r.Voice = voice.Default().Value
	}
	if _, ok := voice.Lookup(r.Voice); !ok {
		return fmt.Errorf("%w: unknown voice %q", ErrInvalidParameter, r.Voice)
	}
	if r.Model == "" {
		r.Model = r.VoiceEngine
	}
	if r.Model == "" {
		r.Model = DefaultModel
	}
	r.VoiceEngine = ""

	r.OutputFormat = strings.ToLower(r.OutputFormat)
	switch r.OutputFormat {
	case "":
		r.OutputFormat = FormatMP3
	case FormatMP3, FormatWAV:
	default:
		return fmt.Errorf("%w: output format %q", ErrInvalidParameter, r.OutputFormat)
	}

	if r.Speed != nil && (*r.Speed < 0.5 || *r.Speed > 2) {
		return fmt.Errorf("%w: speed %.2f outside [0.5, 2]", ErrInvalidParameter, *r.Speed)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 1) {
		return fmt.Errorf("%w: temperature %.2f outside [0, 1]", ErrInvalidParameter, *r.Temperature)
	}
	return nil
}

// ContentType returns the MIME type of the audio the request produces.
func (r *Request) ContentType() string {
	if r.OutputFormat == FormatWAV {
		return "audio/wav"
	}
	return "audio/mpeg"
}
