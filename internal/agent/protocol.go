// Package agent implements the hosted agent chat: the registry endpoints, the
// upstream socket session with its transcript, and the browser relay.
package agent

import (
	"encoding/json"
	"fmt"
)

// Frame types on the upstream agent socket.
const (
	FrameSetup       = "setup"
	FrameTextIn      = "textIn"
	FrameAudioIn     = "audioIn"
	FrameTextOut     = "textOut"
	FrameTextStream  = "textStream"
	FrameAudioStream = "audioStream"
	FrameError       = "error"
)

// Frame is one JSON message on the agent socket.
type Frame struct {
	Type   string `json:"type"`
	Data   string `json:"data,omitempty"`
	APIKey string `json:"apiKey,omitempty"`
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeFrame parses an inbound frame. Non-string data (error objects, for
// instance) is kept as its raw JSON text.
func DecodeFrame(b []byte) (Frame, error) {
	var in inboundFrame
	if err := json.Unmarshal(b, &in); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if in.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}

	f := Frame{Type: in.Type}
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return f, nil
	}
	if err := json.Unmarshal(in.Data, &f.Data); err != nil {
		f.Data = string(in.Data)
	}
	return f, nil
}
