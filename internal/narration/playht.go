package narration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/autopdf/internal/config"
	"github.com/go-resty/resty/v2"
)

// maxErrorBody bounds how much of an upstream error reply is kept.
const maxErrorBody = 64 << 10

// Synthesizer produces an audio stream for a normalized request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (io.ReadCloser, error)
}

// UpstreamError carries a non-2xx reply from the TTS API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.Status, e.Body)
}

// PlayHT implements Synthesizer against the Play.ht streaming endpoint.
type PlayHT struct {
	http   *resty.Client
	url    string
	apiKey string
	userID string
}

// NewPlayHT creates a TTS client from configuration. cfg.Timeout bounds the
// wait for response headers only; the audio stream itself lasts as long as
// the caller's context.
func NewPlayHT(cfg config.PlayHTConfig) *PlayHT {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	client := resty.New().SetTransport(transport)

	return &PlayHT{
		http:   client,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		userID: cfg.UserID,
	}
}

type playHTBody struct {
	Text         string   `json:"text"`
	Voice        string   `json:"voice"`
	OutputFormat string   `json:"output_format"`
	VoiceEngine  string   `json:"voice_engine"`
	Speed        *float64 `json:"speed,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

// Synthesize requests speech and returns the raw audio stream. The caller
// must close it. Cancelling ctx aborts the upstream transfer.
func (p *PlayHT) Synthesize(ctx context.Context, req Request) (io.ReadCloser, error) {
	resp, err := p.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", req.ContentType()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", p.apiKey).
		SetHeader("X-USER-ID", p.userID).
		SetBody(playHTBody{
			Text:         req.Text,
			Voice:        req.Voice,
			OutputFormat: req.OutputFormat,
			VoiceEngine:  req.Model,
			Speed:        req.Speed,
			Temperature:  req.Temperature,
		}).
		Post(p.url)
	if err != nil {
		return nil, fmt.Errorf("request speech: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		defer body.Close()
		data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return nil, &UpstreamError{Status: resp.StatusCode(), Body: strings.TrimSpace(string(data))}
	}
	return body, nil
}
