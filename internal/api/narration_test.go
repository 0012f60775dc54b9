package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/autopdf/internal/document"
	"github.com/ashureev/autopdf/internal/document/documenttest"
	"github.com/ashureev/autopdf/internal/narration"
	"github.com/ashureev/autopdf/internal/voice"
)

// fakeSynth returns the request text as audio. Texts listed in block wait
// for cancellation instead.
type fakeSynth struct {
	block   map[string]bool
	started chan string
	err     error

	mu   sync.Mutex
	reqs []narration.Request
}

func (f *fakeSynth) Synthesize(ctx context.Context, req narration.Request) (io.ReadCloser, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- req.Text
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.block[req.Text] {
		<-ctx.Done()
		return nil, context.Cause(ctx)
	}
	return io.NopCloser(strings.NewReader("audio:" + req.Text)), nil
}

func newNarrationRouter(synth narration.Synthesizer, cache *document.Cache) http.Handler {
	r := newRouter()
	NewDocumentHandler(cache, 1<<20).RegisterRoutes(r)
	NewNarrationHandler(synth, narration.NewNarrator(), cache, nil).RegisterRoutes(r)
	return r
}

func TestFetchTTSStreamsAudio(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{}
	h := newNarrationRouter(synth, document.NewCache())

	rec := serve(h, newRequest(http.MethodPost, "/api/fetch-tts", strings.NewReader(`{"text":"hello","output_format":"wav"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("Content-Type = %q, want audio/wav", ct)
	}
	if rec.Body.String() != "audio:hello" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if synth.reqs[0].Model != narration.DefaultModel {
		t.Fatalf("model = %q, want default", synth.reqs[0].Model)
	}
}

func TestFetchTTSValidation(t *testing.T) {
	t.Parallel()

	h := newNarrationRouter(&fakeSynth{}, document.NewCache())
	for _, body := range []string{`{"text":"   "}`, `{"text":"x","speed":3}`, `{"text":"x","temperature":-1}`, `{"text":"x","voice":"nobody"}`} {
		if rec := serve(h, newRequest(http.MethodPost, "/api/fetch-tts", strings.NewReader(body))); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestFetchTTSPropagatesUpstreamStatus(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{err: &narration.UpstreamError{Status: http.StatusUnauthorized, Body: "bad key"}}
	h := newNarrationRouter(synth, document.NewCache())

	rec := serve(h, newRequest(http.MethodPost, "/api/fetch-tts", strings.NewReader(`{"text":"x"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var got map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&got)
	if got["error"] != "API error: 401 - bad key" {
		t.Fatalf("error = %q", got["error"])
	}
}

func TestNarratePageSupersedesPrevious(t *testing.T) {
	t.Parallel()

	cache := document.NewCache()
	synth := &fakeSynth{block: map[string]bool{"first page": true}, started: make(chan string, 2)}
	h := newNarrationRouter(synth, cache)

	if rec := serve(h, uploadRequest(t, "book.pdf", documenttest.BuildPDF("first page", "second page"))); rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rec.Code)
	}

	firstDone := make(chan int, 1)
	go func() {
		rec := serve(h, newRequest(http.MethodPost, "/api/documents/current/pages/1/narrate", nil))
		firstDone <- rec.Code
	}()

	select {
	case text := <-synth.started:
		if text != "first page" {
			t.Fatalf("first synthesis text = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first narration never started")
	}

	rec := serve(h, newRequest(http.MethodPost, "/api/documents/current/pages/2/narrate", strings.NewReader(`{"voice":"`+voice.All()[0].Value+`"}`)))
	if rec.Code != http.StatusOK || rec.Body.String() != "audio:second page" {
		t.Fatalf("second narration = %d %q", rec.Code, rec.Body.String())
	}

	select {
	case code := <-firstDone:
		if code != http.StatusConflict {
			t.Fatalf("superseded narration status = %d, want 409", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first narration was not cancelled")
	}
}

func TestNarratePageWithoutDocument(t *testing.T) {
	t.Parallel()

	h := newNarrationRouter(&fakeSynth{}, document.NewCache())
	if rec := serve(h, newRequest(http.MethodPost, "/api/documents/current/pages/1/narrate", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()

	h := newNarrationRouter(&fakeSynth{}, document.NewCache())
	rec := serve(h, newRequest(http.MethodGet, "/api/voices", nil))
	var got struct {
		Voices  []map[string]any `json:"voices"`
		Default string           `json:"default"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Voices) != 3 || got.Default == "" {
		t.Fatalf("voices = %+v", got)
	}
}
