package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/autopdf/internal/document"
	"github.com/ashureev/autopdf/internal/identity"
	"github.com/ashureev/autopdf/internal/metrics"
	"github.com/ashureev/autopdf/internal/narration"
	"github.com/ashureev/autopdf/internal/voice"
)

// maxNarrationBody bounds narration request bodies, which carry page text.
const maxNarrationBody = 1 << 20

// NarrationHandler proxies text-to-speech requests. A new narration from a tab
// supersedes the one it has in flight.
type NarrationHandler struct {
	synth    narration.Synthesizer
	narrator *narration.Narrator
	cache    *document.Cache
	limit    func(http.Handler) http.Handler
}

// NewNarrationHandler creates a narration handler. limit wraps the synthesis
// routes; nil disables limiting.
func NewNarrationHandler(synth narration.Synthesizer, narrator *narration.Narrator, cache *document.Cache, limit func(http.Handler) http.Handler) *NarrationHandler {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	return &NarrationHandler{synth: synth, narrator: narrator, cache: cache, limit: limit}
}

// RegisterRoutes registers narration routes.
func (h *NarrationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/voices", h.Voices)
	r.With(h.limit).Post("/api/fetch-tts", h.FetchTTS)
	r.With(h.limit).Post("/api/documents/current/pages/{page}/narrate", h.NarratePage)
}

// Voices handles GET /api/voices.
func (h *NarrationHandler) Voices(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"voices": voice.All(), "default": voice.Default().Value})
}

// FetchTTS handles POST /api/fetch-tts with a raw narration request.
func (h *NarrationHandler) FetchTTS(w http.ResponseWriter, r *http.Request) {
	var req narration.Request
	if err := Decode(w, r, maxNarrationBody, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.narrate(w, r, req)
}

// NarratePage handles POST /api/documents/current/pages/{page}/narrate. The
// optional body carries voice and tuning; the text is the page's.
func (h *NarrationHandler) NarratePage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid page number")
		return
	}

	var req narration.Request
	if err := Decode(w, r, maxNarrationBody, &req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.cache.Get(identity.TabKey(r.Context()))
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	text, err := doc.Page(n)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	req.Text = text
	h.narrate(w, r, req)
}

func (h *NarrationHandler) narrate(w http.ResponseWriter, r *http.Request, req narration.Request) {
	if err := req.Normalize(); err != nil {
		metrics.NarrationRequests.WithLabelValues(metrics.OutcomeRejected).Inc()
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	key := identity.TabKey(r.Context())
	ctx, release := h.narrator.Begin(r.Context(), key)
	defer release()
	log := slog.With("user_id", identity.UserIDFromContext(r.Context()), "session_id", identity.SessionIDFromContext(r.Context()))

	start := time.Now()
	body, err := h.synth.Synthesize(ctx, req)
	if err != nil {
		h.writeSynthesisError(ctx, w, log, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", req.ContentType())
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	written, err := copyFlush(w, body)
	switch {
	case err != nil && narration.Superseded(ctx):
		metrics.NarrationRequests.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		log.Info("Narration superseded mid-stream", "bytes", written)
	case err != nil:
		metrics.NarrationRequests.WithLabelValues(metrics.OutcomeError).Inc()
		log.Warn("Narration stream interrupted", "error", err, "bytes", written)
	default:
		metrics.NarrationRequests.WithLabelValues(metrics.OutcomeOK).Inc()
		metrics.NarrationDuration.Observe(time.Since(start).Seconds())
		log.Info("Narration delivered", "bytes", written, "voice", req.Voice, "format", req.OutputFormat)
	}
}

func (h *NarrationHandler) writeSynthesisError(ctx context.Context, w http.ResponseWriter, log *slog.Logger, err error) {
	var upstream *narration.UpstreamError
	switch {
	case narration.Superseded(ctx):
		metrics.NarrationRequests.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		log.Info("Narration superseded before audio started")
		Error(w, http.StatusConflict, narration.ErrSuperseded.Error())
	case errors.As(err, &upstream):
		metrics.NarrationRequests.WithLabelValues(metrics.OutcomeUpstream).Inc()
		log.Warn("TTS API rejected request", "status", upstream.Status)
		Error(w, upstream.Status, upstream.Error())
	case errors.Is(err, context.Canceled):
		log.Debug("Narration cancelled by client")
	default:
		metrics.NarrationRequests.WithLabelValues(metrics.OutcomeError).Inc()
		log.Error("Narration failed", "error", err)
		Error(w, http.StatusBadGateway, "Failed to generate audio")
	}
}

// copyFlush streams src to w, flushing after every chunk so audio starts
// playing before the upstream finishes.
func copyFlush(w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32<<10)
	var written int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}
