package api

import (
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
)

// multipartOverhead is allowed on top of the file size limit for form framing.
const multipartOverhead = 1 << 20

// DocumentHandler serves the PDF upload, text and viewer endpoints. Each
// browser tab has at most one current document.
type DocumentHandler struct {
	cache     *document.Cache
	maxUpload int64
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(cache *document.Cache, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{cache: cache, maxUpload: maxUpload}
}

// RegisterRoutes registers document routes.
func (h *DocumentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/documents", h.Upload)
	r.Get("/api/documents/current", h.Current)
	r.Delete("/api/documents/current", h.Clear)
	r.Get("/api/documents/current/text", h.Text)
	r.Get("/api/documents/current/pages/{page}", h.Page)
	r.Put("/api/documents/current/view", h.UpdateView)
	r.Post("/api/documents/current/search", h.Search)
	r.Post("/api/documents/current/search/{direction}", h.StepSearch)
}

type documentResponse struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Size     int64              `json:"size"`
	NumPages int                `json:"numPages"`
	Metadata document.Metadata  `json:"metadata"`
	LoadedAt time.Time          `json:"loadedAt"`
	View     document.ViewState `json:"view"`
}

func newDocumentResponse(doc *document.Document, v *document.Viewer) documentResponse {
	return documentResponse{
		ID:       doc.ID,
		Name:     doc.Name,
		Size:     doc.Size,
		NumPages: doc.NumPages(),
		Metadata: doc.Metadata,
		LoadedAt: doc.LoadedAt,
		View:     v.State(),
	}
}

// Upload handles POST /api/documents with the PDF in multipart field "file".
// The previous document of the tab is discarded before the new one is read.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	key := identity.TabKey(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.cache.Clear(key)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.DocumentsLoaded.WithLabelValues(metrics.OutcomeRejected).Inc()
			Error(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		Error(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		h.cache.Clear(key)
		slog.Error("Failed to read upload", "error", err)
		Error(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if int64(len(data)) > h.maxUpload {
		h.cache.Clear(key)
		metrics.DocumentsLoaded.WithLabelValues(metrics.OutcomeRejected).Inc()
		Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	doc, err := h.cache.Load(key, header.Filename, data)
	switch {
	case errors.Is(err, document.ErrNotPDF):
		metrics.DocumentsLoaded.WithLabelValues(metrics.OutcomeRejected).Inc()
		Error(w, http.StatusUnsupportedMediaType, "Please upload a PDF file")
		return
	case errors.Is(err, document.ErrLoadSuperseded):
		metrics.DocumentsLoaded.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		Error(w, http.StatusConflict, "upload superseded by a newer request")
		return
	case err != nil:
		metrics.DocumentsLoaded.WithLabelValues(metrics.OutcomeError).Inc()
		slog.Warn("Failed to load PDF", "error", err, "name", header.Filename, "size", len(data))
		Error(w, http.StatusUnprocessableEntity, "Failed to load PDF")
		return
	}

	metrics.DocumentsLoaded.WithLabelValues(metrics.OutcomeOK).Inc()
	metrics.DocumentPages.Observe(float64(doc.NumPages()))
	slog.Info("Document loaded",
		"user_id", identity.UserIDFromContext(r.Context()),
		"document_id", doc.ID,
		"pages", doc.NumPages(),
		"size", doc.Size,
	)
	h.respondWithView(w, r, http.StatusCreated)
}

// Current handles GET /api/documents/current.
func (h *DocumentHandler) Current(w http.ResponseWriter, r *http.Request) {
	h.respondWithView(w, r, http.StatusOK)
}

// Clear handles DELETE /api/documents/current.
func (h *DocumentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear(identity.TabKey(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// Text handles GET /api/documents/current/text.
func (h *DocumentHandler) Text(w http.ResponseWriter, r *http.Request) {
	doc, err := h.cache.Get(identity.TabKey(r.Context()))
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc.FullText())
}

// Page handles GET /api/documents/current/pages/{page}.
func (h *DocumentHandler) Page(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid page number")
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
	JSON(w, http.StatusOK, map[string]any{"pageNumber": n, "text": text})
}

type viewRequest struct {
	Page *int     `json:"page"`
	Zoom *float64 `json:"zoom"`
}

// UpdateView handles PUT /api/documents/current/view. Out-of-range pages are
// ignored; zoom is a delta clamped to the allowed scale range.
func (h *DocumentHandler) UpdateView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := Decode(w, r, 4<<10, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.withViewer(w, r, func(_ *document.Document, v *document.Viewer) {
		if req.Page != nil {
			v.GoTo(*req.Page)
		}
		if req.Zoom != nil {
			v.Zoom(*req.Zoom)
		}
	})
}

type searchRequest struct {
	Query string `json:"query"`
}

// Search handles POST /api/documents/current/search.
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := Decode(w, r, 4<<10, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.withViewer(w, r, func(doc *document.Document, v *document.Viewer) {
		v.SetMatches(req.Query, doc.Search(req.Query))
	})
}

// StepSearch handles POST /api/documents/current/search/{next|prev}.
func (h *DocumentHandler) StepSearch(w http.ResponseWriter, r *http.Request) {
	var step func(*document.Viewer) (document.Match, bool)
	switch chi.URLParam(r, "direction") {
	case "next":
		step = (*document.Viewer).NextMatch
	case "prev":
		step = (*document.Viewer).PrevMatch
	default:
		Error(w, http.StatusNotFound, "unknown search direction")
		return
	}
	h.withViewer(w, r, func(_ *document.Document, v *document.Viewer) {
		step(v)
	})
}

func (h *DocumentHandler) withViewer(w http.ResponseWriter, r *http.Request, fn func(*document.Document, *document.Viewer)) {
	h.view(w, r, http.StatusOK, fn)
}

// view runs fn on the tab's viewer and responds with the resulting state.
func (h *DocumentHandler) view(w http.ResponseWriter, r *http.Request, status int, fn func(*document.Document, *document.Viewer)) {
	var resp documentResponse
	err := h.cache.With(identity.TabKey(r.Context()), func(doc *document.Document, v *document.Viewer) error {
		fn(doc, v)
		resp = newDocumentResponse(doc, v)
		return nil
	})
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	JSON(w, status, resp)
}

func (h *DocumentHandler) respondWithView(w http.ResponseWriter, r *http.Request, status int) {
	h.view(w, r, status, func(*document.Document, *document.Viewer) {})
}

func writeDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrNoDocument):
		Error(w, http.StatusNotFound, "no document loaded")
	case errors.Is(err, document.ErrPageOutOfRange):
		Error(w, http.StatusNotFound, err.Error())
	default:
		slog.Error("Document request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
