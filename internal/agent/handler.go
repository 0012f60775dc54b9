package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/autopdf/internal/api"
	"github.com/ashureev/autopdf/internal/domain"
	"github.com/ashureev/autopdf/internal/identity"
	"github.com/ashureev/autopdf/internal/metrics"
	"github.com/ashureev/autopdf/internal/playai"
	"github.com/ashureev/autopdf/internal/store"
	"github.com/ashureev/autopdf/internal/voice"
)

// maxRequestBodySize bounds the JSON bodies of the agent endpoints.
const maxRequestBodySize = 64 << 10

// Upstream is the hosted agent API.
type Upstream interface {
	Initiator
	CreateAgent(ctx context.Context, name, description, voice string) (*playai.CreatedAgent, error)
}

// Handler serves the agent registry endpoints.
type Handler struct {
	upstream Upstream
	repo     store.Repository
	limit    func(http.Handler) http.Handler
}

// NewHandler creates the agent handler. limit wraps agent creation; nil disables limiting.
func NewHandler(upstream Upstream, repo store.Repository, limit func(http.Handler) http.Handler) *Handler {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{upstream: upstream, repo: repo, limit: limit}
}

// RegisterRoutes registers agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/agent-init", h.AgentInit)
		r.With(h.limit).Post("/create-agent", h.CreateAgent)
		r.Get("/agents", h.ListAgents)
		r.Get("/preferences/agent", h.GetLastAgent)
		r.Put("/preferences/agent", h.SetLastAgent)
	})
}

type agentInitRequest struct {
	AgentID  string `json:"agentId"`
	Question string `json:"question"`
}

// AgentInit handles POST /api/agent-init and returns the socket URL of a new
// conversation.
func (h *Handler) AgentInit(w http.ResponseWriter, r *http.Request) {
	var req agentInitRequest
	if err := api.Decode(w, r, maxRequestBodySize, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.AgentID == "" {
		api.Error(w, http.StatusBadRequest, "agentId is required")
		return
	}

	wsURL, err := h.upstream.StartSession(r.Context(), req.AgentID, req.Question)
	if err != nil {
		writeUpstreamError(w, "start agent session", err)
		return
	}

	slog.Info("Agent session initiated", "user_id", identity.UserIDFromContext(r.Context()), "agent_id", req.AgentID)
	api.JSON(w, http.StatusOK, map[string]string{"wsUrl": wsURL})
}

type createAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Voice       string `json:"voice"`
}

// CreateAgent handles POST /api/create-agent. The upstream record is returned
// unchanged and mirrored into the local registry.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := api.Decode(w, r, maxRequestBodySize, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Voice = strings.TrimSpace(req.Voice)
	if req.Name == "" || req.Voice == "" {
		api.Error(w, http.StatusBadRequest, "name and voice are required")
		return
	}
	if _, ok := voice.Lookup(req.Voice); !ok {
		api.Error(w, http.StatusBadRequest, "unknown voice")
		return
	}

	created, err := h.upstream.CreateAgent(r.Context(), req.Name, req.Description, req.Voice)
	if err != nil {
		metrics.AgentsCreated.WithLabelValues(outcomeOf(err)).Inc()
		writeUpstreamError(w, "create agent", err)
		return
	}

	agent := &domain.Agent{
		ID:          created.ID,
		Name:        req.Name,
		Description: req.Description,
		Voice:       req.Voice,
	}
	if err := h.repo.CreateAgent(r.Context(), agent); err != nil {
		metrics.AgentsCreated.WithLabelValues(metrics.OutcomeError).Inc()
		slog.Error("Failed to store agent", "error", err, "agent_id", created.ID)
		api.Error(w, http.StatusInternalServerError, "failed to store agent")
		return
	}

	metrics.AgentsCreated.WithLabelValues(metrics.OutcomeOK).Inc()
	slog.Info("Agent created", "agent_id", agent.ID, "name", agent.Name, "voice", agent.Voice)
	api.Raw(w, http.StatusOK, created.Raw)
}

// ListAgents handles GET /api/agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.repo.ListAgents(r.Context())
	if err != nil {
		slog.Error("Failed to list agents", "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{"agents": agents})
}

type lastAgent struct {
	AgentID string `json:"agentId"`
}

// GetLastAgent handles GET /api/preferences/agent.
func (h *Handler) GetLastAgent(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	pref, err := h.repo.GetPreference(r.Context(), userID, domain.PreferenceLastAgent)
	if err != nil {
		slog.Error("Failed to read preference", "error", err, "user_id", userID)
		api.Error(w, http.StatusInternalServerError, "failed to read preference")
		return
	}
	var resp lastAgent
	if pref != nil {
		resp.AgentID = pref.Value
	}
	api.JSON(w, http.StatusOK, resp)
}

// SetLastAgent handles PUT /api/preferences/agent.
func (h *Handler) SetLastAgent(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req lastAgent
	if err := api.Decode(w, r, maxRequestBodySize, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.AgentID == "" {
		api.Error(w, http.StatusBadRequest, "agentId is required")
		return
	}

	agent, err := h.repo.GetAgent(r.Context(), req.AgentID)
	if err != nil {
		slog.Error("Failed to look up agent", "error", err, "agent_id", req.AgentID)
		api.Error(w, http.StatusInternalServerError, "failed to look up agent")
		return
	}
	if agent == nil {
		api.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	err = h.repo.SetPreference(r.Context(), &domain.Preference{
		UserID:    userID,
		Key:       domain.PreferenceLastAgent,
		Value:     agent.ID,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		slog.Error("Failed to store preference", "error", err, "user_id", userID)
		api.Error(w, http.StatusInternalServerError, "failed to store preference")
		return
	}
	api.JSON(w, http.StatusOK, lastAgent{AgentID: agent.ID})
}

// writeUpstreamError maps agent API failures onto the response. Upstream
// replies keep their status and body.
func writeUpstreamError(w http.ResponseWriter, op string, err error) {
	var upstream *playai.UpstreamError
	switch {
	case errors.As(err, &upstream):
		slog.Warn("Agent API rejected request", "op", op, "status", upstream.Status)
		api.Raw(w, upstream.Status, upstream.Body)
	case errors.Is(err, playai.ErrNotConfigured):
		api.Error(w, http.StatusServiceUnavailable, "agent API is not configured")
	default:
		slog.Error("Agent API request failed", "op", op, "error", err)
		api.Error(w, http.StatusBadGateway, "agent API request failed")
	}
}

func outcomeOf(err error) string {
	var upstream *playai.UpstreamError
	if errors.As(err, &upstream) {
		return metrics.OutcomeUpstream
	}
	return metrics.OutcomeError
}
