package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/openflux/openflux/internal/chat"
	"github.com/openflux/openflux/internal/research"
	"github.com/openflux/openflux/internal/supervisor"
	"github.com/openflux/openflux/pkg/mcpclient"
	"github.com/openflux/openflux/pkg/types"
)

// Handler handles HTTP requests
type Handler struct {
	svc          *research.Service
	sup          *supervisor.Supervisor
	orchestrator *chat.Orchestrator
}

// NewHandler creates a new handler
func NewHandler(svc *research.Service, sup *supervisor.Supervisor, orchestrator *chat.Orchestrator) *Handler {
	return &Handler{
		svc:          svc,
		sup:          sup,
		orchestrator: orchestrator,
	}
}

type repositoryRequest struct {
	Repository string `json:"repository"`
}

type searchRequest struct {
	Repository string `json:"repository"`
	Query      string `json:"query"`
	Limit      int    `json:"limit"`
}

type fileRequest struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
}

type codeSearchRequest struct {
	Repository string `json:"repository"`
	Pattern    string `json:"pattern"`
	FileType   string `json:"file_type"`
}

type chatSessionRequest struct {
	Repository string `json:"repository"`
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

// Connect handles POST /api/v1/connect
func (h *Handler) Connect(c fiber.Ctx) error {
	if err := h.sup.Connect(c.Context()); err != nil {
		log.Error().Err(err).Msg("Connect failed")
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"state": h.sup.State().String(),
		"pid":   h.sup.PID(),
		"tools": len(h.sup.Catalog()),
	})
}

// Disconnect handles POST /api/v1/disconnect
func (h *Handler) Disconnect(c fiber.Ctx) error {
	h.sup.Disconnect()
	return c.JSON(fiber.Map{
		"state": h.sup.State().String(),
	})
}

// HealthCheck handles GET /api/v1/health
func (h *Handler) HealthCheck(c fiber.Ctx) error {
	healthy := h.sup.CheckHealth()
	status := 200
	if !healthy {
		status = 503
	}

	return c.Status(status).JSON(fiber.Map{
		"healthy": healthy,
		"state":   h.sup.State().String(),
		"pid":     h.sup.PID(),
		"indexed": h.sup.IndexedRepositories(),
	})
}

// LivenessProbe handles GET /api/v1/alive
func (h *Handler) LivenessProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"alive": true})
}

// ReadinessProbe handles GET /api/v1/ready
func (h *Handler) ReadinessProbe(c fiber.Ctx) error {
	if h.sup.State() != supervisor.Connected {
		return c.Status(503).JSON(fiber.Map{
			"ready": false,
			"state": h.sup.State().String(),
		})
	}
	return c.JSON(fiber.Map{"ready": true})
}

// IndexRepository handles POST /api/v1/index
func (h *Handler) IndexRepository(c fiber.Ctx) error {
	var req repositoryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.svc.IndexRepository(c.Context(), req.Repository)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"repository": req.Repository,
		"result":     result,
	})
}

// Search handles POST /api/v1/search
func (h *Handler) Search(c fiber.Ctx) error {
	var req searchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	result, err := h.svc.Search(c.Context(), req.Repository, req.Query, req.Limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// FetchFile handles POST /api/v1/file
func (h *Handler) FetchFile(c fiber.Ctx) error {
	var req fileRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	content, err := h.svc.FetchFile(c.Context(), req.Repository, req.Path)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(content)
}

// ListStructure handles POST /api/v1/structure
func (h *Handler) ListStructure(c fiber.Ctx) error {
	var req repositoryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	listing, err := h.svc.ListStructure(c.Context(), req.Repository)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(listing)
}

// SearchCode handles POST /api/v1/code-search
func (h *Handler) SearchCode(c fiber.Ctx) error {
	var req codeSearchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	result, err := h.svc.SearchCode(c.Context(), req.Repository, req.Pattern, req.FileType)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// ListTools handles GET /api/v1/tools
func (h *Handler) ListTools(c fiber.Ctx) error {
	catalog := h.sup.Catalog()
	tools := make([]*types.Tool, 0, len(catalog))
	for _, tool := range catalog {
		tools = append(tools, tool)
	}

	return c.JSON(fiber.Map{
		"tools": tools,
		"total": len(tools),
	})
}

// OpenChatSession handles POST /api/v1/chat/sessions
func (h *Handler) OpenChatSession(c fiber.Ctx) error {
	var req chatSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	session := h.orchestrator.OpenSession(req.Repository)
	return c.Status(201).JSON(session)
}

// GetChatSession handles GET /api/v1/chat/sessions/:id
func (h *Handler) GetChatSession(c fiber.Ctx) error {
	session, ok := h.orchestrator.GetSession(c.Params("id"))
	if !ok {
		return notFound(c, "Session not found")
	}
	return c.JSON(session)
}

// PostChatMessage handles POST /api/v1/chat/sessions/:id/messages
func (h *Handler) PostChatMessage(c fiber.Ctx) error {
	var req chatMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Message == "" {
		return badRequest(c, "Message is required")
	}

	reply, err := h.orchestrator.Respond(c.Context(), c.Params("id"), req.Message)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"reply": reply,
	})
}

// CloseChatSession handles DELETE /api/v1/chat/sessions/:id
func (h *Handler) CloseChatSession(c fiber.Ctx) error {
	h.orchestrator.CloseSession(c.Params("id"))
	return c.SendStatus(204)
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(400).JSON(types.ErrorResponse{
		Error:     msg,
		Code:      "bad_request",
		Timestamp: time.Now(),
	})
}

func notFound(c fiber.Ctx, msg string) error {
	return c.Status(404).JSON(types.ErrorResponse{
		Error:     msg,
		Code:      "not_found",
		Timestamp: time.Now(),
	})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c fiber.Ctx, err error) error {
	status := 500
	code := "internal_error"

	var toolErr *mcpclient.ToolError
	switch {
	case errors.Is(err, research.ErrInvalidArgument):
		status, code = 400, "bad_request"
	case errors.Is(err, mcpclient.ErrNoSuchTool):
		status, code = 501, "no_such_tool"
	case errors.Is(err, mcpclient.ErrTimeout):
		status, code = 504, "timeout"
	case errors.Is(err, mcpclient.ErrSpawnFailed),
		errors.Is(err, mcpclient.ErrHandshakeFailed),
		errors.Is(err, mcpclient.ErrTransportClosed):
		status, code = 503, "tool_server_unavailable"
	case errors.As(err, &toolErr):
		status, code = 502, "tool_error"
	}

	return c.Status(status).JSON(types.ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		Timestamp: time.Now(),
	})
}
