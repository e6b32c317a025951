// Package handler wires the HTTP routes to the generation pipeline. Handlers
// stay thin: decode the body, resolve the request identity, pick the purpose,
// and let the orchestrator do the rest.
package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/aiviz/internal/apperrors"
	"github.com/kbukum/aiviz/internal/credential"
	"github.com/kbukum/aiviz/internal/generate"
	"github.com/kbukum/aiviz/internal/server"
)

// Request headers understood by the generation endpoints.
const (
	HeaderUserAPIKey = "X-User-Api-Key"
	HeaderUserID     = "X-User-Id"
)

// Handler serves the generation API.
type Handler struct {
	orchestrator *generate.Orchestrator
	identity     *credential.IdentityResolver
	version      string

	chart        generate.Purpose
	chartBasic   generate.Purpose
	insightChart generate.Purpose
	insightFocus generate.Purpose
}

// New creates the API handler.
func New(orchestrator *generate.Orchestrator, identity *credential.IdentityResolver, version string) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		identity:     identity,
		version:      version,
		chart:        generate.ChartPurpose(),
		chartBasic:   generate.ChartBasicPurpose(),
		insightChart: generate.InsightChartPurpose(),
		insightFocus: generate.InsightFocusPurpose(),
	}
}

// Register mounts the API routes on the engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.GET("/health", h.Health)

	v1 := engine.Group("/v1")
	v1.POST("/chart", h.Chart)
	v1.POST("/chart/basic", h.ChartBasic)
	v1.POST("/insight", h.Insight)
}

// Health reports service liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"service": "aiviz",
		"version": h.version,
	})
}

// Chart generates a chart configuration from caller data. Quota-gated.
func (h *Handler) Chart(c *gin.Context) {
	h.run(c, h.chart)
}

// ChartBasic is the legacy unauthenticated chart variant.
func (h *Handler) ChartBasic(c *gin.Context) {
	h.run(c, h.chartBasic)
}

// Insight generates an insight report, dispatching on the request's type
// field. The type check runs before contract validation so an unknown type
// gets its dedicated error rather than a generic violation list.
func (h *Handler) Insight(c *gin.Context) {
	payload, ok := h.decode(c)
	if !ok {
		return
	}

	kind := ""
	if m, isMap := payload.(map[string]any); isMap {
		kind, _ = m["type"].(string)
	}

	var purpose generate.Purpose
	switch kind {
	case generate.InsightKindChart:
		purpose = h.insightChart
	case generate.InsightKindFocus:
		purpose = h.insightFocus
	default:
		server.RespondWithError(c, apperrors.InvalidType())
		return
	}

	h.dispatch(c, purpose, payload)
}

// run decodes the body and dispatches to the orchestrator.
func (h *Handler) run(c *gin.Context, purpose generate.Purpose) {
	payload, ok := h.decode(c)
	if !ok {
		return
	}
	h.dispatch(c, purpose, payload)
}

// decode parses the request body as generic JSON. A missing body decodes to
// null, which the input contracts reject downstream.
func (h *Handler) decode(c *gin.Context) (any, bool) {
	var payload any
	if c.Request.Body != nil {
		if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
			server.RespondWithError(c, apperrors.InvalidInput(nil).WithCause(err))
			return nil, false
		}
	}
	return payload, true
}

func (h *Handler) dispatch(c *gin.Context, purpose generate.Purpose, payload any) {
	req := generate.Request{
		RequestID: c.GetString("request_id"),
		Identity:  h.identity.Resolve(c.GetHeader(HeaderUserID), c.GetHeader("Authorization")),
		CallerKey: c.GetHeader(HeaderUserAPIKey),
		Payload:   payload,
	}

	result, err := h.orchestrator.Run(c.Request.Context(), purpose, req)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, result)
}
