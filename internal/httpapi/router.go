// Package httpapi is a thin read-only HTTP surface over the governed
// pipeline. It serves the same purpose-gated walk data as the MCP
// tools, for dashboards that speak plain HTTP instead of MCP.
package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/governor"
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/policy"
)

// WalkService is the slice of the governor the HTTP surface needs.
type WalkService interface {
	FetchWalk(ctx context.Context, req governor.WalkRequest) (*governor.WalkResponse, error)
	WalkFeatures(ctx context.Context, req governor.FeaturesRequest) (map[string]any, error)
}

// Handler serves the read endpoints.
type Handler struct {
	svc      WalkService
	engine   *policy.Engine
	clientID string
}

// New builds the gin router. engine may apply per-purpose redaction on
// top of the governor's own shaping, same as the MCP tool layer does.
func New(svc WalkService, engine *policy.Engine, clientID string) *gin.Engine {
	h := &Handler{svc: svc, engine: engine, clientID: clientID}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.health)
	v1 := r.Group("/v1")
	{
		v1.GET("/users/:id/walk", h.walk)
		v1.GET("/users/:id/walk/features", h.walkFeatures)
	}
	return r
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) walk(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		h.fail(c, gateerr.New(gateerr.CodeBadRequest, "user id must be an integer"))
		return
	}
	purpose := policy.Purpose(c.Query("purpose"))
	if !policy.Known(purpose) {
		h.fail(c, gateerr.New(gateerr.CodeBadRequest, "unknown purpose %q", purpose))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "0"))

	resp, err := h.svc.FetchWalk(c.Request.Context(), governor.WalkRequest{
		UserID:       userID,
		From:         c.Query("from"),
		To:           c.Query("to"),
		Page:         page,
		PerPage:      perPage,
		PreferSource: c.Query("prefer_source"),
		Purpose:      purpose,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, purpose, "get_walk_data", resp)
}

func (h *Handler) walkFeatures(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		h.fail(c, gateerr.New(gateerr.CodeBadRequest, "user id must be an integer"))
		return
	}
	purpose := policy.Purpose(c.Query("purpose"))

	features, err := h.svc.WalkFeatures(c.Request.Context(), governor.FeaturesRequest{
		UserID:  userID,
		From:    c.Query("from"),
		To:      c.Query("to"),
		Purpose: purpose,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, purpose, "get_walk_features", features)
}

// render applies policy redaction, then writes the body with an ETag.
// A matching If-None-Match short-circuits to 304.
func (h *Handler) render(c *gin.Context, purpose policy.Purpose, toolName string, v any) {
	payload, err := toMap(v)
	if err != nil {
		h.fail(c, gateerr.New(gateerr.CodeInternal, "shape response"))
		return
	}
	shaped, _, err := h.engine.Apply(purpose, toolName, h.clientID, payload)
	if err != nil {
		h.fail(c, err)
		return
	}

	body, err := json.Marshal(shaped)
	if err != nil {
		h.fail(c, gateerr.New(gateerr.CodeInternal, "encode response"))
		return
	}
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`
	c.Header("ETag", etag)
	if match := c.GetHeader("If-None-Match"); match != "" && strings.Contains(match, etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *Handler) fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gateerr.Envelope(err))
}

// statusOf maps stable error codes to HTTP statuses.
func statusOf(err error) int {
	switch gateerr.CodeOf(err) {
	case gateerr.CodeBadRequest, gateerr.CodeNotSupported:
		return http.StatusBadRequest
	case gateerr.CodeDenied:
		return http.StatusForbidden
	case gateerr.CodeNotConnected, gateerr.CodeMissingToken,
		gateerr.CodeVaultEmpty, gateerr.CodeVaultDisabled:
		return http.StatusFailedDependency
	case gateerr.CodeUpstream, gateerr.CodeAllSourcesFailed:
		return http.StatusBadGateway
	case gateerr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
