package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/devadigapratham/pandaprint/bridge"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const nodeKey = "node"

// Handler represents the API handlers
type Handler struct {
	Bridge *bridge.Bridge
	log    zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(b *bridge.Bridge, log zerolog.Logger) *Handler {
	return &Handler{
		Bridge: b,
		log:    log.With().Str("component", "http").Logger(),
	}
}

// PrinterMiddleware resolves the :printer path segment to its node
func (h *Handler) PrinterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		node, err := h.Bridge.Node(c.Param("printer"))
		if err != nil {
			abortError(c, http.StatusNotFound, "printer_unknown", err)
			return
		}
		c.Set(nodeKey, node)
		c.Next()
	}
}

// RequestLogger logs every request once it has been served
func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := h.log.Debug()
		if status >= http.StatusInternalServerError {
			evt = h.log.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("Request served")
	}
}

// NotFound answers unmatched paths. A leading unknown printer name is
// reported as such.
func (h *Handler) NotFound(c *gin.Context) {
	name, _, _ := strings.Cut(strings.TrimPrefix(c.Request.URL.Path, "/"), "/")
	if _, err := h.Bridge.Node(name); err != nil {
		abortError(c, http.StatusNotFound, "printer_unknown", err)
		return
	}
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"error":   "not_found",
		"message": "no such endpoint",
	})
}

func node(c *gin.Context) *bridge.Node {
	return c.MustGet(nodeKey).(*bridge.Node)
}

func abortError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": err.Error(),
	})
}
