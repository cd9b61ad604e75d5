// Package api is the board's HTTP surface.
package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/celerix-dev/safari/internal/board"
	"github.com/celerix-dev/safari/internal/identity"
	"github.com/celerix-dev/safari/internal/view"
	"github.com/celerix-dev/safari/pkg/engine"
)

type Handler struct {
	Board      *board.Service
	Identity   identity.Provider
	Views      *view.Renderer
	Metrics    *Metrics
	Logger     *zap.Logger
	FetchLimit int
}

func (h *Handler) Main(c *gin.Context) { h.render(c, view.Main) }
func (h *Handler) Items(c *gin.Context) { h.render(c, view.Items) }
func (h *Handler) Ajax(c *gin.Context) { h.render(c, view.Ajax) }

// render fetches the current snapshot and renders v with it. All three
// views share the same data.
func (h *Handler) render(c *gin.Context, v view.View) {
	snap, err := h.Board.ListWithStats(c.Request.Context(), h.FetchLimit)
	if err != nil {
		h.fail(c, err)
		return
	}

	actor := identity.ActorFromContext(c.Request.Context())
	url, label := identity.Link(h.Identity, actor, c.Request.URL.RequestURI())

	var buf bytes.Buffer
	if err := h.Views.Render(&buf, v, view.NewPage(snap, actor, url, label)); err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *Handler) Create(c *gin.Context) {
	actor := identity.ActorFromContext(c.Request.Context())
	_, err := h.Board.CreateItem(c.Request.Context(), c.PostForm("building"), c.PostForm("note"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Metrics.ItemsCreated.Inc()
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) Complete(c *gin.Context) {
	actor := identity.ActorFromContext(c.Request.Context())
	_, err := h.Board.CompleteItem(c.Request.Context(), c.PostForm("action_id"), c.PostForm("completernote"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Metrics.ItemsCompleted.Inc()
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps store and service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
