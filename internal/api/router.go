package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/celerix-dev/safari/internal/identity"
)

// routeRegistrar is implemented by identity providers that serve their own
// login and logout pages.
type routeRegistrar interface {
	Register(r gin.IRoutes)
}

// NewRouter wires the handler into a gin engine with logging, recovery,
// metrics and identity middleware.
func NewRouter(h *Handler) *gin.Engine {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	if h.Metrics == nil {
		h.Metrics = NewMetrics()
	}

	r := gin.New()
	r.Use(
		recovery(h.Logger),
		requestLogger(h.Logger),
		h.Metrics.Middleware(),
		identity.Middleware(h.Identity),
	)

	r.GET("/", h.Main)
	r.GET("/items", h.Items)
	r.GET("/ajax", h.Ajax)
	r.POST("/create", h.Create)
	r.POST("/complete", h.Complete)

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))

	if reg, ok := h.Identity.(routeRegistrar); ok {
		reg.Register(r)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return r
}
