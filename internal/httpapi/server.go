// Package httpapi exposes the research engine over a local HTTP surface:
// plain JSON endpoints for setup and planning, NDJSON streams for the
// long-running modes, and SSE for clients that reconnect to a session.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/ask"
	"github.com/lutumlabs/lutum/internal/checkpoint"
	"github.com/lutumlabs/lutum/internal/events"
	"github.com/lutumlabs/lutum/internal/research"
	"github.com/lutumlabs/lutum/internal/scrape"
)

// ServiceName identifies the backend in health responses.
const ServiceName = "lutum-veritas"

// Server wires the engine and ask service into the gin router.
type Server struct {
	Engine *research.Engine
	Ask    *ask.Service

	Bus         *events.Bus
	Checkpoints *checkpoint.Store

	// NewNavigator probes browser availability for /health/browser.
	NewNavigator scrape.NavigatorFactory

	// PingInterval overrides the SSE keep-alive cadence in tests.
	PingInterval time.Duration
}

// Router builds the full route table with the API middleware stack.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders(), cors())

	r.GET("/health", s.health)
	r.GET("/health/browser", s.healthBrowser)

	res := r.Group("/research")
	{
		res.POST("/overview", s.overview)
		res.POST("/run", s.run)
		res.POST("/plan", s.plan)
		res.POST("/plan/revise", s.planRevise)
		res.POST("/deep", s.deep)
		res.POST("/academic", s.academic)
		res.POST("/resume", s.resume)
		res.GET("/events/:session_id", s.researchEvents)
		res.GET("/sessions", s.sessions)
		res.GET("/session/:session_id", s.session)
		res.GET("/latest-synthesis", s.latestSynthesis)
	}

	a := r.Group("/ask")
	{
		a.POST("/start", s.askStart)
		a.GET("/events/:session_id", s.askEvents)
		a.GET("/list", s.askList)
	}
	return r
}

// badRequest answers with the generic client-error body. Binding details
// never reach the client; they only go to the debug log.
func badRequest(c *gin.Context, err error) {
	log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("bad request")
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

// internalError hides the cause behind a generic message; the sanitized
// detail is already logged where it happened.
func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// cors is permissive: the server binds to loopback, the UI is a local page.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
