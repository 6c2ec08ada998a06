package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/events"
)

// defaultPingInterval keeps SSE connections alive through proxies while a
// long synthesis call produces no events.
const defaultPingInterval = 30 * time.Second

func (s *Server) pingInterval() time.Duration {
	if s.PingInterval > 0 {
		return s.PingInterval
	}
	return defaultPingInterval
}

// streamNDJSON relays the session's events to the client, one JSON object
// per line, flushed per line, until the terminal envelope. Client disconnect
// stops the relay but never the orchestrator; the queue keeps filling and
// the run checkpoints regardless.
func (s *Server) streamNDJSON(c *gin.Context, sessionID string) {
	c.Header("Content-Type", "application/x-ndjson; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	enc := json.NewEncoder(c.Writer)
	ch := s.Bus.Subscribe(sessionID)
	for {
		select {
		case ev := <-ch:
			if err := enc.Encode(ev); err != nil {
				log.Debug().Str("session", sessionID).Err(err).Msg("ndjson client gone")
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			if events.Terminal(ev) {
				s.Bus.Remove(sessionID)
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

// streamSSE relays the session's events as SSE frames. The connected
// envelope goes out first; idle periods produce ping envelopes.
func (s *Server) streamSSE(c *gin.Context, sessionID, connectedMsg string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	if !writeSSE(c, events.Envelope{Type: events.TypeConnected, Message: connectedMsg}) {
		return
	}

	ch := s.Bus.Subscribe(sessionID)
	ticker := time.NewTicker(s.pingInterval())
	defer ticker.Stop()
	for {
		select {
		case ev := <-ch:
			if !writeSSE(c, ev) {
				return
			}
			if events.Terminal(ev) {
				s.Bus.Remove(sessionID)
				return
			}
		case <-ticker.C:
			if !writeSSE(c, events.Envelope{Type: events.TypePing}) {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeSSE(c *gin.Context, ev events.Envelope) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("event marshal failed")
		return false
	}
	if _, err := c.Writer.Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
		return false
	}
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return true
}
