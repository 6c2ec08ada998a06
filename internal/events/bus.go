package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Envelope is a single progress event within one session. Type selects the
// payload shape; Message carries the user-facing status string in the
// session's language; Data holds the type-specific structured payload.
type Envelope struct {
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Event types emitted by the orchestrators. Streams terminate with exactly
// one of TypeDone or TypeError.
const (
	TypeConnected          = "connected"
	TypeStatus             = "status"
	TypeStepStart          = "step_start"
	TypeStepProgress       = "step_progress"
	TypeStepDone           = "step_done"
	TypeSources            = "sources"
	TypePointComplete      = "point_complete"
	TypeBereichStart       = "bereich_start"
	TypeBereichComplete    = "bereich_complete"
	TypeSynthesisStart     = "synthesis_start"
	TypeMetaSynthesisStart = "meta_synthesis_start"
	TypeLog                = "log"
	TypeSessionID          = "session_id"
	TypeDone               = "done"
	TypeError              = "error"
	TypePing               = "ping"

	// Ask mode stage events.
	TypeStageStart     = "stage_start"
	TypeStageContent   = "stage_content"
	TypeScrapeStart    = "scrape_start"
	TypeScrapeProgress = "scrape_progress"
	TypeScrapeDone     = "scrape_done"
)

// Terminal reports whether the envelope closes its stream.
func Terminal(ev Envelope) bool {
	return ev.Type == TypeDone || ev.Type == TypeError
}

// DefaultQueueSize bounds each per-session queue. Overflow drops the event
// and logs a warning; it never blocks the emitter.
const DefaultQueueSize = 100

// Bus fans typed progress events out to one subscriber per session. Queues
// are created lazily by whichever side arrives first, so a client may
// subscribe before or after the orchestrator starts emitting.
type Bus struct {
	mu     sync.Mutex
	size   int
	queues map[string]chan Envelope
}

// NewBus returns a Bus with the default per-session queue size.
func NewBus() *Bus {
	return &Bus{size: DefaultQueueSize, queues: make(map[string]chan Envelope)}
}

// NewBusSize returns a Bus with a custom queue size, useful in tests.
func NewBusSize(size int) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Bus{size: size, queues: make(map[string]chan Envelope)}
}

func (b *Bus) queue(sessionID string) chan Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[sessionID]
	if !ok {
		q = make(chan Envelope, b.size)
		b.queues[sessionID] = q
	}
	return q
}

// Emit enqueues an envelope without blocking. It reports whether the event
// was accepted; a full queue drops the event with a warning.
func (b *Bus) Emit(sessionID string, ev Envelope) bool {
	q := b.queue(sessionID)
	select {
	case q <- ev:
		return true
	default:
		log.Warn().
			Str("session", sessionID).
			Str("type", ev.Type).
			Msg("event queue full, dropping event")
		return false
	}
}

// Subscribe returns the session's event channel. The caller owns the
// subscription and must call Remove when done; envelopes after a terminal
// one are not delivered by convention, not by construction.
func (b *Bus) Subscribe(sessionID string) <-chan Envelope {
	return b.queue(sessionID)
}

// Remove drops the session's queue. Pending events are discarded.
func (b *Bus) Remove(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, sessionID)
}

// Sessions returns the ids of sessions with live queues, for diagnostics.
func (b *Bus) Sessions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.queues))
	for id := range b.queues {
		out = append(out, id)
	}
	return out
}
