package logbuf

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

// DefaultCapacity bounds the ring; old entries are evicted, never blocked on.
const DefaultCapacity = 100

// Entry is one captured warning or error line.
type Entry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	// Short is the message bounded to 200 chars for inline display.
	Short string `json:"short"`
}

// Buffer is a bounded ring of recent WARN+ log lines. It implements
// zerolog.Hook so it can ride the global logger, and its snapshot-and-clear
// Drain feeds the event stream so the UI can surface backend diagnostics
// without polling.
type Buffer struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// New returns a Buffer with the default capacity.
func New() *Buffer {
	return &Buffer{cap: DefaultCapacity}
}

// NewSize returns a Buffer holding at most size entries.
func NewSize(size int) *Buffer {
	if size <= 0 {
		size = DefaultCapacity
	}
	return &Buffer{cap: size}
}

// Run implements zerolog.Hook. Only warn and above are captured; messages
// are scrubbed of secrets before they can reach an event stream.
func (b *Buffer) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if level < zerolog.WarnLevel || level >= zerolog.NoLevel {
		return
	}
	b.Add(level.String(), message)
}

// Add records one entry, evicting the oldest when full.
func (b *Buffer) Add(level, message string) {
	message = sanitize.LogData(message)
	e := Entry{
		Level:   level,
		Message: message,
		Short:   sanitize.Truncate(message, 200),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.cap {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, e)
}

// Drain returns all buffered entries and clears the buffer.
func (b *Buffer) Drain() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = nil
	return out
}

// Peek returns a copy of the buffered entries without clearing.
func (b *Buffer) Peek() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len reports the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
