package ask

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/export"
)

// StageRecord is one pipeline stage's timing entry.
type StageRecord struct {
	Stage      string `json:"stage"`
	DurationMS int    `json:"duration_ms"`
	Chars      int    `json:"chars"`
}

// Journal is the on-disk record of one finished Ask run.
type Journal struct {
	SessionID       string        `json:"session_id"`
	Question        string        `json:"question"`
	Language        string        `json:"language"`
	Stages          []StageRecord `json:"stages"`
	Answer          string        `json:"answer"`
	Verification    string        `json:"verification"`
	Validated       bool          `json:"validated"`
	TotalSources    int           `json:"total_sources"`
	DurationSeconds int           `json:"duration_seconds"`
	CreatedAt       time.Time     `json:"created_at"`
}

// saveJournal persists the run record; failures are logged and do not affect
// the client, which already has the answer in the event stream.
func (r *askRun) saveJournal() {
	if r.s.Export == nil {
		return
	}
	r.journal.CreatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(r.journal, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("journal marshal failed")
		return
	}
	name := "deep_question_" + r.sid + ".json"
	if err := r.s.Export.SaveJournal(export.AskJournalDir, name, data); err != nil {
		log.Warn().Str("session", r.sid).Err(err).Msg("journal write failed")
	}
}
