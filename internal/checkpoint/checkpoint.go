// Package checkpoint persists session snapshots as one JSON file per
// session, written atomically so a reader sees either a complete snapshot or
// none. Checkpoints make every research run resumable after a crash.
package checkpoint

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/sanitize"
)

// FileName is the snapshot file inside each session directory.
const FileName = "checkpoint.json"

// Dossier is one completed research point as persisted and streamed.
type Dossier struct {
	Point   string   `json:"point"`
	Dossier string   `json:"dossier"`
	Sources []string `json:"sources"`
}

// Checkpoint is the full per-session snapshot.
type Checkpoint struct {
	SessionID            string    `json:"session_id"`
	UserQuery            string    `json:"user_query"`
	ResearchPlan         []string  `json:"research_plan"`
	CompletedDossiers    []Dossier `json:"completed_dossiers"`
	AccumulatedLearnings []string  `json:"accumulated_learnings"`
	RemainingPoints      []string  `json:"remaining_points"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	LastModified         time.Time `json:"last_modified"`
}

// SessionSummary is the listing shape for the sessions endpoint.
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	UserQuery    string `json:"user_query"`
	Status       string `json:"status"`
	Completed    int    `json:"completed_count"`
	Remaining    int    `json:"remaining_count"`
	LastModified string `json:"last_modified"`
}

// SessionID derives the short hex id from the query and plan, so the same
// plan resumes into the same session directory.
func SessionID(userQuery string, plan []string) string {
	h := sha1.Sum([]byte(userQuery + "|||" + strings.Join(plan, "|||")))
	return hex.EncodeToString(h[:])[:12]
}

// Store reads and writes checkpoints under one root directory.
type Store struct {
	Root string
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.Root, sessionID, FileName)
}

// Save writes the snapshot atomically: marshal, write to a temp file in the
// same directory, rename over the target. LastModified is stamped here.
func (s *Store) Save(cp *Checkpoint) error {
	if cp.SessionID == "" {
		return errors.New("checkpoint without session id")
	}
	cp.LastModified = time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.LastModified
	}
	dir := filepath.Join(s.Root, cp.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path(cp.SessionID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// ErrNotFound marks a session without a readable checkpoint.
var ErrNotFound = errors.New("checkpoint not found")

// Load reads one session's snapshot. Missing or unparseable files report
// ErrNotFound; a torn file is treated the same as an absent one.
func (s *Store) Load(sessionID string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		log.Warn().Str("session", sessionID).Err(err).Msg("unparseable checkpoint treated as absent")
		return nil, ErrNotFound
	}
	if cp.SessionID == "" {
		cp.SessionID = sessionID
	}
	return &cp, nil
}

// List scans the root and returns one summary per readable checkpoint,
// newest first. Unreadable entries are skipped, not fatal.
func (s *Store) List() []SessionSummary {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("checkpoint root unreadable")
		}
		return nil
	}
	type row struct {
		sum SessionSummary
		ts  time.Time
	}
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cp, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		query := cp.UserQuery
		if len(query) > 100 {
			query = sanitize.Truncate(query, 100) + "..."
		}
		rows = append(rows, row{
			sum: SessionSummary{
				SessionID:    cp.SessionID,
				UserQuery:    query,
				Status:       cp.Status,
				Completed:    len(cp.CompletedDossiers),
				Remaining:    len(cp.RemainingPoints),
				LastModified: cp.LastModified.Format("2006-01-02 15:04"),
			},
			ts: cp.LastModified,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ts.After(rows[j].ts) })
	out := make([]SessionSummary, len(rows))
	for i, r := range rows {
		out[i] = r.sum
	}
	return out
}

// Latest returns the most recently modified checkpoint, for the legacy
// latest-synthesis endpoint.
func (s *Store) Latest() (*Checkpoint, error) {
	sums := s.List()
	if len(sums) == 0 {
		return nil, ErrNotFound
	}
	return s.Load(sums[0].SessionID)
}
