package research

import (
	"context"
	"errors"

	"github.com/lutumlabs/lutum/internal/checkpoint"
	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/llm"
)

// Resume errors the HTTP layer maps to client responses.
var (
	ErrNoCheckpoint = errors.New("no checkpoint for session")
	ErrNothingToDo  = errors.New("session has no remaining points")
)

// PrepareResume loads a checkpoint and builds the context state that
// replays the run over only the remaining points. The completed dossiers
// and learnings are pre-seeded; the citation registry starts fresh, since
// the old dossiers already carry their renumbered text.
func (e *Engine) PrepareResume(sessionID string) (ContextState, error) {
	cp, err := e.Checkpoints.Load(sessionID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return ContextState{}, ErrNoCheckpoint
		}
		return ContextState{}, err
	}
	if len(cp.RemainingPoints) == 0 {
		return ContextState{}, ErrNothingToDo
	}
	return ContextState{
		UserQuery:            cp.UserQuery,
		ResearchPlan:         cp.RemainingPoints,
		ResumedFrom:          cp.SessionID,
		CompletedDossiers:    cp.CompletedDossiers,
		AccumulatedLearnings: cp.AccumulatedLearnings,
	}, nil
}

// Resume continues an interrupted flat run to completion.
func (e *Engine) Resume(ctx context.Context, sessionID string, cfg llm.Config, lang i18n.Lang) error {
	state, err := e.PrepareResume(sessionID)
	if err != nil {
		return err
	}
	e.RunDeep(ctx, state, cfg, lang)
	return nil
}
