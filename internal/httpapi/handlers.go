package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lutumlabs/lutum/internal/checkpoint"
	"github.com/lutumlabs/lutum/internal/i18n"
	"github.com/lutumlabs/lutum/internal/research"
	"github.com/lutumlabs/lutum/internal/sanitize"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
}

// healthBrowser reports whether a scraping session can actually be opened.
// The probe launches and tears down a real navigator, so a broken browser
// install shows up here instead of as mass scrape failures mid-run.
func (s *Server) healthBrowser(c *gin.Context) {
	if s.NewNavigator == nil {
		c.JSON(http.StatusOK, gin.H{"ready": false, "error": "no navigator configured"})
		return
	}
	nav, err := s.NewNavigator()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ready": false, "error": sanitize.Error(err)})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := nav.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("browser probe close failed")
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (s *Server) overview(c *gin.Context) {
	var req overviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	overview, raw, err := s.Engine.Overview(c.Request.Context(), req.Message, req.config())
	if err != nil {
		log.Warn().Err(err).Msg("overview endpoint failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "overview failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_title":   overview.SessionTitle,
		"queries_initial": overview.Queries,
		"raw_response":    raw,
		"error":           nil,
	})
}

func (s *Server) run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	maxStep := req.MaxStep
	if maxStep == 0 {
		maxStep = research.StepClarify
	}
	sid := sessionOrNew(req.SessionID)
	go s.Engine.RunSetup(context.Background(), sid, req.Message, maxStep, req.config(), req.lang())
	s.streamNDJSON(c, sid)
}

func (s *Server) plan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	state := research.ContextState{
		UserQuery:              req.UserQuery,
		ClarificationQuestions: req.ClarificationQuestions,
		ClarificationAnswers:   req.ClarificationAnswers,
	}
	s.respondPlan(c, func(ctx context.Context) (research.PlanResult, error) {
		return s.Engine.CreatePlan(ctx, state, req.config(), req.AcademicMode)
	})
}

func (s *Server) planRevise(c *gin.Context) {
	var req reviseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !validContextState(req.ContextState) {
		badRequest(c, errors.New("invalid context state"))
		return
	}
	s.respondPlan(c, func(ctx context.Context) (research.PlanResult, error) {
		return s.Engine.RevisePlan(ctx, req.ContextState, req.config(), req.Feedback)
	})
}

func (s *Server) respondPlan(c *gin.Context, call func(context.Context) (research.PlanResult, error)) {
	result, err := call(c.Request.Context())
	if err != nil {
		log.Warn().Err(err).Msg("planning endpoint failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "planning failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan_points":       result.PlanPoints,
		"plan_text":         result.PlanText,
		"academic_bereiche": result.AcademicBereiche,
		"context_state":     result.ContextState,
		"error":             nil,
	})
}

func (s *Server) deep(c *gin.Context) {
	var req deepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	state := req.ContextState
	if !validContextState(state) || len(state.ResearchPlan) == 0 {
		badRequest(c, errors.New("invalid context state"))
		return
	}
	sid := state.ResumedFrom
	if sid == "" {
		sid = checkpoint.SessionID(state.UserQuery, state.ResearchPlan)
	}
	go s.Engine.RunDeep(context.Background(), state, req.config(), req.lang())
	s.streamNDJSON(c, sid)
}

func (s *Server) academic(c *gin.Context) {
	var req deepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	state := req.ContextState
	if !validContextState(state) || len(state.AcademicBereiche) == 0 {
		badRequest(c, errors.New("invalid context state"))
		return
	}
	var plan []string
	for _, area := range state.AcademicBereiche {
		plan = append(plan, area.Points...)
	}
	sid := checkpoint.SessionID(state.UserQuery, plan)
	go s.Engine.RunAcademic(context.Background(), state, req.config(), req.lang())
	s.streamNDJSON(c, sid)
}

func (s *Server) resume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	state, err := s.Engine.PrepareResume(req.SessionID)
	switch {
	case errors.Is(err, research.ErrNoCheckpoint):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	case errors.Is(err, research.ErrNothingToDo):
		c.JSON(http.StatusConflict, gin.H{"error": "session already complete"})
		return
	case err != nil:
		log.Error().Str("session", req.SessionID).Err(err).Msg("resume failed")
		internalError(c)
		return
	}
	go s.Engine.RunDeep(context.Background(), state, req.config(), req.lang())
	s.streamNDJSON(c, req.SessionID)
}

func (s *Server) researchEvents(c *gin.Context) {
	lang := i18n.Normalize(c.Query("language"))
	s.streamSSE(c, c.Param("session_id"), i18n.Status(lang, "connected", nil))
}

func (s *Server) sessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.Checkpoints.List()})
}

func (s *Server) session(c *gin.Context) {
	cp, err := s.Checkpoints.Load(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (s *Server) latestSynthesis(c *gin.Context) {
	cp, err := s.Checkpoints.Latest()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sessions"})
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (s *Server) askStart(c *gin.Context) {
	var req askStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	lang := req.lang()
	sid := s.Ask.Register(req.SessionID, req.Question, lang)
	go s.Ask.Run(context.Background(), sid, req.Question, req.config(), lang)
	c.JSON(http.StatusOK, gin.H{
		"session_id": sid,
		"status":     "started",
		"message":    i18n.Ask(lang, "starting", nil),
		"error":      nil,
	})
}

func (s *Server) askEvents(c *gin.Context) {
	lang := i18n.Normalize(c.Query("language"))
	s.streamSSE(c, c.Param("session_id"), i18n.Ask(lang, "connected", nil))
}

func (s *Server) askList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.Ask.List()})
}
