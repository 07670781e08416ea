package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/praxislearn/praxis-cli/internal/api"
	"github.com/praxislearn/praxis-cli/internal/config"
	"github.com/praxislearn/praxis-cli/internal/model"
)

// CasePhase is the explicit case-evaluation state. The flow is linear:
// welcome, case generation, the learner writing a response, correction, done.
type CasePhase string

const (
	CasePhaseWelcome           CasePhase = "WELCOME"
	CasePhaseLoadingEvaluation CasePhase = "LOADING_EVALUATION"
	CasePhaseActive            CasePhase = "EVALUATION_ACTIVE"
	CasePhaseLoadingCorrection CasePhase = "LOADING_CORRECTION"
	CasePhaseCompleted         CasePhase = "COMPLETED"
)

// ErrNoCaseActive is returned when a response is submitted outside the
// active phase.
var ErrNoCaseActive = errors.New("no case evaluation in progress")

// CaseParams configures one practical-case attempt.
type CaseParams struct {
	Course string
	Module string
	Topics []string
}

// CaseService builds practical-case evaluation sessions.
type CaseService struct {
	cfg    *config.Config
	client *api.Client
	log    zerolog.Logger
}

// NewCaseService creates a CaseService.
func NewCaseService(cfg *config.Config, client *api.Client, log zerolog.Logger) *CaseService {
	return &CaseService{
		cfg:    cfg,
		client: client,
		log:    log.With().Str("component", "case").Logger(),
	}
}

// NewSession creates a session on the welcome phase.
func (s *CaseService) NewSession(params CaseParams) *CaseSession {
	return &CaseSession{
		ID:     uuid.New().String(),
		svc:    s,
		params: params,
		phase:  CasePhaseWelcome,
	}
}

// CaseSession drives one case evaluation as a chat-styled exchange: the
// generated case arrives as an assistant entry, the learner's answer is an
// optimistically appended user entry, and the correction closes the thread.
// The backend is stateless between generation and correction, so the full
// generated payload is retained here and sent back verbatim at submission.
type CaseSession struct {
	ID string

	svc    *CaseService
	params CaseParams

	mu         sync.Mutex
	phase      CasePhase
	payload    *model.CasePayload
	transcript []model.ChatMessage
	result     *model.CaseSubmissionResponse

	inflight singleflight.Group
}

// Phase returns the current session phase.
func (c *CaseSession) Phase() CasePhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Payload returns the retained generated case, or nil before generation.
func (c *CaseSession) Payload() *model.CasePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payload
}

// Result returns the grading payload once completed.
func (c *CaseSession) Result() *model.CaseSubmissionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Transcript returns a snapshot of the exchange so far.
func (c *CaseSession) Transcript() []model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ChatMessage, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Start generates the case and moves the session to the active phase.
// Concurrent duplicate calls share one request. A failed generation returns
// to the welcome phase with a locally appended error entry so the learner
// can retry.
func (c *CaseSession) Start(ctx context.Context) error {
	_, err, _ := c.inflight.Do("generate", func() (any, error) {
		return nil, c.generate(ctx)
	})
	return err
}

func (c *CaseSession) generate(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != CasePhaseWelcome {
		c.mu.Unlock()
		return fmt.Errorf("case session already started (phase %s)", c.phase)
	}
	c.phase = CasePhaseLoadingEvaluation
	c.mu.Unlock()

	req := model.CaseRequest{
		Topics:        c.params.Topics,
		Level:         c.svc.cfg.Level,
		CourseContext: c.params.Course,
		CourseFilter:  c.params.Course,
		Language:      c.svc.cfg.Language,
	}
	if len(req.Topics) == 0 {
		c.fail(CasePhaseWelcome, "No topics are available for this case evaluation.")
		return ErrNoTopics
	}

	payload, err := c.svc.client.EvaluateCase(ctx, req)
	if err != nil {
		c.fail(CasePhaseWelcome, "The case could not be generated. Please try again.")
		return err
	}

	c.mu.Lock()
	c.payload = payload
	c.transcript = append(c.transcript, model.ChatMessage{
		Role:      model.ChatRoleAssistant,
		Content:   renderCase(payload),
		Timestamp: time.Now(),
	})
	c.phase = CasePhaseActive
	c.mu.Unlock()

	c.svc.log.Info().Str("session", c.ID).Str("case", payload.Case.Title).Msg("Case ready")
	return nil
}

// SubmitResponse posts the learner's answer with the retained case payload.
// Whitespace-only input is a silent no-op. The answer is appended
// optimistically; on failure it is rolled back, an error entry is appended,
// and the session returns to the active phase with the payload intact so the
// learner can resubmit.
func (c *CaseSession) SubmitResponse(ctx context.Context, response string) error {
	if strings.TrimSpace(response) == "" {
		return nil
	}

	_, err, _ := c.inflight.Do("submit", func() (any, error) {
		return nil, c.submit(ctx, response)
	})
	return err
}

func (c *CaseSession) submit(ctx context.Context, response string) error {
	c.mu.Lock()
	if c.phase != CasePhaseActive || c.payload == nil {
		c.mu.Unlock()
		return ErrNoCaseActive
	}
	c.phase = CasePhaseLoadingCorrection
	payload := *c.payload
	c.mu.Unlock()

	sub := model.CaseSubmission{
		CaseData:     payload,
		UserResponse: response,
		Course:       c.params.Course,
		Level:        c.svc.cfg.Level,
		Topics:       c.params.Topics,
		Module:       c.params.Module,
		Language:     c.svc.cfg.Language,
	}

	var result *model.CaseSubmissionResponse
	err := optimistic(
		func() int {
			c.mu.Lock()
			defer c.mu.Unlock()
			mark := len(c.transcript)
			c.transcript = append(c.transcript, model.ChatMessage{
				Role:      model.ChatRoleUser,
				Content:   response,
				Timestamp: time.Now(),
			})
			return mark
		},
		func() error {
			var callErr error
			result, callErr = c.svc.client.SubmitCaseAndSave(ctx, sub)
			return callErr
		},
		func(mark int) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.transcript = c.transcript[:mark]
		},
	)
	if err != nil {
		c.fail(CasePhaseActive, "Your response could not be submitted. Please try again.")
		return err
	}

	c.mu.Lock()
	c.result = result
	c.transcript = append(c.transcript, model.ChatMessage{
		Role:      model.ChatRoleAssistant,
		Content:   renderCorrection(result),
		Timestamp: time.Now(),
	})
	c.phase = CasePhaseCompleted
	c.mu.Unlock()

	c.svc.log.Info().Str("session", c.ID).Float64("score", result.GradingResult.Score).Msg("Case graded")
	return nil
}

// fail appends a locally generated error entry and restores the given phase.
func (c *CaseSession) fail(phase CasePhase, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = append(c.transcript, model.ChatMessage{
		Role:      model.ChatRoleSystem,
		Content:   message,
		Timestamp: time.Now(),
		IsError:   true,
	})
	c.phase = phase
}

// renderCase formats the generated case for display.
func renderCase(p *model.CasePayload) string {
	var b strings.Builder
	if p.Case.Title != "" {
		fmt.Fprintf(&b, "%s\n\n", p.Case.Title)
	}
	b.WriteString(p.Case.Description)
	if p.Case.Instructions != "" {
		fmt.Fprintf(&b, "\n\n%s", p.Case.Instructions)
	}
	if len(p.PedagogicalObjectives) > 0 {
		b.WriteString("\n\nObjectives:")
		for _, obj := range p.PedagogicalObjectives {
			fmt.Fprintf(&b, "\n  - %s", obj)
		}
	}
	return b.String()
}

// renderCorrection formats the grading result for display.
func renderCorrection(r *model.CaseSubmissionResponse) string {
	var b strings.Builder
	score := r.GradingResult.Score
	if r.FinalScore != nil {
		score = *r.FinalScore
	}
	fmt.Fprintf(&b, "Score: %.1f/100\n\n%s", score, r.GradingResult.Feedback)
	if len(r.GradingResult.DetailedAnalysis.Strengths) > 0 {
		b.WriteString("\n\nStrengths:")
		for _, s := range r.GradingResult.DetailedAnalysis.Strengths {
			fmt.Fprintf(&b, "\n  - %s", s)
		}
	}
	if len(r.GradingResult.DetailedAnalysis.Improvements) > 0 {
		b.WriteString("\n\nAreas to improve:")
		for _, s := range r.GradingResult.DetailedAnalysis.Improvements {
			fmt.Fprintf(&b, "\n  - %s", s)
		}
	}
	return b.String()
}
