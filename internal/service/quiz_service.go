package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/praxislearn/praxis-cli/internal/api"
	"github.com/praxislearn/praxis-cli/internal/config"
	"github.com/praxislearn/praxis-cli/internal/model"
	"github.com/praxislearn/praxis-cli/internal/store"
)

// Question-set sizing and mix.
const (
	positioningQuestionCount = 15
	moduleQuestionCount      = 5
	mcqWeight                = 0.6
	openWeight               = 0.4

	lastScoreTTL = 10 * time.Minute
)

// Common quiz errors.
var (
	ErrNoTopics         = errors.New("no topics available for this evaluation")
	ErrAlreadySubmitted = errors.New("the evaluation has already been submitted")
	ErrNotReady         = errors.New("the evaluation is not ready")
)

// QuizPhase is the explicit evaluation-session state.
type QuizPhase string

const (
	QuizPhaseIdle       QuizPhase = "IDLE"
	QuizPhaseLoading    QuizPhase = "LOADING"
	QuizPhaseReady      QuizPhase = "READY"
	QuizPhaseSubmitting QuizPhase = "SUBMITTING"
	QuizPhaseGraded     QuizPhase = "GRADED"
)

// invalidTransitionError reports a rejected phase change.
type invalidTransitionError struct {
	from, to QuizPhase
}

func (e *invalidTransitionError) Error() string {
	return fmt.Sprintf("invalid quiz transition from %s to %s", e.from, e.to)
}

// QuizParams configures one evaluation attempt.
type QuizParams struct {
	Course string
	Module string
	// Topics is the caller-supplied list for a module attempt; ignored for
	// positioning, which resolves topics from the catalog.
	Topics      []string
	Positioning bool
	// Final marks the concluding positioning attempt of a course.
	Final bool
}

// QuizService builds evaluation sessions wired to the backend and catalog.
type QuizService struct {
	cfg     *config.Config
	client  *api.Client
	catalog *CatalogService
	st      store.Store
	log     zerolog.Logger
}

// NewQuizService creates a QuizService.
func NewQuizService(cfg *config.Config, client *api.Client, catalog *CatalogService, st store.Store, log zerolog.Logger) *QuizService {
	return &QuizService{
		cfg:     cfg,
		client:  client,
		catalog: catalog,
		st:      st,
		log:     log.With().Str("component", "quiz").Logger(),
	}
}

// NewSession creates a session in the idle phase. Nothing is fetched until
// Start is called.
func (s *QuizService) NewSession(params QuizParams) *QuizSession {
	return &QuizSession{
		ID:     uuid.New().String(),
		svc:    s,
		params: params,
		phase:  QuizPhaseIdle,
	}
}

// QuizStats are the derived per-render counters. They are recomputed on
// demand and never stored.
type QuizStats struct {
	Total       int
	Attempted   int
	Flagged     int
	Unattempted int
	Progress    float64
}

// QuizSession drives one timed assessment attempt from question acquisition
// through grading. All methods are safe for concurrent use; question fetching
// and submission each coalesce concurrent duplicate calls onto a single
// network request.
type QuizSession struct {
	ID string

	svc    *QuizService
	params QuizParams

	mu        sync.Mutex
	phase     QuizPhase
	questions []model.Question
	current   int
	topics    []string
	result    *model.SubmissionResponse

	inflight singleflight.Group
}

// Phase returns the current session phase.
func (q *QuizSession) Phase() QuizPhase {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.phase
}

// Submitted reports whether grading has completed.
func (q *QuizSession) Submitted() bool {
	return q.Phase() == QuizPhaseGraded
}

// transition moves the phase, rejecting any move not starting at from.
// Callers hold q.mu.
func (q *QuizSession) transition(from, to QuizPhase) error {
	if q.phase != from {
		return &invalidTransitionError{from: q.phase, to: to}
	}
	q.phase = to
	return nil
}

// Start fetches the question set. It runs at most once per session: repeat
// calls after success are rejected by the phase guard, and concurrent
// duplicates receive the already-pending result. A failed fetch returns the
// session to idle so the learner may retry, except for the terminal
// empty-topic case which never reaches the network.
func (q *QuizSession) Start(ctx context.Context) error {
	_, err, _ := q.inflight.Do("fetch", func() (any, error) {
		return nil, q.fetchQuestions(ctx)
	})
	return err
}

func (q *QuizSession) fetchQuestions(ctx context.Context) error {
	q.mu.Lock()
	if err := q.transition(QuizPhaseIdle, QuizPhaseLoading); err != nil {
		q.mu.Unlock()
		return err
	}
	q.mu.Unlock()

	req, err := q.buildRequest(ctx)
	if err != nil {
		q.setPhase(QuizPhaseIdle)
		return err
	}

	resp, err := q.svc.client.EvaluateMixed(ctx, *req)
	if err != nil {
		q.setPhase(QuizPhaseIdle)
		return err
	}

	questions := make([]model.Question, 0, len(resp.Questions))
	for i, tuple := range resp.Questions {
		question, err := model.QuestionFromTuple(tuple)
		if err != nil {
			q.setPhase(QuizPhaseIdle)
			return fmt.Errorf("question %d: %w", i, err)
		}
		questions = append(questions, question)
	}

	q.mu.Lock()
	q.questions = questions
	q.topics = req.Topics
	q.current = 0
	q.phase = QuizPhaseReady
	q.mu.Unlock()

	q.svc.log.Info().Str("session", q.ID).Int("questions", len(questions)).Msg("Question set ready")
	return nil
}

func (q *QuizSession) setPhase(p QuizPhase) {
	q.mu.Lock()
	q.phase = p
	q.mu.Unlock()
}

// buildRequest resolves the applicable topic set and assembles the
// evaluate-mixed request. Resolution order: a positioning attempt scoped to a
// course aggregates topics across all of that course's modules; positioning
// without a course context falls back to the configured default course; a
// module attempt uses the caller-supplied topics.
func (q *QuizSession) buildRequest(ctx context.Context) (*model.MixedEvaluationRequest, error) {
	cfg := q.svc.cfg
	req := &model.MixedEvaluationRequest{
		NumQuestions:  moduleQuestionCount,
		MCQWeight:     mcqWeight,
		OpenWeight:    openWeight,
		Language:      cfg.Language,
		IsPositioning: q.params.Positioning,
	}

	if q.params.Positioning {
		course := q.params.Course
		if course == "" {
			course = cfg.DefaultCourse
		}
		topics, err := q.svc.catalog.CourseTopics(ctx, course)
		if err != nil {
			return nil, err
		}
		modulesTopics, err := q.svc.catalog.ModulesTopics(ctx, course)
		if err != nil {
			return nil, err
		}
		req.Topics = topics
		req.ModulesTopics = modulesTopics
		req.CourseFilter = course
		req.NumQuestions = positioningQuestionCount
	} else {
		req.Topics = q.params.Topics
		req.CourseFilter = q.params.Course
	}

	if len(req.Topics) == 0 {
		return nil, ErrNoTopics
	}
	return req, nil
}

// Questions returns a snapshot of the question list.
func (q *QuizSession) Questions() []model.Question {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Question, len(q.questions))
	copy(out, q.questions)
	return out
}

// CurrentIndex returns the current question position.
func (q *QuizSession) CurrentIndex() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Current returns the current question, or false when none are loaded.
func (q *QuizSession) Current() (model.Question, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.questions) == 0 {
		return model.Question{}, false
	}
	return q.questions[q.current], true
}

// SaveAnswer records an answer on the current question. For an MCQ question
// the value is an option index; choosing any option marks it attempted. For
// an open question the value is the raw text and attempted tracks whether
// the trimmed text is non-empty, so clearing an answer reverts it. A no-op
// once the session is submitting or graded.
func (q *QuizSession) SaveAnswer(value string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.phase == QuizPhaseSubmitting || q.phase == QuizPhaseGraded {
		return nil
	}
	if len(q.questions) == 0 {
		return ErrNotReady
	}

	question := &q.questions[q.current]
	switch question.Type {
	case model.QuestionMCQ:
		idx, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || idx < 0 || idx >= len(question.Options) {
			return fmt.Errorf("invalid option %q", value)
		}
		question.AnswerIndex = &idx
		question.Attempted = true
	case model.QuestionOpen:
		question.Answer = value
		question.Attempted = strings.TrimSpace(value) != ""
	}
	return nil
}

// ToggleFlag flips the review flag on the current question only. Flagging
// never affects the attempted state. A no-op once submitting or graded.
func (q *QuizSession) ToggleFlag() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.phase == QuizPhaseSubmitting || q.phase == QuizPhaseGraded {
		return
	}
	if len(q.questions) == 0 {
		return
	}
	q.questions[q.current].Flagged = !q.questions[q.current].Flagged
}

// GoTo moves to question index i, clamped to the valid range.
func (q *QuizSession) GoTo(i int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.questions) == 0 {
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= len(q.questions) {
		i = len(q.questions) - 1
	}
	q.current = i
}

// Next advances to the next question.
func (q *QuizSession) Next() { q.GoTo(q.CurrentIndex() + 1) }

// Prev moves back one question.
func (q *QuizSession) Prev() { q.GoTo(q.CurrentIndex() - 1) }

// Stats recomputes the derived counters.
func (q *QuizSession) Stats() QuizStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := QuizStats{Total: len(q.questions)}
	for _, question := range q.questions {
		if question.Attempted {
			stats.Attempted++
		}
		if question.Flagged {
			stats.Flagged++
		}
	}
	stats.Unattempted = stats.Total - stats.Attempted
	if stats.Total > 0 {
		stats.Progress = float64(stats.Attempted) / float64(stats.Total) * 100
	}
	return stats
}

// Result returns the grading payload once graded.
func (q *QuizSession) Result() *model.SubmissionResponse {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result
}

// Submit packages the original raw question data with the collected
// responses (positionally aligned, empty string for unanswered) and posts
// them for grading. Concurrent duplicate calls share one network request.
// On success the per-question results are merged back and the final score is
// mirrored into a short-lived local record; on failure the session returns
// to ready so the learner can retry.
func (q *QuizSession) Submit(ctx context.Context) (*model.SubmissionResponse, error) {
	v, err, _ := q.inflight.Do("submit", func() (any, error) {
		return q.submit(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.SubmissionResponse), nil
}

func (q *QuizSession) submit(ctx context.Context) (*model.SubmissionResponse, error) {
	q.mu.Lock()
	if q.phase == QuizPhaseGraded {
		q.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	if err := q.transition(QuizPhaseReady, QuizPhaseSubmitting); err != nil {
		q.mu.Unlock()
		return nil, err
	}

	rawQuestions := make([][]any, len(q.questions))
	responses := make([]string, len(q.questions))
	for i := range q.questions {
		rawQuestions[i] = q.questions[i].RawData
		responses[i] = q.questions[i].Response()
	}
	topics := q.topics
	q.mu.Unlock()

	evalType := model.EvaluationModuleMixed
	if q.params.Positioning {
		evalType = model.EvaluationPositioning
	}

	course := q.params.Course
	if course == "" {
		course = q.svc.cfg.DefaultCourse
	}

	sub := model.EvaluationSubmission{
		Questions:      rawQuestions,
		Responses:      responses,
		Topics:         topics,
		Course:         course,
		Module:         q.params.Module,
		EvaluationType: evalType,
		Language:       q.svc.cfg.Language,
		IsFinal:        q.params.Final,
	}

	resp, err := q.svc.client.SubmitAndSave(ctx, sub)
	if err != nil {
		q.setPhase(QuizPhaseReady)
		return nil, err
	}

	q.mu.Lock()
	q.mergeResults(resp)
	q.result = resp
	q.phase = QuizPhaseGraded
	q.mu.Unlock()

	q.mirrorLastScore(course, evalType, resp)
	q.svc.log.Info().Str("session", q.ID).Msg("Evaluation graded")
	return resp, nil
}

// mergeResults attaches per-question grading back onto the question list,
// relying on the positional correspondence of results and questions. The
// correct MCQ option index is resolved by matching the returned answer text.
// Callers hold q.mu.
func (q *QuizSession) mergeResults(resp *model.SubmissionResponse) {
	for i, res := range resp.GradingResult.Results {
		if i >= len(q.questions) {
			break
		}
		question := &q.questions[i]
		question.Result = &model.SubmissionResult{
			IsCorrect:     res.IsCorrect,
			Grade:         res.Grade,
			Feedback:      res.Feedback,
			CorrectAnswer: res.CorrectAnswer,
			ModelAnswer:   res.ModelAnswer,
		}

		if question.Type == model.QuestionMCQ {
			correct := res.CorrectAnswer
			if correct == "" {
				correct = question.CorrectAnswer
			}
			question.CorrectIndex = question.ResolveCorrectIndex(correct)
		}
	}
}

// mirrorLastScore keeps the freshest result available locally for immediate
// display without a profile re-fetch.
func (q *QuizSession) mirrorLastScore(course string, evalType model.EvaluationType, resp *model.SubmissionResponse) {
	score := resp.GradingResult.FinalScore
	if resp.FinalScore != nil {
		score = *resp.FinalScore
	}
	record := model.LastScore{
		Course:     course,
		Module:     q.params.Module,
		Score:      score,
		Type:       evalType,
		RecordedAt: time.Now().Unix(),
	}
	key := store.StateKey.LastScoreKey(course, q.params.Module)
	if err := q.svc.st.Set(key, record, lastScoreTTL); err != nil {
		q.svc.log.Warn().Err(err).Msg("Last-score mirror write failed")
	}
}

// LastScore returns the short-lived mirrored score for a course+module, or
// nil when none is recorded.
func (s *QuizService) LastScore(course, module string) *model.LastScore {
	var record model.LastScore
	if err := s.st.Get(store.StateKey.LastScoreKey(course, module), &record); err != nil {
		return nil
	}
	return &record
}
