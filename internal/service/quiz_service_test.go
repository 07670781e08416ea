package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/praxislearn/praxis-cli/internal/api"
	"github.com/praxislearn/praxis-cli/internal/event"
	"github.com/praxislearn/praxis-cli/internal/model"
	"github.com/praxislearn/praxis-cli/internal/store"
)

func newQuizEnv(t *testing.T, h http.Handler) (*QuizService, *store.MemStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	st := store.NewMemStore()
	bus := event.NewBus(zerolog.Nop())
	client := api.New(cfg, st, bus, zerolog.Nop())
	catalog := NewCatalogService(cfg, client, st, bus, zerolog.Nop())
	seedSession(t, st)
	return NewQuizService(cfg, client, catalog, st, zerolog.Nop()), st
}

// twoQuestionBody is one MCQ tuple and one open tuple.
const twoQuestionBody = `{"questions":[
	["What is price elasticity?","Opt A","Opt B","Opt C","Opt D","Opt B","ch. 4"],
	["Explain market segmentation.","A model answer.","ch. 2"]
]}`

func questionsHandler(t *testing.T, gotReq *model.MixedEvaluationRequest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/evaluation/evaluate-mixed", r.URL.Path)
		if gotReq != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(gotReq))
		}
		w.Write([]byte(twoQuestionBody))
	}
}

func startedSession(t *testing.T, svc *QuizService, params QuizParams) *QuizSession {
	t.Helper()
	session := svc.NewSession(params)
	require.NoError(t, session.Start(context.Background()))
	require.Equal(t, QuizPhaseReady, session.Phase())
	return session
}

func TestQuizSession_StartParsesQuestions(t *testing.T) {
	var req model.MixedEvaluationRequest
	svc, _ := newQuizEnv(t, questionsHandler(t, &req))

	session := startedSession(t, svc, QuizParams{
		Course: "Fundamentals of Marketing",
		Module: "Pricing",
		Topics: []string{"Pricing strategy"},
	})

	require.Equal(t, []string{"Pricing strategy"}, req.Topics)
	require.Equal(t, moduleQuestionCount, req.NumQuestions)
	require.InDelta(t, mcqWeight, req.MCQWeight, 1e-9)
	require.InDelta(t, openWeight, req.OpenWeight, 1e-9)
	require.False(t, req.IsPositioning)

	questions := session.Questions()
	require.Len(t, questions, 2)
	require.Equal(t, model.QuestionMCQ, questions[0].Type)
	require.Equal(t, []string{"Opt A", "Opt B", "Opt C", "Opt D"}, questions[0].Options)
	require.Equal(t, model.QuestionOpen, questions[1].Type)
	require.Equal(t, "A model answer.", questions[1].ModelAnswer)
}

func TestQuizSession_PositioningResolvesTopicsFromCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/topics/all", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_modules":2,"modules":[
			{"program":"MBA","level":"M1","course":"Fundamentals of Marketing","module":"Pricing","topics":["Pricing strategy","Elasticity"]},
			{"program":"MBA","level":"M1","course":"Fundamentals of Marketing","module":"Branding","topics":["Brand equity"]}
		]}`))
	})
	var req model.MixedEvaluationRequest
	mux.HandleFunc("/api/evaluation/evaluate-mixed", questionsHandler(t, &req))

	svc, _ := newQuizEnv(t, mux)
	startedSession(t, svc, QuizParams{Positioning: true})

	// Course fell back to the configured default, topics aggregate across
	// all of its modules, and the per-module map rides along.
	require.Equal(t, "Fundamentals of Marketing", req.CourseFilter)
	require.True(t, req.IsPositioning)
	require.Equal(t, positioningQuestionCount, req.NumQuestions)
	require.ElementsMatch(t, []string{"Pricing strategy", "Elasticity", "Brand equity"}, req.Topics)
	require.Equal(t, map[string][]string{
		"Pricing":  {"Pricing strategy", "Elasticity"},
		"Branding": {"Brand equity"},
	}, req.ModulesTopics)
}

func TestQuizSession_StartWithoutTopics(t *testing.T) {
	svc, _ := newQuizEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected network call")
	}))

	session := svc.NewSession(QuizParams{Course: "Fundamentals of Marketing", Module: "Pricing"})
	require.ErrorIs(t, session.Start(context.Background()), ErrNoTopics)
	require.Equal(t, QuizPhaseIdle, session.Phase())
}

func TestQuizSession_StartOnlyRunsOnce(t *testing.T) {
	svc, _ := newQuizEnv(t, questionsHandler(t, nil))
	session := startedSession(t, svc, QuizParams{Topics: []string{"a"}, Course: "c"})

	err := session.Start(context.Background())
	require.Error(t, err)
	require.Equal(t, QuizPhaseReady, session.Phase())
}

func TestQuizSession_FailedFetchAllowsRetry(t *testing.T) {
	var calls int
	svc, _ := newQuizEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(twoQuestionBody))
	}))

	session := svc.NewSession(QuizParams{Topics: []string{"a"}, Course: "c"})
	require.Error(t, session.Start(context.Background()))
	require.Equal(t, QuizPhaseIdle, session.Phase())

	require.NoError(t, session.Start(context.Background()))
	require.Equal(t, QuizPhaseReady, session.Phase())
}

func TestQuizSession_SaveAnswerMCQ(t *testing.T) {
	svc, _ := newQuizEnv(t, questionsHandler(t, nil))
	session := startedSession(t, svc, QuizParams{Topics: []string{"a"}, Course: "c"})

	require.Error(t, session.SaveAnswer("7"))
	require.Error(t, session.SaveAnswer("x"))

	require.NoError(t, session.SaveAnswer("1"))
	q, _ := session.Current()
	require.True(t, q.Attempted)
	require.Equal(t, 1, *q.AnswerIndex)

	// Changing the choice keeps it attempted.
	require.NoError(t, session.SaveAnswer("3"))
	q, _ = session.Current()
	require.True(t, q.Attempted)
	require.Equal(t, "Opt D", q.Response())
}

func TestQuizSession_SaveAnswerOpenTracksTrimmedText(t *testing.T) {
	svc, _ := newQuizEnv(t, questionsHandler(t, nil))
	session := startedSession(t, svc, QuizParams{Topics: []string{"a"}, Course: "c"})
	session.Next()

	require.NoError(t, session.SaveAnswer("   "))
	q, _ := session.Current()
	require.False(t, q.Attempted)

	require.NoError(t, session.SaveAnswer("Segmentation splits a market."))
	q, _ = session.Current()
	require.True(t, q.Attempted)

	// Clearing the text reverts the attempted state.
	require.NoError(t, session.SaveAnswer(""))
	q, _ = session.Current()
	require.False(t, q.Attempted)
}

func TestQuizSession_FlaggingNeverAffectsAttempted(t *testing.T) {
	svc, _ := newQuizEnv(t, questionsHandler(t, nil))
	session := startedSession(t, svc, QuizParams{Topics: []string{"a"}, Course: "c"})

	session.ToggleFlag()
	q, _ := session.Current()
	require.True(t, q.Flagged)
	require.False(t, q.Attempted)

	session.ToggleFlag()
	q, _ = session.Current()
	require.False(t, q.Flagged)
}

func TestQuizSession_NavigationClamps(t *testing.T) {
	svc, _ := newQuizEnv(t, questionsHandler(t, nil))
	session := startedSession(t, svc, QuizParams{Topics: []string{"a"}, Course: "c"})

	session.Prev()
	require.Equal(t, 0, session.CurrentIndex())
	session.GoTo(99)
	require.Equal(t, 1, session.CurrentIndex())
	session.GoTo(-5)
	require.Equal(t, 0, session.CurrentIndex())
	session.Next()
	session.Next()
	require.Equal(t, 1, session.CurrentIndex())
}

func TestQuizSession_Stats(t *testing.T) {
	svc, _ := newQuizEnv(t, questionsHandler(t, nil))
	session := startedSession(t, svc, QuizParams{Topics: []string{"a"}, Course: "c"})

	require.Equal(t, QuizStats{Total: 2, Unattempted: 2}, session.Stats())

	require.NoError(t, session.SaveAnswer("0"))
	session.ToggleFlag()
	stats := session.Stats()
	require.Equal(t, 1, stats.Attempted)
	require.Equal(t, 1, stats.Flagged)
	require.Equal(t, 1, stats.Unattempted)
	require.InDelta(t, 50.0, stats.Progress, 1e-9)
}

const gradedBody = `{
	"grading_result":{
		"results":[
			{"is_correct":false,"correct_answer":"Opt B"},
			{"grade":7.5,"feedback":"Solid answer.","model_answer":"A model answer."}
		],
		"study_guide":"Review chapter 4.",
		"final_score":62.5
	},
	"final_score":62.5,"score_saved":true,"user_updated":true,"progression_updated":false
}`

func TestQuizSession_SubmitGradesAndMirrorsScore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/evaluation/evaluate-mixed", questionsHandler(t, nil))
	var sub model.EvaluationSubmission
	mux.HandleFunc("/api/evaluation/submit-and-save", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		w.Write([]byte(gradedBody))
	})

	svc, _ := newQuizEnv(t, mux)
	session := startedSession(t, svc, QuizParams{
		Course: "Fundamentals of Marketing",
		Module: "Pricing",
		Topics: []string{"Pricing strategy"},
	})

	require.NoError(t, session.SaveAnswer("0")) // wrong option, question 2 left blank

	resp, err := session.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, QuizPhaseGraded, session.Phase())
	require.True(t, session.Submitted())
	require.NotNil(t, resp.FinalScore)

	// The wire submission carries the original tuples and positionally
	// aligned responses, empty string for the unanswered question.
	require.Len(t, sub.Questions, 2)
	require.Equal(t, []string{"Opt A", ""}, sub.Responses)
	require.Equal(t, model.EvaluationModuleMixed, sub.EvaluationType)

	// Results merged back, with the correct MCQ option resolved by text.
	questions := session.Questions()
	require.NotNil(t, questions[0].Result)
	require.False(t, *questions[0].Result.IsCorrect)
	require.Equal(t, 1, *questions[0].CorrectIndex)
	require.InDelta(t, 7.5, *questions[1].Result.Grade, 1e-9)

	// The freshest score is mirrored locally.
	last := svc.LastScore("Fundamentals of Marketing", "Pricing")
	require.NotNil(t, last)
	require.InDelta(t, 62.5, last.Score, 1e-9)
}

func TestQuizSession_SubmitTwice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/evaluation/evaluate-mixed", questionsHandler(t, nil))
	mux.HandleFunc("/api/evaluation/submit-and-save", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(gradedBody))
	})

	svc, _ := newQuizEnv(t, mux)
	session := startedSession(t, svc, QuizParams{Topics: []string{"a"}, Course: "c"})

	_, err := session.Submit(context.Background())
	require.NoError(t, err)

	_, err = session.Submit(context.Background())
	require.ErrorIs(t, err, ErrAlreadySubmitted)

	// Post-grading mutations are no-ops.
	require.NoError(t, session.SaveAnswer("2"))
	q, _ := session.Current()
	require.Nil(t, q.AnswerIndex)
	session.ToggleFlag()
	q, _ = session.Current()
	require.False(t, q.Flagged)
}

func TestQuizSession_FailedSubmitReturnsToReady(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/evaluation/evaluate-mixed", questionsHandler(t, nil))
	mux.HandleFunc("/api/evaluation/submit-and-save", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	svc, _ := newQuizEnv(t, mux)
	session := startedSession(t, svc, QuizParams{Topics: []string{"a"}, Course: "c"})
	require.NoError(t, session.SaveAnswer("1"))

	_, err := session.Submit(context.Background())
	require.Error(t, err)
	require.Equal(t, QuizPhaseReady, session.Phase())

	// Answers survive the failed attempt.
	q, _ := session.Current()
	require.True(t, q.Attempted)
}
