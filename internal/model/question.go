package model

import (
	"fmt"
	"strings"
)

// QuestionType discriminates the two question shapes.
type QuestionType string

const (
	QuestionMCQ  QuestionType = "mcq"
	QuestionOpen QuestionType = "open"
)

const mcqOptionCount = 4

// SubmissionResult is the per-question grading outcome merged back after
// submission.
type SubmissionResult struct {
	IsCorrect     *bool    `json:"is_correct,omitempty"`
	Grade         *float64 `json:"grade,omitempty"`
	Feedback      string   `json:"feedback,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	ModelAnswer   string   `json:"model_answer,omitempty"`
}

// Question is one evaluation question with the learner's local answer state.
// Exactly one of the MCQ/open shapes applies, per Type.
type Question struct {
	Type  QuestionType
	Title string

	// MCQ shape.
	Options       []string
	CorrectAnswer string // hidden from display until grading
	AnswerIndex   *int
	// Resolved at grading time by matching the returned correct answer text.
	CorrectIndex *int

	// Open shape.
	ModelAnswer string // hidden from display until grading
	Answer      string

	References string

	Attempted bool
	Flagged   bool

	// RawData preserves the original wire tuple so submission sends back
	// exactly what the generator produced.
	RawData []any

	Result *SubmissionResult
}

// QuestionFromTuple decodes one positional wire tuple. MCQ tuples carry
// [title, opt1..opt4, correctAnswer, references]; open tuples carry
// [title, modelAnswer, references].
func QuestionFromTuple(tuple []any) (Question, error) {
	fields := make([]string, len(tuple))
	for i, v := range tuple {
		s, ok := v.(string)
		if !ok {
			return Question{}, fmt.Errorf("question field %d: expected string, got %T", i, v)
		}
		fields[i] = s
	}

	switch len(tuple) {
	case mcqOptionCount + 3:
		return Question{
			Type:          QuestionMCQ,
			Title:         fields[0],
			Options:       fields[1 : 1+mcqOptionCount],
			CorrectAnswer: fields[1+mcqOptionCount],
			References:    fields[2+mcqOptionCount],
			RawData:       tuple,
		}, nil
	case 3:
		return Question{
			Type:        QuestionOpen,
			Title:       fields[0],
			ModelAnswer: fields[1],
			References:  fields[2],
			RawData:     tuple,
		}, nil
	default:
		return Question{}, fmt.Errorf("question tuple has %d fields, want 3 (open) or %d (mcq)", len(tuple), mcqOptionCount+3)
	}
}

// Response returns the string submitted for grading: the chosen option text
// for MCQ, the raw free text for open, empty when unanswered.
func (q *Question) Response() string {
	if q.Type == QuestionMCQ {
		if q.AnswerIndex == nil || *q.AnswerIndex < 0 || *q.AnswerIndex >= len(q.Options) {
			return ""
		}
		return q.Options[*q.AnswerIndex]
	}
	return q.Answer
}

// ResolveCorrectIndex locates the graded correct answer among the options.
// Returns nil when the text matches no option.
func (q *Question) ResolveCorrectIndex(correctAnswer string) *int {
	want := strings.TrimSpace(correctAnswer)
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == want {
			idx := i
			return &idx
		}
	}
	return nil
}
