package model

// EvaluationType enumerates the evaluation kinds recognized by the backend.
type EvaluationType string

const (
	EvaluationPositioning EvaluationType = "positionnement"
	EvaluationModuleMixed EvaluationType = "module_mixed"
	EvaluationModuleCase  EvaluationType = "module_case"
	EvaluationFinal       EvaluationType = "finale"
)

// MixedEvaluationRequest asks the backend to generate a mixed MCQ/open
// question set. Weights must sum to 1.0 and topics must be non-empty; both
// are checked locally before any network call.
type MixedEvaluationRequest struct {
	Topics        []string            `json:"topics" validate:"required,min=1,dive,required"`
	NumQuestions  int                 `json:"num_questions" validate:"required,gte=1"`
	MCQWeight     float64             `json:"mcq_weight" validate:"gte=0,lte=1"`
	OpenWeight    float64             `json:"open_weight" validate:"gte=0,lte=1"`
	Language      string              `json:"language" validate:"required"`
	IsPositioning bool                `json:"is_positioning"`
	ModulesTopics map[string][]string `json:"modules_topics,omitempty"`
	CourseFilter  string              `json:"course_filter,omitempty"`
}

// MixedEvaluationResponse carries generated questions as positional tuples;
// see QuestionFromTuple for the tuple layout.
type MixedEvaluationResponse struct {
	Questions [][]any `json:"questions"`
}

// EvaluationSubmission posts the answered question set for grading.
// Responses align positionally with Questions.
type EvaluationSubmission struct {
	Questions      [][]any        `json:"questions" validate:"required,min=1"`
	Responses      []string       `json:"responses" validate:"required"`
	Topics         []string       `json:"topics"`
	Course         string         `json:"course" validate:"required"`
	Module         string         `json:"module"`
	EvaluationType EvaluationType `json:"evaluation_type" validate:"required"`
	Language       string         `json:"language" validate:"required"`
	IsFinal        bool           `json:"is_final"`
}

// QuestionResult is the wire shape of one graded question.
type QuestionResult struct {
	IsCorrect     *bool    `json:"is_correct,omitempty"`
	Grade         *float64 `json:"grade,omitempty"`
	Feedback      string   `json:"feedback,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	ModelAnswer   string   `json:"model_answer,omitempty"`
}

// GradingResult is the grader payload inside a submission response.
type GradingResult struct {
	Results    []QuestionResult `json:"results"`
	StudyGuide string           `json:"study_guide,omitempty"`
	FinalScore float64          `json:"final_score"`
}

// SubmissionResponse is the full submit-and-save response.
type SubmissionResponse struct {
	GradingResult      GradingResult `json:"grading_result"`
	FinalScore         *float64      `json:"final_score"`
	ScoreSaved         bool          `json:"score_saved"`
	UserUpdated        bool          `json:"user_updated"`
	ProgressionUpdated bool          `json:"progression_updated"`
}

// LastScore is the short-lived local record of the most recent result for a
// course+module, kept for immediate feedback without a repeat fetch.
type LastScore struct {
	Course     string         `json:"course"`
	Module     string         `json:"module"`
	Score      float64        `json:"score"`
	Type       EvaluationType `json:"evaluation_type"`
	RecordedAt int64          `json:"recorded_at"`
}
