package model

// CaseRequest asks the backend to generate a practical case for a module.
type CaseRequest struct {
	Topics        []string `json:"topics" validate:"required,min=1,dive,required"`
	Level         string   `json:"level" validate:"required"`
	CourseContext string   `json:"course_context,omitempty"`
	Language      string   `json:"language" validate:"required"`
	CourseFilter  string   `json:"course_filter,omitempty"`
}

// CaseNarrative is the generated case scenario shown to the learner.
type CaseNarrative struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
}

// CasePayload is the full generated case. The backend is stateless between
// generation and correction, so the whole payload is retained client-side and
// sent back verbatim with the learner's response.
type CasePayload struct {
	Case                       CaseNarrative    `json:"case"`
	PedagogicalObjectives      []string         `json:"pedagogical_objectives"`
	ExpectedElementsOfResponse []string         `json:"expected_elements_of_response,omitempty"`
	EvaluationCriteria         []map[string]any `json:"evaluation_criteria,omitempty"`
}

// CaseSubmission posts the retained case payload plus the learner's response
// for grading.
type CaseSubmission struct {
	CaseData     CasePayload `json:"case_data"`
	UserResponse string      `json:"user_response" validate:"required"`
	Course       string      `json:"course" validate:"required"`
	Level        string      `json:"level" validate:"required"`
	Topics       []string    `json:"topics"`
	Module       string      `json:"module"`
	Language     string      `json:"language" validate:"required"`
}

// CaseAnalysis lists strengths and improvement areas from the grader.
type CaseAnalysis struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// CaseGrading is the grading payload for a case submission.
type CaseGrading struct {
	Score            float64      `json:"score"`
	Feedback         string       `json:"feedback"`
	DetailedAnalysis CaseAnalysis `json:"detailed_analysis"`
}

// CaseSubmissionResponse is the full submit-case-and-save response.
type CaseSubmissionResponse struct {
	GradingResult CaseGrading `json:"grading_result"`
	FinalScore    *float64    `json:"final_score"`
	ScoreSaved    bool        `json:"score_saved"`
}
