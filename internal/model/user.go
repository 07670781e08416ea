package model

import "time"

// CourseScore aggregates a learner's results for a single course.
type CourseScore struct {
	AverageScore     float64 `json:"average_score"`
	TotalEvaluations int     `json:"total_evaluations"`
}

// EvaluationScore is one past evaluation result.
type EvaluationScore struct {
	Score          float64  `json:"score"`
	Topics         []string `json:"topics"`
	Course         string   `json:"course"`
	Module         string   `json:"module"`
	EvaluationType string   `json:"evaluation_type"`
	Date           APITime  `json:"date"`
}

// PlacementTest records the positioning attempt for a course.
type PlacementTest struct {
	Status        string   `json:"status"`
	Score         *float64 `json:"score,omitempty"`
	DateAttempted *APITime `json:"date_attempted,omitempty"`
	Attempts      int      `json:"attempts"`
}

// ModuleStatus is a learner's progression state for one module.
type ModuleStatus struct {
	Status    string   `json:"status"`
	BestScore *float64 `json:"best_score,omitempty"`
	Attempts  int      `json:"attempts"`
}

// CourseProgress is a learner's progression record for one course.
type CourseProgress struct {
	PositionnementTest PlacementTest           `json:"positionnement_test"`
	ModulesStatus      map[string]ModuleStatus `json:"modules_status"`
	UnlockedModules    int                     `json:"unlocked_modules"`
}

// LearningAnalytics holds activity aggregates maintained by the backend.
type LearningAnalytics struct {
	TotalPositionnementTests int      `json:"total_positionnement_tests"`
	LastActivityDate         *APITime `json:"last_activity_date,omitempty"`
	ActivityDates            []string `json:"activity_dates,omitempty"`
}

// User is the authenticated user profile as returned by the backend.
type User struct {
	ID               string                    `json:"id"`
	Username         string                    `json:"username"`
	Email            string                    `json:"email"`
	CreatedAt        *APITime                  `json:"created_at,omitempty"`
	LastLogin        *APITime                  `json:"last_login,omitempty"`
	AverageScore     float64                   `json:"average_score"`
	TotalEvaluations int                       `json:"total_evaluations"`
	CourseScores     map[string]CourseScore    `json:"course_scores"`
	Evaluations      []EvaluationScore         `json:"evaluations"`
	CourseProgress   map[string]CourseProgress `json:"course_progress"`
	Analytics        *LearningAnalytics        `json:"learning_analytics,omitempty"`
}

// UserSnapshot is the locally cached profile. UserHash is derived client-side
// (SHA-256 of the user id) and never sent to the backend.
type UserSnapshot struct {
	User     User      `json:"user"`
	UserHash string    `json:"user_hash"`
	CachedAt time.Time `json:"cached_at"`
}
