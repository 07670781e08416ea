package api

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/praxislearn/praxis-cli/internal/model"
	"github.com/praxislearn/praxis-cli/internal/validator"
)

// validationError converts a field error map into a normalized Error so
// malformed requests never reach the network.
func validationError(fields map[string]string) *Error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, fields[k]))
	}
	return &Error{Code: ErrValidation, Message: strings.Join(parts, "; ")}
}

// ─── Authentication ────────────────────────────────────────────────────

// SendVerificationCode asks the backend to email a login code.
func (c *Client) SendVerificationCode(ctx context.Context, email string) error {
	req := model.EmailRequest{Email: email}
	if fields := validator.Struct(req); fields != nil {
		return validationError(fields)
	}
	var out model.StatusResponse
	return c.postAnon(ctx, "/api/auth/send-verification-code", req, &out)
}

// VerifyCode exchanges an emailed code for a token bundle.
func (c *Client) VerifyCode(ctx context.Context, email, code string) (*model.VerificationResponse, error) {
	req := model.VerificationRequest{Email: email, Code: code}
	if fields := validator.Struct(req); fields != nil {
		return nil, validationError(fields)
	}
	var out model.VerificationResponse
	if err := c.postAnon(ctx, "/api/auth/verify-code", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me fetches the authenticated user profile.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := c.get(ctx, "/api/auth/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	var out model.StatusResponse
	return c.post(ctx, "/api/auth/logout", nil, &out)
}

// ─── Course catalog ────────────────────────────────────────────────────

// AllTopics lists every course module with its topic list.
func (c *Client) AllTopics(ctx context.Context) (*model.TopicsList, error) {
	var out model.TopicsList
	if err := c.get(ctx, "/api/admin/topics/all", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Evaluation ────────────────────────────────────────────────────────

// EvaluateMixed requests a generated mixed MCQ/open question set.
func (c *Client) EvaluateMixed(ctx context.Context, req model.MixedEvaluationRequest) (*model.MixedEvaluationResponse, error) {
	if fields := validator.Struct(req); fields != nil {
		return nil, validationError(fields)
	}
	var out model.MixedEvaluationResponse
	if err := c.post(ctx, "/api/evaluation/evaluate-mixed", req, &out); err != nil {
		return nil, err
	}
	if len(out.Questions) == 0 {
		return nil, &Error{Code: ErrEmptyPayload, Message: "no questions received from the evaluation service"}
	}
	return &out, nil
}

// SubmitAndSave posts an answered question set for grading and score
// persistence.
func (c *Client) SubmitAndSave(ctx context.Context, sub model.EvaluationSubmission) (*model.SubmissionResponse, error) {
	if fields := validator.Struct(sub); fields != nil {
		return nil, validationError(fields)
	}
	var out model.SubmissionResponse
	if err := c.post(ctx, "/api/evaluation/submit-and-save", sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EvaluateCase requests a generated practical case.
func (c *Client) EvaluateCase(ctx context.Context, req model.CaseRequest) (*model.CasePayload, error) {
	if fields := validator.Struct(req); fields != nil {
		return nil, validationError(fields)
	}
	var out model.CasePayload
	if err := c.post(ctx, "/api/evaluation/evaluate/case", req, &out); err != nil {
		return nil, err
	}
	if out.Case.Title == "" && out.Case.Description == "" {
		return nil, &Error{Code: ErrEmptyPayload, Message: "no case received from the evaluation service"}
	}
	return &out, nil
}

// SubmitCaseAndSave posts the retained case payload and the learner's
// response for grading.
func (c *Client) SubmitCaseAndSave(ctx context.Context, sub model.CaseSubmission) (*model.CaseSubmissionResponse, error) {
	if fields := validator.Struct(sub); fields != nil {
		return nil, validationError(fields)
	}
	var out model.CaseSubmissionResponse
	if err := c.post(ctx, "/api/evaluation/submit-case-and-save", sub, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Chat assistant ────────────────────────────────────────────────────

// NewConversationID reserves a conversation id; the conversation itself is
// created on the first message.
func (c *Client) NewConversationID(ctx context.Context) (string, error) {
	var out struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := c.post(ctx, "/api/conversations/new-id", nil, &out); err != nil {
		return "", err
	}
	return out.ConversationID, nil
}

// ProcessQuery sends one question to the chat assistant.
func (c *Client) ProcessQuery(ctx context.Context, q model.ChatQuery) (*model.ChatAnswer, error) {
	if fields := validator.Struct(q); fields != nil {
		return nil, validationError(fields)
	}
	var out model.ChatAnswer
	if err := c.post(ctx, "/api/process-data", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Conversations lists the user's stored chat threads.
func (c *Client) Conversations(ctx context.Context, userID string) (*model.ConversationList, error) {
	var out model.ConversationList
	if err := c.get(ctx, "/api/users/"+userID+"/conversations", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
