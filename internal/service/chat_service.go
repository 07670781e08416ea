package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxislearn/praxis-cli/internal/api"
	"github.com/praxislearn/praxis-cli/internal/config"
	"github.com/praxislearn/praxis-cli/internal/event"
	"github.com/praxislearn/praxis-cli/internal/model"
)

// ChatService manages the learning-assistant conversation: a server-issued
// conversation id, an in-memory transcript with optimistic sends, and access
// to the stored conversation history.
type ChatService struct {
	cfg    *config.Config
	client *api.Client
	bus    *event.Bus
	log    zerolog.Logger

	mu         sync.Mutex
	sessionID  string
	transcript []model.ChatMessage
}

// NewChatService creates a ChatService.
func NewChatService(cfg *config.Config, client *api.Client, bus *event.Bus, log zerolog.Logger) *ChatService {
	return &ChatService{
		cfg:    cfg,
		client: client,
		bus:    bus,
		log:    log.With().Str("component", "chat").Logger(),
	}
}

// Start subscribes to session-ending events so the local transcript never
// outlives the login it belongs to. Runs until ctx is cancelled.
func (s *ChatService) Start(ctx context.Context) {
	events, cancel := s.bus.Subscribe(event.TypeLogout, event.TypeSessionExpired)
	go func() {
		defer cancel()
		for {
			select {
			case <-events:
				s.Reset()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SessionID returns the active conversation id, empty before NewConversation.
func (s *ChatService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Transcript returns a snapshot of the active conversation.
func (s *ChatService) Transcript() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChatMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Reset drops the active conversation and its transcript.
func (s *ChatService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.transcript = nil
}

// NewConversation reserves a fresh conversation id and clears the transcript.
// When the backend cannot issue one, a locally generated id is used; the
// server materializes the conversation on the first message either way.
func (s *ChatService) NewConversation(ctx context.Context) (string, error) {
	id, err := s.client.NewConversationID(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Falling back to a local conversation id")
		id = uuid.New().String()
	}

	s.mu.Lock()
	s.sessionID = id
	s.transcript = nil
	s.mu.Unlock()
	return id, nil
}

// Resume switches to an existing conversation id with an empty local
// transcript.
func (s *ChatService) Resume(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
	s.transcript = nil
}

// Send posts one question to the assistant. Whitespace-only input is a
// silent no-op. The question is appended optimistically; on failure it is
// rolled back and a local error entry is appended instead, so the transcript
// always reflects what the backend has actually seen.
func (s *ChatService) Send(ctx context.Context, question string) (*model.ChatAnswer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, nil
	}

	s.mu.Lock()
	if s.sessionID == "" {
		s.mu.Unlock()
		if _, err := s.NewConversation(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
	}
	query := model.ChatQuery{SessionID: s.sessionID, Question: question}
	s.mu.Unlock()

	var answer *model.ChatAnswer
	err := optimistic(
		func() int {
			s.mu.Lock()
			defer s.mu.Unlock()
			mark := len(s.transcript)
			s.transcript = append(s.transcript, model.ChatMessage{
				Role:      model.ChatRoleUser,
				Content:   question,
				Timestamp: time.Now(),
			})
			return mark
		},
		func() error {
			var callErr error
			answer, callErr = s.client.ProcessQuery(ctx, query)
			return callErr
		},
		func(mark int) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.transcript = s.transcript[:mark]
		},
	)
	if err != nil {
		s.mu.Lock()
		s.transcript = append(s.transcript, model.ChatMessage{
			Role:      model.ChatRoleSystem,
			Content:   "The assistant could not be reached. Please try again.",
			Timestamp: time.Now(),
			IsError:   true,
		})
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, model.ChatMessage{
		Role:      model.ChatRoleAssistant,
		Content:   answer.Response,
		Timestamp: time.Now(),
	})
	s.mu.Unlock()
	return answer, nil
}

// Conversations lists the user's stored chat threads.
func (s *ChatService) Conversations(ctx context.Context, userID string) (*model.ConversationList, error) {
	return s.client.Conversations(ctx, userID)
}
