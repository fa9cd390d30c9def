package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wenhua-ai/xiaowen/backend/internal/model/chat"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrResponding        = errors.New("previous prompt is still being answered")
	ErrNoPendingPrompt   = errors.New("no prompt to process")
	ErrAlreadyProcessing = errors.New("response already in progress")
)

// record is one session's state. mu serializes every mutation of the session so
// concurrent requests for the same id cannot interleave.
type record struct {
	mu         sync.Mutex
	state      chat.SessionState
	processing bool
}

// Pending is a claimed prompt together with the transcript it answers.
type Pending struct {
	Prompt       string
	Conversation []chat.ChatTurn
}

// Service owns every SessionState. Nothing else mutates a session.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*record
	hub      *Hub
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService bootstraps the in-memory session store. State lives for the process lifetime.
func NewService(opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]*record),
		hub:      NewHub(DefaultSubscriberBuffer),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates an empty session when sessionID is unknown and returns the id.
// Existing sessions are left untouched. An empty id gets a generated one.
func (s *Service) Init(_ context.Context, sessionID string) string {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = &record{
			state: chat.SessionState{Conversation: make([]chat.ChatTurn, 0, 16)},
		}
		log.Debug().Str("component", "chat").Str("session", sessionID).Msg("session created")
	}
	return sessionID
}

// Conversation returns a copy of the session transcript in insertion order.
func (s *Service) Conversation(_ context.Context, sessionID string) ([]chat.ChatTurn, error) {
	rec, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return copyTurns(rec.state.Conversation), nil
}

// Status reports whether the session is waiting for an AI turn.
func (s *Service) Status(_ context.Context, sessionID string) (chat.Status, error) {
	rec, err := s.lookup(sessionID)
	if err != nil {
		return chat.Status{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Status(), nil
}

// AddUserMessage appends a user turn and marks the session as responding.
// The text is stored as-is, including the empty string.
func (s *Service) AddUserMessage(_ context.Context, sessionID, text string) error {
	rec, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.state.IsResponding {
		return ErrResponding
	}

	turn := s.newTurn(chat.SenderUser, text)
	rec.state.Conversation = append(rec.state.Conversation, turn)
	rec.state.IsResponding = true
	rec.state.PromptToProcess = &text

	s.publishTurn(sessionID, turn, rec.state.Status())
	return nil
}

// Claim hands the pending prompt to exactly one processor.
func (s *Service) Claim(_ context.Context, sessionID string) (Pending, error) {
	rec, err := s.lookup(sessionID)
	if err != nil {
		return Pending{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.state.IsResponding || rec.state.PromptToProcess == nil {
		return Pending{}, ErrNoPendingPrompt
	}
	if rec.processing {
		return Pending{}, ErrAlreadyProcessing
	}

	rec.processing = true
	return Pending{
		Prompt:       *rec.state.PromptToProcess,
		Conversation: copyTurns(rec.state.Conversation),
	}, nil
}

// Complete appends the AI turn answering the pending prompt and clears the
// responding flag. Error replies go through here too.
func (s *Service) Complete(_ context.Context, sessionID, message string) error {
	rec, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.state.IsResponding {
		return ErrNoPendingPrompt
	}

	turn := s.newTurn(chat.SenderAI, message)
	rec.state.Conversation = append(rec.state.Conversation, turn)
	rec.state.IsResponding = false
	rec.state.PromptToProcess = nil
	rec.processing = false

	s.publishTurn(sessionID, turn, rec.state.Status())
	return nil
}

// PublishDelta forwards one streamed token of an in-flight reply to subscribers.
func (s *Service) PublishDelta(sessionID, delta string) {
	if delta == "" {
		return
	}
	s.hub.Publish(chat.Event{Type: chat.EventDelta, SessionID: sessionID, Delta: delta})
}

// Subscribe registers for pushed events of an existing session. The returned
// function must be called to release the subscription.
func (s *Service) Subscribe(_ context.Context, sessionID string) (<-chan chat.Event, func(), error) {
	if _, err := s.lookup(sessionID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(sessionID)
	return ch, cancel, nil
}

func (s *Service) lookup(sessionID string) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rec, nil
}

func (s *Service) newTurn(sender chat.Sender, message string) chat.ChatTurn {
	return chat.ChatTurn{
		Sender:    sender,
		Message:   message,
		Timestamp: s.now().Format(chat.TimestampLayout),
	}
}

// publishTurn runs under the record lock so events of one session keep append order.
func (s *Service) publishTurn(sessionID string, turn chat.ChatTurn, status chat.Status) {
	s.hub.Publish(chat.Event{Type: chat.EventTurn, SessionID: sessionID, Turn: &turn})
	s.hub.Publish(chat.Event{Type: chat.EventStatus, SessionID: sessionID, Status: &status})
}

func copyTurns(turns []chat.ChatTurn) []chat.ChatTurn {
	copied := make([]chat.ChatTurn, len(turns))
	copy(copied, turns)
	return copied
}
