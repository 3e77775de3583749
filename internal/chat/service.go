// Package chat runs a single conversational turn: retrieve story context,
// ask the model, record history, and kick off the map trigger.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/hope-map/internal/corpus"
	"github.com/ashureev/hope-map/internal/domain"
	"github.com/ashureev/hope-map/internal/llm"
	"github.com/ashureev/hope-map/internal/rag"
	"github.com/ashureev/hope-map/internal/session"
)

var (
	// ErrValidation marks requests that are missing required fields.
	ErrValidation = errors.New("invalid chat request")
	// ErrUpstreamModel marks failures of the language model call. The
	// session history is left untouched.
	ErrUpstreamModel = errors.New("language model call failed")
)

// LocationTrigger is notified of every utterance so it can push map updates.
// It must not block.
type LocationTrigger interface {
	Submit(ctx context.Context, utterance string)
}

// Result is the outcome of a successful turn.
type Result struct {
	Response string         `json:"response"`
	History  domain.History `json:"history"`
}

// Options wires the service's collaborators.
type Options struct {
	Corpus     *corpus.Corpus
	Store      session.Store
	Generator  llm.Generator
	Trigger    LocationTrigger
	Policy     rag.HistoryPolicy
	LLMTimeout time.Duration
	Transcript TranscriptLogger
	Logger     *slog.Logger
}

// Service orchestrates chat turns.
type Service struct {
	corpus     *corpus.Corpus
	store      session.Store
	gen        llm.Generator
	trigger    LocationTrigger
	policy     rag.HistoryPolicy
	timeout    time.Duration
	locks      *session.KeyedMutex
	transcript TranscriptLogger
	logger     *slog.Logger
}

// NewService creates a chat service. Corpus, Trigger and Transcript are
// optional.
func NewService(opts Options) *Service {
	if opts.Corpus == nil {
		opts.Corpus = corpus.Empty()
	}
	if opts.Transcript == nil {
		opts.Transcript = noopTranscript{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		corpus:     opts.Corpus,
		store:      opts.Store,
		gen:        opts.Generator,
		trigger:    opts.Trigger,
		policy:     opts.Policy,
		timeout:    opts.LLMTimeout,
		locks:      session.NewKeyedMutex(),
		transcript: opts.Transcript,
		logger:     opts.Logger,
	}
}

// HandleTurn answers utterance within the session sessionID. An empty
// utterance is a valid turn. On success the user turn and model reply are
// appended together and the location trigger is notified; on failure the
// history is unchanged and no map update is sent.
func (s *Service) HandleTurn(ctx context.Context, sessionID, utterance string) (*Result, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrValidation)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	prior, err := s.priorHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	match := rag.Match(s.corpus, utterance)
	prompt := rag.Assemble(match, s.policy.Apply(prior), utterance)

	reply, err := s.generate(ctx, prompt)
	if err != nil {
		s.logger.Error("Language model call failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamModel, err)
	}

	userTurn := domain.ChatTurn{Role: domain.RoleUser, Text: utterance}
	modelTurn := domain.ChatTurn{Role: domain.RoleModel, Text: reply}
	sess, err := s.store.Append(ctx, sessionID, userTurn, modelTurn)
	if err != nil {
		return nil, fmt.Errorf("save session %s: %w", sessionID, err)
	}

	// Map updates follow successful turns only and never affect the result.
	if s.trigger != nil {
		s.trigger.Submit(ctx, utterance)
	}

	s.record(sessionID, match, userTurn, modelTurn)
	s.logger.Info("Chat turn completed",
		"session_id", sessionID,
		"turns", len(sess.History),
		"story_matched", match.HasStory(),
	)

	return &Result{Response: reply, History: sess.History}, nil
}

// History returns the stored turns of a session, or an empty history for an
// unknown one.
func (s *Service) History(ctx context.Context, sessionID string) (domain.History, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrValidation)
	}
	return s.priorHistory(ctx, sessionID)
}

// Reset forgets a session.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrValidation)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	s.logger.Info("Chat session reset", "session_id", sessionID)
	return nil
}

func (s *Service) priorHistory(ctx context.Context, sessionID string) (domain.History, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return domain.History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return sess.History, nil
}

func (s *Service) generate(ctx context.Context, prompt []domain.ChatTurn) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	reply, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", llm.ErrEmptyResponse
	}
	return reply, nil
}

func (s *Service) record(sessionID string, match rag.Context, turns ...domain.ChatTurn) {
	for _, t := range turns {
		ev := TranscriptEvent{SessionID: sessionID, Role: string(t.Role), Text: t.Text}
		if t.Role == domain.RoleModel && match.Story != nil {
			ev.Story = match.Story.ID
			ev.Sentiment = string(match.Sentiment)
		}
		s.transcript.Log(ev)
	}
}
