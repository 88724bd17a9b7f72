package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/quiz"
)

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Add(session *quiz.Session) error
	Get(sessionID string) (*quiz.Session, bool)
	Delete(sessionID string)
}

// CategorySource lists the categories a quiz can be started with.
type CategorySource interface {
	Categories(ctx context.Context) ([]domain.Category, error)
}

type ServiceOption func(*QuizService)

func WithQuestionTime(d time.Duration) ServiceOption {
	return func(s *QuizService) { s.questionTime = d }
}

// WithTickInterval sets how often session countdowns advance by one second.
func WithTickInterval(d time.Duration) ServiceOption {
	return func(s *QuizService) { s.tickInterval = d }
}

// WithSessionOptions appends options applied to every new session.
func WithSessionOptions(opts ...quiz.Option) ServiceOption {
	return func(s *QuizService) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// QuizService contains the quiz use cases.
type QuizService struct {
	sessions     SessionRepository
	loader       quiz.BatchLoader
	history      *HistoryRecorder
	categories   CategorySource
	logger       *zap.SugaredLogger
	questionTime time.Duration
	tickInterval time.Duration
	sessionOpts  []quiz.Option
}

func NewQuizService(sessions SessionRepository, loader quiz.BatchLoader, history *HistoryRecorder, categories CategorySource, logger *zap.SugaredLogger, opts ...ServiceOption) *QuizService {
	s := &QuizService{
		sessions:     sessions,
		loader:       loader,
		history:      history,
		categories:   categories,
		logger:       logger,
		questionTime: quiz.DefaultQuestionTime,
		tickInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession creates a session for userID, begins loading its batch and starts
// its countdown loop. The loop and any in-flight load stop when ctx is done.
func (s *QuizService) StartSession(ctx context.Context, userID string, params domain.QuizParams) (*quiz.Session, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "userId", Message: "must not be empty"}
	}

	var recorder quiz.ResultRecorder
	if s.history != nil {
		recorder = s.history
	}
	opts := append([]quiz.Option{
		quiz.WithQuestionTime(s.questionTime),
		quiz.WithLogger(s.logger),
	}, s.sessionOpts...)

	session := quiz.NewSession(uuid.NewString(), userID, params, s.loader, recorder, opts...)
	if err := session.Start(ctx); err != nil {
		session.Close()
		return nil, err
	}
	if err := s.sessions.Add(session); err != nil {
		session.Close()
		return nil, err
	}

	go session.Run(ctx, s.tickInterval)
	s.logger.Infow("quiz session started", "session", session.ID(), "user", userID,
		"category", params.CategoryID, "difficulty", params.Difficulty, "amount", params.Amount)
	return session, nil
}

// Session returns a live session by ID.
func (s *QuizService) Session(sessionID string) (*quiz.Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Subscribe returns a channel of session snapshots.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(sessionID string) (<-chan quiz.Snapshot, func(), error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

func (s *QuizService) SelectAnswer(sessionID, answer string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	return session.SelectAnswer(answer)
}

func (s *QuizService) Advance(sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	return session.Advance()
}

func (s *QuizService) Restart(sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	return session.Restart()
}

// EndSession closes the session and forgets it.
func (s *QuizService) EndSession(sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.Close()
	s.sessions.Delete(sessionID)
	s.logger.Debugw("quiz session ended", "session", sessionID)
}

// History returns the user's finished sessions, newest first.
func (s *QuizService) History(ctx context.Context, userID string) ([]domain.SessionResult, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "userId", Message: "must not be empty"}
	}
	if s.history == nil {
		return []domain.SessionResult{}, nil
	}
	return s.history.History(ctx, userID)
}

// Categories lists selectable categories, using the built-in list when the
// provider cannot be reached.
func (s *QuizService) Categories(ctx context.Context) []domain.Category {
	if s.categories == nil {
		return domain.KnownCategories()
	}
	categories, err := s.categories.Categories(ctx)
	if err != nil || len(categories) == 0 {
		s.logger.Warnw("category listing failed, using built-in categories", "err", err)
		return domain.KnownCategories()
	}
	return categories
}
