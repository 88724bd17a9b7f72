// Package quiz holds the per-session quiz state machine: question sequencing,
// countdown-driven auto-advance, scoring and result emission.
package quiz

import (
	"context"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trivia-quiz-service/internal/domain"
)

// State is the lifecycle position of a Session.
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateActive   State = "active"
	StateTerminal State = "terminal"
	StateFailed   State = "failed"
)

// BatchLoader resolves the question batch for a session. fresh asks the loader to
// bypass any cached batch.
type BatchLoader interface {
	LoadBatch(ctx context.Context, params domain.QuizParams, fresh bool) (domain.QuestionBatch, error)
}

// ResultRecorder receives the result of every finished session.
type ResultRecorder interface {
	Record(ctx context.Context, userID string, result domain.SessionResult) error
}

type Option func(*Session)

func WithQuestionTime(d time.Duration) Option {
	return func(s *Session) { s.timer = NewTimer(d) }
}

func WithRandSource(src rand.Source) Option {
	return func(s *Session) { s.shuffler = NewShuffler(src) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithResultIDs replaces the generator used for SessionResult IDs.
func WithResultIDs(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

func WithRecordTimeout(d time.Duration) Option {
	return func(s *Session) { s.recordTimeout = d }
}

// Session drives one quiz from loading through its final question. Every mutation
// happens under mu; batch loads and result recording run outside it and are tagged
// with the generation they belong to so a Restart discards their late effects.
type Session struct {
	id            string
	userID        string
	params        domain.QuizParams
	loader        BatchLoader
	recorder      ResultRecorder
	logger        *zap.SugaredLogger
	now           func() time.Time
	newID         func() string
	shuffler      *Shuffler
	timer         *Timer
	recordTimeout time.Duration

	mu          sync.RWMutex
	baseCtx     context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	closed      bool
	generation  uint64
	state       State
	batch       domain.QuestionBatch
	index       int
	options     []string
	selected    *string
	score       int
	answered    []domain.AnsweredQuestion
	err         error
	recordErr   error
	subscribers map[chan Snapshot]struct{}
}

func NewSession(id, userID string, params domain.QuizParams, loader BatchLoader, recorder ResultRecorder, opts ...Option) *Session {
	s := &Session{
		id:            id,
		userID:        userID,
		params:        params,
		loader:        loader,
		recorder:      recorder,
		logger:        zap.NewNop().Sugar(),
		now:           time.Now,
		newID:         uuid.NewString,
		shuffler:      NewShuffler(rand.NewSource(time.Now().UnixNano())),
		timer:         NewTimer(DefaultQuestionTime),
		recordTimeout: 10 * time.Second,
		baseCtx:       context.Background(),
		done:          make(chan struct{}),
		state:         StateIdle,
		subscribers:   make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string { return s.userID }

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start validates the parameters and begins loading the first batch. Invalid
// parameters move the session straight to the failed state.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	s.baseCtx = ctx
	if err := s.params.Validate(); err != nil {
		s.state = StateFailed
		s.err = err
		s.broadcastLocked()
		s.mu.Unlock()
		return err
	}
	loadCtx, gen := s.beginLoadLocked()
	s.mu.Unlock()

	go s.load(loadCtx, gen, false)
	return nil
}

// Restart abandons the current run and loads a fresh batch.
func (s *Session) Restart() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.state == StateIdle {
		s.mu.Unlock()
		return domain.ErrNotStarted
	}
	s.logger.Infow("restarting quiz session", "session", s.id, "from", s.state)
	loadCtx, gen := s.beginLoadLocked()
	s.mu.Unlock()

	go s.load(loadCtx, gen, true)
	return nil
}

// SelectAnswer records the pending selection for the current question.
func (s *Session) SelectAnswer(answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActiveLocked(); err != nil {
		return err
	}
	if !slices.Contains(s.options, answer) {
		return domain.ErrUnknownAnswer
	}
	selected := answer
	s.selected = &selected
	s.broadcastLocked()
	return nil
}

// Advance scores the current question with whatever selection is pending and moves
// to the next question or the terminal state.
func (s *Session) Advance() error {
	s.mu.Lock()
	if err := s.requireActiveLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	pending := s.advanceLocked()
	s.mu.Unlock()

	s.record(pending)
	return nil
}

// Tick consumes one second of the current question's countdown. When the countdown
// expires the session advances exactly as Advance would.
func (s *Session) Tick() {
	s.mu.Lock()
	if s.closed || s.state != StateActive {
		s.mu.Unlock()
		return
	}
	if !s.timer.Tick() {
		s.broadcastLocked()
		s.mu.Unlock()
		return
	}
	s.logger.Debugw("question time expired", "session", s.id, "question", s.index)
	pending := s.advanceLocked()
	s.mu.Unlock()

	s.record(pending)
}

// Run ticks the countdown every interval until ctx is done or the session closes.
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Close stops the session. Outstanding loads are canceled and their results dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	if s.cancel != nil {
		s.cancel()
	}
	s.timer.Stop()
	close(s.done)
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Err returns the failure that moved the session to the failed state, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) requireActiveLocked() error {
	switch {
	case s.closed:
		return domain.ErrSessionClosed
	case s.state == StateIdle:
		return domain.ErrNotStarted
	case s.state != StateActive:
		return domain.ErrNotActive
	}
	return nil
}

func (s *Session) beginLoadLocked() (context.Context, uint64) {
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	s.state = StateLoading
	s.batch = nil
	s.index = 0
	s.options = nil
	s.selected = nil
	s.score = 0
	s.answered = nil
	s.err = nil
	s.recordErr = nil
	s.timer.Stop()

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancel = cancel
	s.broadcastLocked()
	return ctx, s.generation
}

func (s *Session) load(ctx context.Context, gen uint64, fresh bool) {
	batch, err := s.loader.LoadBatch(ctx, s.params, fresh)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.state != StateLoading {
		s.logger.Debugw("discarding stale batch load", "session", s.id, "generation", gen, "current", s.generation)
		return
	}
	if err == nil && len(batch) == 0 {
		err = &domain.FetchError{Reason: domain.ErrNoQuestionsAvailable, ResponseCode: -1}
	}
	if err != nil {
		s.logger.Warnw("quiz session failed to load questions", "session", s.id, "err", err)
		s.state = StateFailed
		s.err = err
		s.broadcastLocked()
		return
	}

	s.batch = batch
	s.state = StateActive
	s.enterQuestionLocked(0)
	s.logger.Infow("quiz session active", "session", s.id, "questions", len(batch))
	s.broadcastLocked()
}

func (s *Session) enterQuestionLocked(i int) {
	s.index = i
	s.options = s.shuffler.Shuffle(s.batch[i])
	s.selected = nil
	s.timer.Reset()
}

type pendingResult struct {
	ctx        context.Context
	generation uint64
	result     domain.SessionResult
}

func (s *Session) advanceLocked() *pendingResult {
	q := s.batch[s.index]
	correct := s.selected != nil && *s.selected == q.CorrectAnswer
	s.answered = append(s.answered, domain.AnsweredQuestion{
		QuestionText:   q.Text,
		SelectedAnswer: s.selected,
		CorrectAnswer:  q.CorrectAnswer,
		IsCorrect:      correct,
	})
	if correct {
		s.score++
	}
	s.timer.Stop()

	if s.index < len(s.batch)-1 {
		s.enterQuestionLocked(s.index + 1)
		s.broadcastLocked()
		return nil
	}

	s.index = len(s.batch)
	s.options = nil
	s.selected = nil
	s.state = StateTerminal
	result := domain.SessionResult{
		ID:             s.newID(),
		CategoryID:     s.params.CategoryID,
		Category:       domain.CategoryName(s.params.CategoryID),
		Difficulty:     s.params.Difficulty,
		Score:          s.score,
		TotalQuestions: len(s.batch),
		Timestamp:      s.now(),
	}
	s.logger.Infow("quiz session finished", "session", s.id, "score", s.score, "total", len(s.batch))
	s.broadcastLocked()
	return &pendingResult{ctx: s.baseCtx, generation: s.generation, result: result}
}

// record hands a finished result to the recorder. Failures are surfaced on the
// snapshot but never change the session state.
func (s *Session) record(p *pendingResult) {
	if p == nil || s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), s.recordTimeout)
	defer cancel()

	err := s.recorder.Record(ctx, s.userID, p.result)
	if err == nil {
		return
	}
	s.logger.Warnw("failed to record quiz result", "session", s.id, "result", p.result.ID, "err", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.generation == s.generation && !s.closed {
		s.recordErr = err
		s.broadcastLocked()
	}
}
