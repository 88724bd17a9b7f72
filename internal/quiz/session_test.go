package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"trivia-quiz-service/internal/domain"
)

var testParams = domain.QuizParams{CategoryID: 22, Difficulty: domain.DifficultyMedium, Amount: 3}

func sampleBatch(prefix string, n int) domain.QuestionBatch {
	batch := make(domain.QuestionBatch, n)
	for i := range batch {
		batch[i] = domain.Question{
			Text:             fmt.Sprintf("%s question %d", prefix, i),
			CorrectAnswer:    fmt.Sprintf("%s right %d", prefix, i),
			IncorrectAnswers: []string{"wrong a", "wrong b", "wrong c"},
			Category:         "Geography",
			Difficulty:       "medium",
		}
	}
	return batch
}

type stubLoader struct {
	mu     sync.Mutex
	batch  domain.QuestionBatch
	err    error
	fresh  []bool
	params []domain.QuizParams
}

func (l *stubLoader) LoadBatch(_ context.Context, params domain.QuizParams, fresh bool) (domain.QuestionBatch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fresh = append(l.fresh, fresh)
	l.params = append(l.params, params)
	if l.err != nil {
		return nil, l.err
	}
	return l.batch, nil
}

func (l *stubLoader) calls() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.fresh...)
}

type gatedCall struct {
	ctx     context.Context
	fresh   bool
	release chan domain.QuestionBatch
}

// gatedLoader blocks every load until the test releases it.
type gatedLoader struct {
	started chan *gatedCall
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{started: make(chan *gatedCall, 4)}
}

func (l *gatedLoader) LoadBatch(ctx context.Context, _ domain.QuizParams, fresh bool) (domain.QuestionBatch, error) {
	call := &gatedCall{ctx: ctx, fresh: fresh, release: make(chan domain.QuestionBatch, 1)}
	l.started <- call
	return <-call.release, nil
}

type recorderStub struct {
	mu      sync.Mutex
	users   []string
	results []domain.SessionResult
	err     error
}

func (r *recorderStub) Record(_ context.Context, userID string, result domain.SessionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	r.results = append(r.results, result)
	return r.err
}

func (r *recorderStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func newTestSession(t *testing.T, loader BatchLoader, recorder ResultRecorder, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithRandSource(rand.NewSource(1)),
		WithQuestionTime(60 * time.Second),
	}
	s := NewSession("s-1", "user-1", testParams, loader, recorder, append(base, opts...)...)
	t.Cleanup(s.Close)
	return s
}

func waitForState(t *testing.T, s *Session, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if snap.State == want {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, last %s", want, s.Snapshot().State)
	return Snapshot{}
}

func currentCorrect(s *Session) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batch[s.index].CorrectAnswer
}

func assertScoreInvariant(t *testing.T, snap Snapshot) {
	t.Helper()
	correct := 0
	for _, a := range snap.Answered {
		if a.IsCorrect {
			correct++
		}
	}
	if correct != snap.Score {
		t.Fatalf("score %d does not match %d correct answers", snap.Score, correct)
	}
}

func TestAllCorrectAnswersReachTerminal(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("a", 3)}
	recorder := &recorderStub{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestSession(t, loader, recorder,
		WithClock(func() time.Time { return fixed }),
		WithResultIDs(func() string { return "result-1" }),
	)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, StateActive)

	for i := 0; i < 3; i++ {
		if err := s.SelectAnswer(currentCorrect(s)); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if err := s.Advance(); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		assertScoreInvariant(t, s.Snapshot())
	}

	snap := s.Snapshot()
	if snap.State != StateTerminal || snap.Score != 3 || len(snap.Answered) != 3 {
		t.Fatalf("expected terminal with score 3, got %+v", snap)
	}
	for _, a := range snap.Answered {
		if !a.IsCorrect || a.SelectedAnswer == nil {
			t.Fatalf("expected all correct, got %+v", a)
		}
	}
	if snap.QuestionIndex != 3 || snap.Question != nil || snap.TimerActive {
		t.Fatalf("expected index == batch length and no active question, got %+v", snap)
	}

	if recorder.count() != 1 {
		t.Fatalf("expected one recorded result, got %d", recorder.count())
	}
	got := recorder.results[0]
	want := domain.SessionResult{
		ID:             "result-1",
		CategoryID:     22,
		Category:       "Geography",
		Difficulty:     domain.DifficultyMedium,
		Score:          3,
		TotalQuestions: 3,
		Timestamp:      fixed,
	}
	if got != want {
		t.Fatalf("expected result %+v, got %+v", want, got)
	}
	if recorder.users[0] != "user-1" {
		t.Fatalf("expected result recorded for user-1, got %s", recorder.users[0])
	}
}

func TestTimerExpiryWithoutSelectionScoresZero(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("b", 3)}
	recorder := &recorderStub{}
	s := newTestSession(t, loader, recorder)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, StateActive)

	for q := 0; q < 3; q++ {
		for sec := 0; sec < 59; sec++ {
			s.Tick()
		}
		snap := s.Snapshot()
		if snap.RemainingSeconds != 1 || len(snap.Answered) != q {
			t.Fatalf("question %d: expected 1s left and %d answers, got %+v", q, q, snap)
		}
		s.Tick()
	}

	snap := s.Snapshot()
	if snap.State != StateTerminal || snap.Score != 0 || len(snap.Answered) != 3 {
		t.Fatalf("expected terminal with score 0, got %+v", snap)
	}
	for _, a := range snap.Answered {
		if a.SelectedAnswer != nil || a.IsCorrect {
			t.Fatalf("expected unanswered incorrect record, got %+v", a)
		}
	}
	if recorder.count() != 1 || recorder.results[0].Score != 0 {
		t.Fatalf("expected a single zero-score result, got %+v", recorder.results)
	}

	for i := 0; i < 120; i++ {
		s.Tick()
	}
	if recorder.count() != 1 || len(s.Snapshot().Answered) != 3 {
		t.Fatalf("ticks after termination must have no effect")
	}
}

func TestTimerExpiryHonorsPendingSelection(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("c", 2)}
	s := newTestSession(t, loader, nil, WithQuestionTime(5*time.Second))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, StateActive)

	correct := currentCorrect(s)
	if err := s.SelectAnswer(correct); err != nil {
		t.Fatalf("select: %v", err)
	}
	for i := 0; i < 5; i++ {
		s.Tick()
	}

	snap := s.Snapshot()
	if len(snap.Answered) != 1 || !snap.Answered[0].IsCorrect || *snap.Answered[0].SelectedAnswer != correct {
		t.Fatalf("expected expiry to score the pending selection, got %+v", snap.Answered)
	}
	if snap.QuestionIndex != 1 || snap.RemainingSeconds != 5 || !snap.TimerActive || snap.Selected != nil {
		t.Fatalf("expected next question with a fresh timer, got %+v", snap)
	}
}

func TestAdvanceAfterTerminalIsNoop(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("d", 1)}
	recorder := &recorderStub{}
	s := newTestSession(t, loader, recorder)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, StateActive)

	if err := s.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Advance(); !errors.Is(err, domain.ErrNotActive) {
			t.Fatalf("expected ErrNotActive after terminal, got %v", err)
		}
		if err := s.SelectAnswer("wrong a"); !errors.Is(err, domain.ErrNotActive) {
			t.Fatalf("expected ErrNotActive for select after terminal, got %v", err)
		}
	}

	snap := s.Snapshot()
	if len(snap.Answered) != 1 || recorder.count() != 1 {
		t.Fatalf("expected no duplicate answers or results, got %d answers %d results", len(snap.Answered), recorder.count())
	}
}

func TestInteractionsRejectedWhileLoading(t *testing.T) {
	loader := newGatedLoader()
	s := newTestSession(t, loader, nil)

	if err := s.Advance(); !errors.Is(err, domain.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if err := s.Restart(); !errors.Is(err, domain.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted for restart before start, got %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	call := <-loader.started
	if call.fresh {
		t.Fatalf("first load should accept cached batches")
	}

	if err := s.SelectAnswer("anything"); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected ErrNotActive while loading, got %v", err)
	}
	if err := s.Advance(); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected ErrNotActive while loading, got %v", err)
	}
	s.Tick()
	if err := s.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	call.release <- sampleBatch("e", 2)
	snap := waitForState(t, s, StateActive)
	if len(snap.Answered) != 0 || snap.QuestionIndex != 0 || snap.RemainingSeconds != 60 {
		t.Fatalf("loading-phase interactions leaked into state: %+v", snap)
	}
}

func TestSelectAnswerRejectsUnknownOption(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("f", 2)}
	s := newTestSession(t, loader, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, StateActive)

	if err := s.SelectAnswer("not an option"); !errors.Is(err, domain.ErrUnknownAnswer) {
		t.Fatalf("expected ErrUnknownAnswer, got %v", err)
	}
	if s.Snapshot().Selected != nil {
		t.Fatalf("rejected selection must not be recorded")
	}
}

func TestOptionsStableWithinQuestion(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("g", 2)}
	s := newTestSession(t, loader, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := waitForState(t, s, StateActive).Question.Options

	_ = s.SelectAnswer("wrong b")
	s.Tick()
	again := s.Snapshot().Question.Options
	for i := range first {
		if first[i] != again[i] {
			t.Fatalf("options reshuffled within a question: %v vs %v", first, again)
		}
	}
	if len(first) != 4 {
		t.Fatalf("expected 4 options, got %v", first)
	}
}

func TestLoadFailureMovesToFailed(t *testing.T) {
	loader := &stubLoader{err: &domain.FetchError{Reason: domain.ErrInvalidParameters, ResponseCode: 2, Attempts: 1}}
	s := newTestSession(t, loader, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitForState(t, s, StateFailed)
	if snap.Error == "" || !errors.Is(s.Err(), domain.ErrInvalidParameters) {
		t.Fatalf("expected invalid parameters failure, got %q / %v", snap.Error, s.Err())
	}
	if err := s.Advance(); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected ErrNotActive in failed state, got %v", err)
	}

	loader.mu.Lock()
	loader.err = nil
	loader.batch = sampleBatch("h", 3)
	loader.mu.Unlock()

	if err := s.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitForState(t, s, StateActive)
	if s.Err() != nil {
		t.Fatalf("expected error cleared after successful retry")
	}
	calls := loader.calls()
	if len(calls) != 2 || calls[0] || !calls[1] {
		t.Fatalf("expected a cached first load and a fresh retry, got %v", calls)
	}
}

func TestStartRejectsInvalidParams(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("i", 1)}
	s := NewSession("s-2", "user-1", domain.QuizParams{CategoryID: 9, Difficulty: domain.DifficultyEasy, Amount: 0}, loader, nil,
		WithLogger(zaptest.NewLogger(t).Sugar()))
	defer s.Close()

	err := s.Start(context.Background())
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", s.State())
	}
	if len(loader.calls()) != 0 {
		t.Fatalf("loader must not be called for invalid params")
	}
}

func TestRestartDiscardsStaleLoad(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	loader := newGatedLoader()
	s := newTestSession(t, loader, nil, WithLogger(zap.New(core).Sugar()))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stale := <-loader.started

	if err := s.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	current := <-loader.started
	if !current.fresh {
		t.Fatalf("restart must request a fresh batch")
	}
	select {
	case <-stale.ctx.Done():
	default:
		t.Fatalf("restart must cancel the previous load")
	}

	current.release <- sampleBatch("new", 3)
	waitForState(t, s, StateActive)

	stale.release <- sampleBatch("old", 1)
	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("discarding stale batch load").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stale load was never discarded")
		}
		time.Sleep(2 * time.Millisecond)
	}

	snap := s.Snapshot()
	if snap.State != StateActive || snap.TotalQuestions != 3 || snap.Question.Text != "new question 0" {
		t.Fatalf("stale batch leaked into the new generation: %+v", snap)
	}
	if snap.Generation != 2 {
		t.Fatalf("expected generation 2, got %d", snap.Generation)
	}
}

func TestRestartFromMidSessionResetsState(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("j", 3)}
	recorder := &recorderStub{}
	s := newTestSession(t, loader, recorder)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, StateActive)
	_ = s.SelectAnswer(currentCorrect(s))
	_ = s.Advance()
	for i := 0; i < 30; i++ {
		s.Tick()
	}

	if err := s.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	snap := waitForState(t, s, StateActive)
	if snap.Score != 0 || len(snap.Answered) != 0 || snap.QuestionIndex != 0 || snap.RemainingSeconds != 60 {
		t.Fatalf("expected fresh session state after restart, got %+v", snap)
	}
	if recorder.count() != 0 {
		t.Fatalf("restart must not emit a result")
	}
}

func TestRecorderFailureIsNotFatal(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("k", 1)}
	recorder := &recorderStub{err: errors.New("remote store down")}
	s := newTestSession(t, loader, recorder)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, StateActive)
	if err := s.Advance(); err != nil {
		t.Fatalf("advance must succeed despite recorder failure: %v", err)
	}

	snap := s.Snapshot()
	if snap.State != StateTerminal || snap.RecordError == "" {
		t.Fatalf("expected terminal state with record error, got %+v", snap)
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	loader := newGatedLoader()
	s := newTestSession(t, loader, nil)

	updates, cancel := s.Subscribe()
	defer cancel()
	if initial := <-updates; initial.State != StateIdle {
		t.Fatalf("expected idle snapshot first, got %s", initial.State)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap := <-updates; snap.State != StateLoading {
		t.Fatalf("expected loading snapshot, got %s", snap.State)
	}
	call := <-loader.started
	call.release <- sampleBatch("l", 1)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.State == StateActive {
				if snap.Question == nil || len(snap.Question.Options) != 4 {
					t.Fatalf("expected renderable question, got %+v", snap.Question)
				}
				return
			}
		case <-timeout:
			t.Fatalf("never received active snapshot")
		}
	}
}

func TestCloseStopsSession(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("m", 2)}
	s := newTestSession(t, loader, nil)

	updates, cancel := s.Subscribe()
	defer cancel()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, StateActive)
	s.Close()

	if err := s.Advance(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.Restart(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed for restart, got %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("expected done channel closed")
	}
	for range updates {
	}
}

func TestRunTicksUntilCanceled(t *testing.T) {
	loader := &stubLoader{batch: sampleBatch("n", 1)}
	s := newTestSession(t, loader, nil, WithQuestionTime(2*time.Second))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, s, StateActive)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()

	waitForState(t, s, StateTerminal)
	cancel()
	<-done

	snap := s.Snapshot()
	if len(snap.Answered) != 1 || snap.Answered[0].SelectedAnswer != nil {
		t.Fatalf("expected timed-out answer, got %+v", snap.Answered)
	}
}
