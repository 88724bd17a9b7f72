package quiz

import "trivia-quiz-service/internal/domain"

// QuestionView is the renderable part of the current question. The correct answer
// is never included.
type QuestionView struct {
	Number     int      `json:"number"`
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	Options    []string `json:"options"`
}

// Snapshot is a point-in-time copy of a session for rendering.
type Snapshot struct {
	SessionID        string                    `json:"sessionId"`
	Generation       uint64                    `json:"generation"`
	State            State                     `json:"state"`
	Params           domain.QuizParams         `json:"params"`
	QuestionIndex    int                       `json:"questionIndex"`
	TotalQuestions   int                       `json:"totalQuestions"`
	Question         *QuestionView             `json:"question,omitempty"`
	Selected         *string                   `json:"selected"`
	Score            int                       `json:"score"`
	RemainingSeconds int                       `json:"remainingSeconds"`
	TimerActive      bool                      `json:"timerActive"`
	Answered         []domain.AnsweredQuestion `json:"answered"`
	Error            string                    `json:"error,omitempty"`
	RecordError      string                    `json:"recordError,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every state change,
// starting with the current one. Slow readers only see the latest snapshot.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:        s.id,
		Generation:       s.generation,
		State:            s.state,
		Params:           s.params,
		QuestionIndex:    s.index,
		TotalQuestions:   len(s.batch),
		Score:            s.score,
		RemainingSeconds: s.timer.Remaining(),
		TimerActive:      s.timer.Active(),
		Answered:         append([]domain.AnsweredQuestion(nil), s.answered...),
	}
	if s.selected != nil {
		selected := *s.selected
		snap.Selected = &selected
	}
	if s.state == StateActive && s.index < len(s.batch) {
		q := s.batch[s.index]
		snap.Question = &QuestionView{
			Number:     s.index + 1,
			Text:       q.Text,
			Category:   q.Category,
			Difficulty: q.Difficulty,
			Options:    append([]string(nil), s.options...),
		}
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if s.recordErr != nil {
		snap.RecordError = s.recordErr.Error()
	}
	return snap
}
