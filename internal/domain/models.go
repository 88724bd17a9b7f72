package domain

import "time"

// Question is a single multiple-choice trivia question as delivered by the provider.
// Values are treated as immutable once produced.
type Question struct {
	Text             string   `json:"text"`
	CorrectAnswer    string   `json:"correctAnswer"`
	IncorrectAnswers []string `json:"incorrectAnswers"`
	Category         string   `json:"category"`
	Difficulty       string   `json:"difficulty"`
}

// QuestionBatch is the ordered set of questions fetched for one session.
type QuestionBatch []Question

// AnsweredQuestion records the outcome of one question. SelectedAnswer is nil when
// the question timed out without a selection.
type AnsweredQuestion struct {
	QuestionText   string  `json:"questionText"`
	SelectedAnswer *string `json:"selectedAnswer"`
	CorrectAnswer  string  `json:"correctAnswer"`
	IsCorrect      bool    `json:"isCorrect"`
}

// SessionResult is emitted once per finished session.
type SessionResult struct {
	ID             string     `json:"id"`
	CategoryID     int        `json:"categoryId"`
	Category       string     `json:"category"`
	Difficulty     Difficulty `json:"difficulty"`
	Score          int        `json:"score"`
	TotalQuestions int        `json:"totalQuestions"`
	Timestamp      time.Time  `json:"timestamp"`
}

// Category is a provider category identifier with its display name.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// BatchKey identifies a cached question batch.
type BatchKey struct {
	CategoryID int
	Difficulty Difficulty
	Amount     int
}
