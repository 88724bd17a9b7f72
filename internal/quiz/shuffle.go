package quiz

import (
	"math/rand"

	"trivia-quiz-service/internal/domain"
)

// Shuffler orders a question's answers using an injected random source.
// It is not safe for concurrent use; each session owns one.
type Shuffler struct {
	rng *rand.Rand
}

func NewShuffler(src rand.Source) *Shuffler {
	return &Shuffler{rng: rand.New(src)}
}

// Shuffle returns the incorrect answers plus the correct one in random order.
// The question is left untouched.
func (s *Shuffler) Shuffle(q domain.Question) []string {
	answers := make([]string, 0, len(q.IncorrectAnswers)+1)
	answers = append(answers, q.IncorrectAnswers...)
	answers = append(answers, q.CorrectAnswer)
	s.rng.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})
	return answers
}
