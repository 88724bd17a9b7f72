package domain

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// MinAmount and MaxAmount bound the number of questions per session.
	MinAmount = 1
	MaxAmount = 50
)

// Difficulty is the provider difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes and validates a difficulty string.
func ParseDifficulty(raw string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", &ValidationError{Field: "difficulty", Message: fmt.Sprintf("%q is not one of easy, medium, hard", raw)}
	}
	return d, nil
}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuizParams are the setup choices for one session.
type QuizParams struct {
	CategoryID int        `json:"categoryId"`
	Difficulty Difficulty `json:"difficulty"`
	Amount     int        `json:"amount"`
}

// Validate rejects out-of-range parameters. Amount is never clamped.
func (p QuizParams) Validate() error {
	if p.Amount < MinAmount || p.Amount > MaxAmount {
		return &ValidationError{Field: "amount", Message: fmt.Sprintf("%d is outside [%d,%d]", p.Amount, MinAmount, MaxAmount)}
	}
	if !p.Difficulty.Valid() {
		return &ValidationError{Field: "difficulty", Message: fmt.Sprintf("%q is not one of easy, medium, hard", p.Difficulty)}
	}
	if _, ok := knownCategories[p.CategoryID]; !ok {
		return &ValidationError{Field: "category", Message: fmt.Sprintf("%d is not a known category", p.CategoryID)}
	}
	return nil
}

// Key returns the cache key for the batch these parameters produce.
func (p QuizParams) Key() BatchKey {
	return BatchKey{CategoryID: p.CategoryID, Difficulty: p.Difficulty, Amount: p.Amount}
}

var knownCategories = map[int]string{
	9:  "General Knowledge",
	10: "Entertainment: Books",
	11: "Entertainment: Film",
	12: "Entertainment: Music",
	13: "Entertainment: Musicals & Theatres",
	14: "Entertainment: Television",
	15: "Entertainment: Video Games",
	16: "Entertainment: Board Games",
	17: "Science & Nature",
	18: "Science: Computers",
	19: "Science: Mathematics",
	20: "Mythology",
	21: "Sports",
	22: "Geography",
	23: "History",
	24: "Politics",
	25: "Art",
	26: "Celebrities",
	27: "Animals",
	28: "Vehicles",
	29: "Entertainment: Comics",
	30: "Science: Gadgets",
	31: "Entertainment: Japanese Anime & Manga",
	32: "Entertainment: Cartoon & Animations",
}

// CategoryName returns the display name for a category id.
func CategoryName(id int) string {
	if name, ok := knownCategories[id]; ok {
		return name
	}
	return "Unknown Category"
}

// KnownCategories lists the built-in categories ordered by id.
func KnownCategories() []Category {
	out := make([]Category, 0, len(knownCategories))
	for id, name := range knownCategories {
		out = append(out, Category{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
