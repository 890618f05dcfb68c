package repository

import "time"

// Difficulty is an ordinal from easiest to hardest.
const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// Problem is a seeded practice problem. Rows are not edited after insertion.
type Problem struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Difficulty int       `json:"difficulty"`
	Topic      string    `json:"topic"`
	CreatedAt  time.Time `json:"created_at"`
}
