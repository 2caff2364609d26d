package domain

import "time"

// DateLayout formats calendar dates used as daily question keys.
const DateLayout = "2006-01-02"

// DailyQuestion is the single shared question of a UTC calendar day.
type DailyQuestion struct {
	Date       string    `json:"date"`
	QuestionID string    `json:"questionId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DailyAnswer marks that a player responded to the question of a date.
type DailyAnswer struct {
	PlayerID   string    `json:"userId"`
	Date       string    `json:"date"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
