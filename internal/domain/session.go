package domain

import "time"

// Session is an immutable record of one finished quiz.
type Session struct {
	ID          string                 `json:"session_id"`
	PlayerID    string                 `json:"player_id"`
	Score       int64                  `json:"score"`
	SubmittedAt time.Time              `json:"submitted_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ScoreSubmission is the body of POST /score
type ScoreSubmission struct {
	PlayerID    string                 `json:"userId"`
	Score       int64                  `json:"score"`
	SessionData map[string]interface{} `json:"sessionData,omitempty"`
}

// SessionRecorded is published once per committed session.
type SessionRecorded struct {
	Session    Session         `json:"session"`
	Player     PlayerAggregate `json:"player"`
	RecordedAt time.Time       `json:"recorded_at"`
}
