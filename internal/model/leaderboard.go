package model

// LeaderboardEntry is one candidate's running standing in an exam room.
type LeaderboardEntry struct {
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	CorrectAnswers int    `json:"correctAnswers"`
}
