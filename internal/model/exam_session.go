package model

// View enumerates the screens of an exam session.
type View string

const (
	ViewInstructions View = "instructions"
	ViewQuestions    View = "questions"
	ViewLeaderboard  View = "leaderboard"
	ViewResult       View = "result"
	ViewReview       View = "review"
)

// Identity is the candidate taking the exam.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}
