package model

import "time"

// SubmitReportRequest is the payload a candidate client posts after scoring.
type SubmitReportRequest struct {
	Exam   string       `json:"exam" binding:"required,uuid"`
	User   string       `json:"user" binding:"required,max=64"`
	Result ReportResult `json:"result"`
}

// ReportResult is the scored result as carried on the wire.
type ReportResult struct {
	CorrectAnswers []Question `json:"correctAnswers"`
	WrongAnswers   []Question `json:"wrongAnswers"`
	Verdict        Verdict    `json:"verdict" binding:"required,oneof=Pass Fail"`
}

// Report is a persisted exam report.
type Report struct {
	ExamID       string    `json:"exam_id"`
	UserID       string    `json:"user_id"`
	CorrectCount int       `json:"correct_count"`
	WrongCount   int       `json:"wrong_count"`
	Verdict      Verdict   `json:"verdict"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
