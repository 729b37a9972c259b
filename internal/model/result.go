package model

// Verdict is the Pass/Fail outcome of a finalized session.
type Verdict string

const (
	VerdictPass Verdict = "Pass"
	VerdictFail Verdict = "Fail"
)

// Result is the scored outcome of one submission.
type Result struct {
	CorrectAnswers []Question `json:"correctAnswers"`
	WrongAnswers   []Question `json:"wrongAnswers"`
	Verdict        Verdict    `json:"verdict"`
	// Persisted is true once the backend acknowledged the report.
	Persisted bool `json:"-"`
}

// CorrectCount returns the number of correctly answered questions.
func (r *Result) CorrectCount() int {
	return len(r.CorrectAnswers)
}

// Clone returns a copy that shares no slices with r.
func (r *Result) Clone() *Result {
	c := *r
	c.CorrectAnswers = append([]Question(nil), r.CorrectAnswers...)
	c.WrongAnswers = append([]Question(nil), r.WrongAnswers...)
	return &c
}
