// Package scoring grades a candidate's selections against an exam's answer key.
package scoring

import "github.com/stemsi/exstem-proctor/internal/model"

// Selections maps a question index to the selected option label.
type Selections map[int]string

// Clone returns an independent copy of s.
func (s Selections) Clone() Selections {
	c := make(Selections, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Score partitions questions into correct and wrong answers. Unanswered
// questions count as wrong. The verdict is Pass when the number of correct
// answers is not less than passingMarks.
func Score(questions []model.Question, selections Selections, passingMarks int) *model.Result {
	res := &model.Result{
		CorrectAnswers: make([]model.Question, 0, len(questions)),
		WrongAnswers:   make([]model.Question, 0, len(questions)),
	}

	for i, q := range questions {
		if sel, ok := selections[i]; ok && sel == q.CorrectOption {
			res.CorrectAnswers = append(res.CorrectAnswers, q)
		} else {
			res.WrongAnswers = append(res.WrongAnswers, q)
		}
	}

	res.Verdict = VerdictFor(len(res.CorrectAnswers), passingMarks)
	return res
}

// VerdictFor returns Pass iff correct >= passingMarks.
func VerdictFor(correct, passingMarks int) model.Verdict {
	if correct < passingMarks {
		return model.VerdictFail
	}
	return model.VerdictPass
}

// CorrectCount counts selections matching the correct option. Selections for
// indexes outside the question range are ignored.
func CorrectCount(questions []model.Question, selections Selections) int {
	correct := 0
	for idx, sel := range selections {
		if idx < 0 || idx >= len(questions) {
			continue
		}
		if questions[idx].CorrectOption == sel {
			correct++
		}
	}
	return correct
}
