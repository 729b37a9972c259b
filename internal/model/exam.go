package model

// ExamDefinition is the immutable exam a candidate sits. Durations are in
// seconds.
type ExamDefinition struct {
	ID           string     `json:"id" yaml:"id" validate:"required"`
	Name         string     `json:"name" yaml:"name" validate:"required,max=255"`
	Duration     int        `json:"duration" yaml:"duration" validate:"min=1"`
	PassingMarks int        `json:"passingMarks" yaml:"passingMarks" validate:"min=0,ltefield=TotalMarks"`
	TotalMarks   int        `json:"totalMarks" yaml:"totalMarks" validate:"min=0"`
	Questions    []Question `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
}

// QuestionCount returns the number of questions in the exam.
func (e *ExamDefinition) QuestionCount() int {
	return len(e.Questions)
}

// ExamRow is an exam as stored in PostgreSQL.
type ExamRow struct {
	ID           string
	Name         string
	Duration     int
	PassingMarks int
	TotalMarks   int
}
