package model

import "sort"

// Question is a single multiple-choice question. Options maps a unique label
// (e.g. "A") to the option text.
type Question struct {
	ID            string            `json:"id" yaml:"id" validate:"required"`
	Name          string            `json:"name" yaml:"name" validate:"required"`
	Options       map[string]string `json:"options" yaml:"options" validate:"required,min=2"`
	CorrectOption string            `json:"correctOption" yaml:"correctOption" validate:"required"`
}

// Labels returns the option labels in display order.
func (q Question) Labels() []string {
	labels := make([]string, 0, len(q.Options))
	for l := range q.Options {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// HasOption reports whether label is one of the question's options.
func (q Question) HasOption(label string) bool {
	_, ok := q.Options[label]
	return ok
}
