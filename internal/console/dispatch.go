package console

import (
	"context"
	"strings"
	"unicode"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// Actions is the part of session.Controller that keys drive.
type Actions interface {
	Start(ctx context.Context) error
	Select(ctx context.Context, label string) error
	Advance(ctx context.Context) error
	Submit(ctx context.Context) error
	FocusLost(ctx context.Context) error
	Review(ctx context.Context) error
	Retake(ctx context.Context) error
	RetrySubmit(ctx context.Context) error
}

// Dispatch maps k to an action for the screen in s. It returns quit=true
// when the candidate asked to leave.
func Dispatch(ctx context.Context, a Actions, s session.Snapshot, k Key) (quit bool, err error) {
	switch k.Kind {
	case KeyInterrupt:
		return true, nil
	case KeyFocusOut:
		return false, a.FocusLost(ctx)
	case KeyFocusIn:
		return false, nil
	}

	switch s.View {
	case model.ViewInstructions:
		if k.Kind == KeyEnter {
			return false, a.Start(ctx)
		}
		return isRune(k, 'q'), nil

	case model.ViewQuestions:
		if k.Kind == KeyEnter {
			if s.LastQuestion() {
				return false, a.Submit(ctx)
			}
			return false, a.Advance(ctx)
		}
		if k.Kind == KeyRune && unicode.IsLetter(k.Rune) {
			return false, a.Select(ctx, optionLabel(s, k.Rune))
		}

	case model.ViewResult:
		switch {
		case isRune(k, 'r'):
			return false, a.Review(ctx)
		case isRune(k, 't'):
			return false, a.Retake(ctx)
		case isRune(k, 'p'):
			return false, a.RetrySubmit(ctx)
		case isRune(k, 'q'):
			return true, nil
		}

	case model.ViewReview:
		switch {
		case isRune(k, 't'):
			return false, a.Retake(ctx)
		case isRune(k, 'q'):
			return true, nil
		}
	}
	return false, nil
}

// optionLabel matches r against the active question's labels ignoring case,
// so "b" selects "B".
func optionLabel(s session.Snapshot, r rune) string {
	typed := string(r)
	if q := s.Question(); q != nil {
		for _, label := range q.Labels() {
			if strings.EqualFold(label, typed) {
				return label
			}
		}
	}
	return typed
}

func isRune(k Key, r rune) bool {
	return k.Kind == KeyRune && unicode.ToLower(k.Rune) == r
}
