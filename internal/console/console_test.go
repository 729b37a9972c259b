package console

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/scoring"
	"github.com/stemsi/exstem-proctor/internal/session"
)

func TestDecoderFeed(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []Key
	}{
		{"letters", []byte("aB"), []Key{{Kind: KeyRune, Rune: 'a'}, {Kind: KeyRune, Rune: 'B'}}},
		{"enter", []byte("\r"), []Key{{Kind: KeyEnter}}},
		{"interrupt", []byte{0x03}, []Key{{Kind: KeyInterrupt}}},
		{"focus out", []byte("\x1b[O"), []Key{{Kind: KeyFocusOut}}},
		{"focus in then key", []byte("\x1b[Ix"), []Key{{Kind: KeyFocusIn}, {Kind: KeyRune, Rune: 'x'}}},
		{"arrow dropped", []byte("\x1b[Aa"), []Key{{Kind: KeyRune, Rune: 'a'}}},
		{"control byte dropped", []byte{0x07, 'c'}, []Key{{Kind: KeyRune, Rune: 'c'}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Decoder
			got := d.Feed(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Feed(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecoderSplitSequence(t *testing.T) {
	var d Decoder
	if got := d.Feed([]byte("\x1b")); len(got) != 0 {
		t.Fatalf("partial escape decoded early: %v", got)
	}
	if got := d.Feed([]byte("[")); len(got) != 0 {
		t.Fatalf("partial escape decoded early: %v", got)
	}
	got := d.Feed([]byte("O"))
	if len(got) != 1 || got[0].Kind != KeyFocusOut {
		t.Fatalf("expected focus out, got %v", got)
	}
}

type recordedActions struct {
	calls []string
}

func (r *recordedActions) record(name string) error {
	r.calls = append(r.calls, name)
	return nil
}

func (r *recordedActions) Start(context.Context) error     { return r.record("start") }
func (r *recordedActions) Advance(context.Context) error   { return r.record("advance") }
func (r *recordedActions) Submit(context.Context) error    { return r.record("submit") }
func (r *recordedActions) FocusLost(context.Context) error { return r.record("focus") }
func (r *recordedActions) Review(context.Context) error    { return r.record("review") }
func (r *recordedActions) Retake(context.Context) error    { return r.record("retake") }
func (r *recordedActions) RetrySubmit(context.Context) error {
	return r.record("retry")
}
func (r *recordedActions) Select(_ context.Context, label string) error {
	return r.record("select:" + label)
}

func testExam() *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:           "exam-1",
		Name:         "Science",
		Duration:     90,
		PassingMarks: 1,
		TotalMarks:   2,
		Questions: []model.Question{
			{ID: "q1", Name: "Water?", Options: map[string]string{"A": "H2O", "B": "CO2"}, CorrectOption: "A"},
			{ID: "q2", Name: "Red planet?", Options: map[string]string{"A": "Venus", "B": "Mars"}, CorrectOption: "B"},
		},
	}
}

func TestDispatch(t *testing.T) {
	exam := testExam()
	letter := func(r rune) Key { return Key{Kind: KeyRune, Rune: r} }
	enter := Key{Kind: KeyEnter}

	tests := []struct {
		name     string
		snap     session.Snapshot
		key      Key
		wantCall string
		wantQuit bool
	}{
		{"start", session.Snapshot{Exam: exam, View: model.ViewInstructions}, enter, "start", false},
		{"quit from instructions", session.Snapshot{Exam: exam, View: model.ViewInstructions}, letter('q'), "", true},
		{"select lowercase", session.Snapshot{Exam: exam, View: model.ViewQuestions}, letter('b'), "select:B", false},
		{"advance", session.Snapshot{Exam: exam, View: model.ViewQuestions}, enter, "advance", false},
		{"submit on last", session.Snapshot{Exam: exam, View: model.ViewQuestions, QuestionIndex: 1}, enter, "submit", false},
		{"q selects during questions", session.Snapshot{Exam: exam, View: model.ViewQuestions}, letter('q'), "select:q", false},
		{"focus out", session.Snapshot{Exam: exam, View: model.ViewQuestions}, Key{Kind: KeyFocusOut}, "focus", false},
		{"focus in ignored", session.Snapshot{Exam: exam, View: model.ViewQuestions}, Key{Kind: KeyFocusIn}, "", false},
		{"interrupt", session.Snapshot{Exam: exam, View: model.ViewQuestions}, Key{Kind: KeyInterrupt}, "", true},
		{"leaderboard ignores enter", session.Snapshot{Exam: exam, View: model.ViewLeaderboard}, enter, "", false},
		{"review", session.Snapshot{Exam: exam, View: model.ViewResult}, letter('r'), "review", false},
		{"retake", session.Snapshot{Exam: exam, View: model.ViewResult}, letter('T'), "retake", false},
		{"retry", session.Snapshot{Exam: exam, View: model.ViewResult}, letter('p'), "retry", false},
		{"retake from review", session.Snapshot{Exam: exam, View: model.ViewReview}, letter('t'), "retake", false},
		{"quit from review", session.Snapshot{Exam: exam, View: model.ViewReview}, letter('q'), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &recordedActions{}
			quit, err := Dispatch(context.Background(), a, tt.snap, tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if quit != tt.wantQuit {
				t.Fatalf("quit = %v, want %v", quit, tt.wantQuit)
			}
			var got string
			if len(a.calls) > 0 {
				got = strings.Join(a.calls, ",")
			}
			if got != tt.wantCall {
				t.Fatalf("calls = %q, want %q", got, tt.wantCall)
			}
		})
	}
}

func TestPresenterRendersViews(t *testing.T) {
	exam := testExam()

	tests := []struct {
		name string
		snap session.Snapshot
		want []string
	}{
		{"loading", session.Snapshot{}, []string{"Loading exam..."}},
		{"instructions", session.Snapshot{Exam: exam, View: model.ViewInstructions}, []string{"Science", "Time: 01:30", "Press Enter to start"}},
		{
			"question",
			session.Snapshot{Exam: exam, View: model.ViewQuestions, SecondsLeft: 65, TabSwitchCount: 1, Selections: scoring.Selections{0: "A"}},
			[]string{"Question 1 of 2", "Time left: 01:05", "Tab switches: 1", " * A) H2O", "   B) CO2"},
		},
		{
			"leaderboard",
			session.Snapshot{Exam: exam, View: model.ViewLeaderboard, Leaderboard: []model.LeaderboardEntry{{Name: "Ana", CorrectAnswers: 2}}},
			[]string{"Leaderboard", " 1. Ana"},
		},
		{
			"unsaved result",
			session.Snapshot{Exam: exam, View: model.ViewResult, Result: &model.Result{
				CorrectAnswers: exam.Questions[:1], WrongAnswers: exam.Questions[1:], Verdict: model.VerdictPass,
			}},
			[]string{"Result: Pass", "Correct: 1   Wrong: 1", "has not been saved", "p) retry saving"},
		},
		{
			"review",
			session.Snapshot{Exam: exam, View: model.ViewReview, Selections: scoring.Selections{0: "A"}},
			[]string{"your answer: A   correct: A   (correct)", "your answer: -   correct: B   (wrong)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPresenter(&out)
			p.Render(tt.snap)
			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Fatalf("output missing %q:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestPresenterKeepsLatestNotices(t *testing.T) {
	var out bytes.Buffer
	p := NewPresenter(&out)
	p.Render(session.Snapshot{Exam: testExam(), View: model.ViewQuestions})

	for _, msg := range []string{"one", "two", "three", "four"} {
		p.Notify(session.Notice{Level: session.NoticeWarning, Message: msg})
	}

	screens := strings.Split(out.String(), clearScreen)
	last := screens[len(screens)-1]
	if strings.Contains(last, "one") {
		t.Fatalf("oldest notice still shown:\n%s", last)
	}
	if !strings.Contains(last, "[WARNING] four") {
		t.Fatalf("latest notice missing:\n%s", last)
	}
}

func TestClock(t *testing.T) {
	for in, want := range map[int]string{0: "00:00", 59: "00:59", 61: "01:01", 600: "10:00", -3: "00:00"} {
		if got := Clock(in); got != want {
			t.Errorf("Clock(%d) = %q, want %q", in, got, want)
		}
	}
}
