// Package session runs one candidate's proctored exam attempt. A Controller
// owns the session state and serializes user actions, timer ticks, focus-loss
// signals and realtime messages through a single event loop.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/realtime"
	"github.com/stemsi/exstem-proctor/internal/scoring"
)

var (
	// ErrNotReady is returned when the exam definition has not been loaded.
	ErrNotReady = errors.New("exam definition not loaded")
	// ErrIllegalAction is returned for an action the current view does not allow.
	ErrIllegalAction = errors.New("action not allowed in current view")
	// ErrUnknownOption is returned when selecting a label the question does not have.
	ErrUnknownOption = errors.New("unknown option")
	// ErrStopped is returned once the controller's loop has exited.
	ErrStopped = errors.New("session stopped")
)

// DefaultInterstitial is how long the leaderboard shows between questions.
const DefaultInterstitial = 3 * time.Second

// Remote is the backend the session reads its exam from and reports to.
type Remote interface {
	FetchExam(ctx context.Context, examID string) (*model.ExamDefinition, error)
	SubmitReport(ctx context.Context, examID, userID string, result *model.Result) error
}

// Channel is the session's realtime connection. *realtime.Channel implements it.
type Channel interface {
	Join() error
	Leave() error
	SendProgress(correct, tabSwitches int) error
	SendTabSwitch(count int) error
	SendAutoSubmitted() error
	Inbound() <-chan realtime.Inbound
	Close() error
}

// Dialer opens the realtime channel when the session starts running.
type Dialer func(ctx context.Context) (Channel, error)

// NoticeLevel grades a transient message for the candidate.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a non-blocking message shown to the candidate.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Presenter displays session state. Calls come from the controller's loop
// goroutine and must not block for long.
type Presenter interface {
	Render(Snapshot)
	Notify(Notice)
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Exam           *model.ExamDefinition
	View           model.View
	QuestionIndex  int
	Selections     scoring.Selections
	SecondsLeft    int
	TabSwitchCount int
	TimeUp         bool
	Result         *model.Result
	Leaderboard    []model.LeaderboardEntry
	Submitting     bool
}

// Question returns the active question, or nil before the exam is loaded.
func (s Snapshot) Question() *model.Question {
	if s.Exam == nil || s.QuestionIndex >= len(s.Exam.Questions) {
		return nil
	}
	return &s.Exam.Questions[s.QuestionIndex]
}

// LastQuestion reports whether the active question is the final one.
func (s Snapshot) LastQuestion() bool {
	return s.Exam != nil && s.QuestionIndex == len(s.Exam.Questions)-1
}

type nopPresenter struct{}

func (nopPresenter) Render(Snapshot) {}
func (nopPresenter) Notify(Notice)   {}
