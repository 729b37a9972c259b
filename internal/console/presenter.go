package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const maxNotices = 3

// Presenter draws session snapshots on a raw-mode terminal. Notices stay on
// screen until newer ones push them out.
type Presenter struct {
	mu      sync.Mutex
	out     io.Writer
	last    session.Snapshot
	drawn   bool
	notices []session.Notice
}

// NewPresenter creates a Presenter writing to out.
func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out}
}

// Render redraws the screen for s.
func (p *Presenter) Render(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = s
	p.drawn = true
	p.draw()
}

// Notify shows n below the current screen.
func (p *Presenter) Notify(n session.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, n)
	if len(p.notices) > maxNotices {
		p.notices = p.notices[len(p.notices)-maxNotices:]
	}
	if p.drawn {
		p.draw()
	}
}

// Close restores the cursor.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.out, showCursor+"\r\n")
}

func (p *Presenter) draw() {
	var b strings.Builder
	b.WriteString(hideCursor + clearScreen)

	s := p.last
	if s.Exam == nil {
		line(&b, "Loading exam...")
	} else {
		switch s.View {
		case model.ViewInstructions:
			drawInstructions(&b, s)
		case model.ViewQuestions:
			drawQuestion(&b, s)
		case model.ViewLeaderboard:
			drawLeaderboard(&b, s)
		case model.ViewResult:
			drawResult(&b, s)
		case model.ViewReview:
			drawReview(&b, s)
		}
	}

	if len(p.notices) > 0 {
		line(&b, "")
		for _, n := range p.notices {
			line(&b, fmt.Sprintf("[%s] %s", strings.ToUpper(n.Level.String()), n.Message))
		}
	}

	io.WriteString(p.out, b.String())
}

func drawInstructions(b *strings.Builder, s session.Snapshot) {
	line(b, s.Exam.Name)
	line(b, strings.Repeat("=", len(s.Exam.Name)))
	line(b, fmt.Sprintf("Questions: %d   Time: %s   Passing marks: %d",
		s.Exam.QuestionCount(), Clock(s.Exam.Duration), s.Exam.PassingMarks))
	line(b, "")
	line(b, "Do not leave this window during the exam. Losing focus is recorded")
	line(b, "and repeated focus loss submits your exam automatically.")
	line(b, "")
	line(b, "Press Enter to start. Press q to quit.")
}

func drawQuestion(b *strings.Builder, s session.Snapshot) {
	q := s.Question()
	if q == nil {
		return
	}
	header := fmt.Sprintf("Question %d of %d   Time left: %s", s.QuestionIndex+1, s.Exam.QuestionCount(), Clock(s.SecondsLeft))
	if s.TabSwitchCount > 0 {
		header += fmt.Sprintf("   Tab switches: %d", s.TabSwitchCount)
	}
	line(b, header)
	line(b, "")
	line(b, q.Name)
	line(b, "")

	selected := s.Selections[s.QuestionIndex]
	for _, label := range q.Labels() {
		mark := " "
		if label == selected {
			mark = "*"
		}
		line(b, fmt.Sprintf(" %s %s) %s", mark, label, q.Options[label]))
	}
	line(b, "")

	switch {
	case s.Submitting || s.TimeUp:
		line(b, "Submitting exam...")
	case s.LastQuestion():
		line(b, "Type an option letter to answer. Press Enter to submit.")
	default:
		line(b, "Type an option letter to answer. Press Enter for the next question.")
	}
}

func drawLeaderboard(b *strings.Builder, s session.Snapshot) {
	line(b, "Leaderboard")
	line(b, "-----------")
	if len(s.Leaderboard) == 0 {
		line(b, "No standings yet.")
	}
	for i, e := range s.Leaderboard {
		line(b, fmt.Sprintf("%2d. %-24s %d", i+1, e.Name, e.CorrectAnswers))
	}
	line(b, "")
	line(b, "Next question shortly...")
}

func drawResult(b *strings.Builder, s session.Snapshot) {
	if s.Result == nil {
		line(b, "Submitting exam...")
		return
	}
	r := s.Result
	line(b, fmt.Sprintf("Result: %s", r.Verdict))
	line(b, fmt.Sprintf("Correct: %d   Wrong: %d", len(r.CorrectAnswers), len(r.WrongAnswers)))
	line(b, "")
	actions := "r) review answers   t) retake   q) quit"
	if !r.Persisted && !s.Submitting {
		line(b, "Your result has not been saved.")
		actions = "p) retry saving   " + actions
	}
	line(b, actions)
}

func drawReview(b *strings.Builder, s session.Snapshot) {
	line(b, "Review")
	line(b, "------")
	for i, q := range s.Exam.Questions {
		picked := s.Selections[i]
		if picked == "" {
			picked = "-"
		}
		status := "wrong"
		if picked == q.CorrectOption {
			status = "correct"
		}
		line(b, fmt.Sprintf("%d. %s", i+1, q.Name))
		line(b, fmt.Sprintf("   your answer: %s   correct: %s   (%s)", picked, q.CorrectOption, status))
	}
	line(b, "")
	line(b, "t) retake   q) quit")
}

// Clock formats seconds as mm:ss.
func Clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Raw mode does not translate \n, so every line ends in \r\n.
func line(b *strings.Builder, s string) {
	b.WriteString(s)
	b.WriteString("\r\n")
}
