package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/realtime"
	"github.com/stemsi/exstem-proctor/internal/scoring"
	"github.com/stemsi/exstem-proctor/internal/store"
	"github.com/stemsi/exstem-proctor/internal/timer"
)

// Config identifies the attempt and tunes its timing.
type Config struct {
	ExamID   string
	Identity model.Identity
	// Interstitial is how long the leaderboard shows after Advance.
	Interstitial time.Duration
	Proctor      proctor.Config
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Remote    Remote
	Dial      Dialer
	Counter   store.CounterStore
	Clock     clockwork.Clock
	Presenter Presenter
	Log       zerolog.Logger
}

// Controller drives one exam attempt. All state below the loop marker is
// owned by the Run goroutine.
type Controller struct {
	cfg       Config
	remote    Remote
	dial      Dialer
	clock     clockwork.Clock
	presenter Presenter
	log       zerolog.Logger

	events   chan func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	running  atomic.Bool

	// claim is taken by the first finalize trigger of an attempt.
	claim atomic.Bool

	// ─── loop-owned ─────────────────────────────────────────────
	runCtx    context.Context
	countdown *timer.Countdown
	monitor   *proctor.Monitor

	ch            Channel
	inbound       <-chan realtime.Inbound
	channelWarned bool

	exam        *model.ExamDefinition
	view        model.View
	index       int
	selections  scoring.Selections
	secondsLeft int
	tabSwitches int
	timeUp      bool
	result      *model.Result
	leaderboard []model.LeaderboardEntry
	submitting  bool

	attempt  int
	pause    clockwork.Timer
	pauseSeq int
}

// New creates a Controller. Run must be called to start it.
func New(cfg Config, deps Deps) *Controller {
	if cfg.Interstitial <= 0 {
		cfg.Interstitial = DefaultInterstitial
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Presenter == nil {
		deps.Presenter = nopPresenter{}
	}
	if deps.Counter == nil {
		deps.Counter = store.NewMemoryCounterStore()
	}

	log := deps.Log.With().
		Str("component", "session").
		Str("exam_id", cfg.ExamID).
		Str("user_id", cfg.Identity.UserID).
		Logger()

	key := config.CacheKey.TabSwitchCountKey(cfg.ExamID, cfg.Identity.UserID)

	return &Controller{
		cfg:        cfg,
		remote:     deps.Remote,
		dial:       deps.Dial,
		clock:      deps.Clock,
		presenter:  deps.Presenter,
		log:        log,
		events:     make(chan func(), 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		countdown:  timer.New(deps.Clock, log),
		monitor:    proctor.New(deps.Counter, key, cfg.Proctor, log),
		view:       model.ViewInstructions,
		selections: make(scoring.Selections),
	}
}

// Run loads the exam, opens the realtime channel and processes events until
// ctx is cancelled or Stop is called. The channel is always released on return.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.runCtx = ctx

	c.load(ctx)
	c.acquire(ctx)
	defer c.release()

	c.render()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Session context cancelled")
			return nil
		case <-c.stop:
			c.log.Info().Msg("Session stopped")
			return nil
		case fn := <-c.events:
			fn()
		case in, ok := <-c.inbound:
			if !ok {
				c.inbound = nil
				continue
			}
			c.handleInbound(in)
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed after Run has returned and the channel was released.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// ─── Candidate actions ──────────────────────────────────────────────

// Start leaves the instructions and starts the countdown.
func (c *Controller) Start(ctx context.Context) error {
	return c.call(ctx, c.start)
}

// Select records label as the answer to the active question.
func (c *Controller) Select(ctx context.Context, label string) error {
	return c.call(ctx, func() error { return c.selectOption(label) })
}

// Advance moves to the next question through the leaderboard interstitial.
func (c *Controller) Advance(ctx context.Context) error {
	return c.call(ctx, c.advance)
}

// Submit finalizes the attempt from the last question.
func (c *Controller) Submit(ctx context.Context) error {
	return c.call(ctx, c.submit)
}

// FocusLost reports that the candidate left the exam window.
func (c *Controller) FocusLost(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.focusLost()
		return nil
	})
}

// Review opens the read-only answer review.
func (c *Controller) Review(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.view != model.ViewResult || c.result == nil {
			return fmt.Errorf("review from %s: %w", c.view, ErrIllegalAction)
		}
		c.view = model.ViewReview
		c.render()
		return nil
	})
}

// Retake discards the result and returns to the instructions.
func (c *Controller) Retake(ctx context.Context) error {
	return c.call(ctx, c.retake)
}

// RetrySubmit re-sends a result whose submission failed. The result is not
// recomputed.
func (c *Controller) RetrySubmit(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.view != model.ViewResult || c.result == nil || c.result.Persisted || c.submitting {
			return fmt.Errorf("retry submit: %w", ErrIllegalAction)
		}
		c.log.Info().Msg("Retrying report submission")
		c.sendReport(c.result.Clone())
		c.render()
		return nil
	})
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.call(ctx, func() error {
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

// ─── Loop plumbing ──────────────────────────────────────────────────

// call runs fn on the loop goroutine and waits for its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.events <- func() { reply <- fn() }:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn from a background goroutine. It is dropped once Run exits.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

func (c *Controller) load(ctx context.Context) {
	exam, err := c.remote.FetchExam(ctx, c.cfg.ExamID)
	if err != nil {
		c.log.Error().Err(err).Msg("Fetch exam failed")
		c.notify(NoticeError, "Failed to load exam. Reload to try again.")
	} else {
		c.exam = exam
		c.secondsLeft = exam.Duration
		c.log.Info().Int("questions", exam.QuestionCount()).Int("duration", exam.Duration).Msg("Exam loaded")
	}

	n, err := c.monitor.Restore(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Restore tab switch count failed")
		return
	}
	c.tabSwitches = n
}

func (c *Controller) acquire(ctx context.Context) {
	if c.dial == nil {
		return
	}
	ch, err := c.dial(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Realtime channel unavailable")
		c.notify(NoticeWarning, "Live leaderboard unavailable. The exam continues offline.")
		c.channelWarned = true
		return
	}
	c.ch = ch
	c.inbound = ch.Inbound()
	if err := ch.Join(); err != nil {
		c.channelFailed("join", err)
	}
}

// release runs on every exit from Run, whatever the view.
func (c *Controller) release() {
	c.countdown.Cancel()
	c.stopInterstitial()
	c.monitor.Disarm()
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.log.Debug().Err(err).Msg("Close realtime channel")
		}
		c.ch = nil
	}
}

// ─── Transitions ────────────────────────────────────────────────────

func (c *Controller) start() error {
	if c.exam == nil {
		return ErrNotReady
	}
	if c.view != model.ViewInstructions {
		return fmt.Errorf("start from %s: %w", c.view, ErrIllegalAction)
	}

	c.view = model.ViewQuestions
	c.index = 0
	c.secondsLeft = c.exam.Duration
	c.monitor.Arm()

	attempt := c.attempt
	c.countdown.Start(c.exam.Duration,
		func(remaining int) { c.post(func() { c.onTick(attempt, remaining) }) },
		func() { c.post(func() { c.onExpire(attempt) }) },
	)

	c.log.Info().Int("attempt", attempt).Msg("Exam started")
	c.render()
	return nil
}

func (c *Controller) selectOption(label string) error {
	if c.view != model.ViewQuestions || c.submitting {
		return fmt.Errorf("select in %s: %w", c.view, ErrIllegalAction)
	}
	q := c.exam.Questions[c.index]
	if !q.HasOption(label) {
		return fmt.Errorf("option %q: %w", label, ErrUnknownOption)
	}

	c.selections[c.index] = label
	correct := scoring.CorrectCount(c.exam.Questions, c.selections)
	if c.ch != nil {
		if err := c.ch.SendProgress(correct, c.tabSwitches); err != nil {
			c.channelFailed("progress-update", err)
		}
	}

	c.render()
	return nil
}

func (c *Controller) advance() error {
	if c.view != model.ViewQuestions || c.submitting {
		return fmt.Errorf("advance from %s: %w", c.view, ErrIllegalAction)
	}
	if c.index >= len(c.exam.Questions)-1 {
		return fmt.Errorf("advance past last question: %w", ErrIllegalAction)
	}

	c.view = model.ViewLeaderboard
	c.monitor.Disarm()

	c.pauseSeq++
	seq := c.pauseSeq
	c.pause = c.clock.AfterFunc(c.cfg.Interstitial, func() {
		c.post(func() { c.onInterstitialDone(seq) })
	})

	c.render()
	return nil
}

func (c *Controller) onInterstitialDone(seq int) {
	if seq != c.pauseSeq || c.view != model.ViewLeaderboard {
		return
	}
	c.pause = nil
	c.index++
	c.view = model.ViewQuestions
	c.monitor.Arm()
	c.render()
}

func (c *Controller) stopInterstitial() {
	if c.pause != nil {
		c.pause.Stop()
		c.pause = nil
	}
	c.pauseSeq++
}

func (c *Controller) submit() error {
	if c.view != model.ViewQuestions {
		return fmt.Errorf("submit from %s: %w", c.view, ErrIllegalAction)
	}
	if c.claim.Load() {
		c.log.Debug().Msg("Submit ignored, already finalizing")
		return nil
	}
	if c.index != len(c.exam.Questions)-1 {
		return fmt.Errorf("submit before last question: %w", ErrIllegalAction)
	}
	c.finalize("submit")
	return nil
}

func (c *Controller) focusLost() {
	esc, ok := c.monitor.FocusLost(c.runCtx)
	if !ok {
		return
	}
	c.tabSwitches = esc.Count

	if esc.Fatal() && c.ch != nil {
		if err := c.ch.SendAutoSubmitted(); err != nil {
			c.channelFailed("exam-auto-submitted", err)
		}
	}
	if c.ch != nil {
		if err := c.ch.SendTabSwitch(esc.Count); err != nil {
			c.channelFailed("tab-switch", err)
		}
	}

	if esc.Fatal() {
		c.notify(NoticeError, esc.Message)
		c.finalize("tab_switch_limit")
		return
	}
	c.notify(NoticeWarning, esc.Message)
	c.render()
}

func (c *Controller) onTick(attempt, remaining int) {
	if attempt != c.attempt || c.claim.Load() {
		return
	}
	if remaining < 0 {
		remaining = 0
	}
	c.secondsLeft = remaining
	c.render()
}

func (c *Controller) onExpire(attempt int) {
	if attempt != c.attempt || c.claim.Load() {
		return
	}
	if !c.timeUp {
		c.timeUp = true
		c.notify(NoticeWarning, "Time is up. Submitting exam...")
	}
	c.finalize("time_up")
}

func (c *Controller) handleInbound(in realtime.Inbound) {
	switch in.Kind {
	case realtime.InboundLeaderboard:
		c.leaderboard = SortLeaderboard(in.Leaderboard)
		c.render()
	case realtime.InboundForceSubmit:
		c.log.Warn().Msg("Force submit triggered by tab-switch count exceeding limit")
		c.finalize("force_submit")
	case realtime.InboundDisconnected:
		c.inbound = nil
		c.channelFailed("receive", in.Err)
	}
}

// finalize is the single path into the result view. Only the first trigger
// of an attempt gets past the claim.
func (c *Controller) finalize(trigger string) {
	if c.view != model.ViewQuestions && c.view != model.ViewLeaderboard {
		c.log.Debug().Str("trigger", trigger).Str("view", string(c.view)).Msg("Finalize ignored outside running exam")
		return
	}
	if !c.claim.CompareAndSwap(false, true) {
		c.log.Debug().Str("trigger", trigger).Msg("Finalize already claimed")
		return
	}

	c.countdown.Cancel()
	c.stopInterstitial()
	c.monitor.Disarm()

	frozen := c.selections.Clone()
	c.result = scoring.Score(c.exam.Questions, frozen, c.exam.PassingMarks)

	if err := c.monitor.Clear(c.runCtx); err != nil {
		c.log.Error().Err(err).Msg("Clear tab switch count failed")
	}

	c.log.Info().
		Str("trigger", trigger).
		Int("correct", c.result.CorrectCount()).
		Str("verdict", string(c.result.Verdict)).
		Msg("Exam finalized")

	c.sendReport(c.result.Clone())
	c.render()
}

// sendReport submits off the loop; completion comes back as an event.
func (c *Controller) sendReport(res *model.Result) {
	c.submitting = true
	attempt := c.attempt
	ctx := c.runCtx

	go func() {
		err := c.remote.SubmitReport(ctx, c.cfg.ExamID, c.cfg.Identity.UserID, res)
		c.post(func() { c.onSubmitted(attempt, err) })
	}()
}

func (c *Controller) onSubmitted(attempt int, err error) {
	if attempt != c.attempt {
		return
	}
	c.submitting = false
	if c.view == model.ViewQuestions || c.view == model.ViewLeaderboard {
		c.view = model.ViewResult
	}

	if err != nil {
		c.result.Persisted = false
		c.log.Error().Err(err).Msg("Submit report failed")
		c.notify(NoticeError, "Failed to submit exam. Your result was not saved.")
	} else {
		c.result.Persisted = true
		c.log.Info().Msg("Report submitted")
		c.notify(NoticeInfo, "Exam submitted.")
	}
	c.render()
}

func (c *Controller) retake() error {
	if (c.view != model.ViewResult && c.view != model.ViewReview) || c.submitting {
		return fmt.Errorf("retake from %s: %w", c.view, ErrIllegalAction)
	}

	c.countdown.Cancel()
	c.stopInterstitial()
	if err := c.monitor.Clear(c.runCtx); err != nil {
		c.log.Error().Err(err).Msg("Clear tab switch count failed")
	}

	c.attempt++
	c.claim.Store(false)
	c.view = model.ViewInstructions
	c.index = 0
	c.selections = make(scoring.Selections)
	c.secondsLeft = c.exam.Duration
	c.tabSwitches = 0
	c.timeUp = false
	c.result = nil

	// Re-joining tells the room to drop the previous attempt's standing
	// and tab-switch count.
	if c.ch != nil {
		if err := c.ch.Join(); err != nil {
			c.channelFailed("join", err)
		}
	}

	c.log.Info().Int("attempt", c.attempt).Msg("Retake")
	c.render()
	return nil
}

// channelFailed reports a realtime failure once per session; the exam goes on.
func (c *Controller) channelFailed(op string, err error) {
	c.log.Warn().Err(err).Str("op", op).Msg("Realtime channel failure")
	if c.channelWarned {
		return
	}
	c.channelWarned = true
	c.notify(NoticeWarning, "Live leaderboard unavailable. The exam continues offline.")
}

func (c *Controller) notify(level NoticeLevel, msg string) {
	c.presenter.Notify(Notice{Level: level, Message: msg})
}

func (c *Controller) render() {
	c.presenter.Render(c.snapshot())
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		Exam:           c.exam,
		View:           c.view,
		QuestionIndex:  c.index,
		Selections:     c.selections.Clone(),
		SecondsLeft:    c.secondsLeft,
		TabSwitchCount: c.tabSwitches,
		TimeUp:         c.timeUp,
		Leaderboard:    append([]model.LeaderboardEntry(nil), c.leaderboard...),
		Submitting:     c.submitting,
	}
	if c.result != nil {
		snap.Result = c.result.Clone()
	}
	return snap
}
