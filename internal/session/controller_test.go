package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/realtime"
	"github.com/stemsi/exstem-proctor/internal/store"
)

const (
	testExamID = "exam-1"
	testUserID = "user-1"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeRemote struct {
	exam     *model.ExamDefinition
	fetchErr error

	mu        sync.Mutex
	submitErr error
	submits   []*model.Result
	gate      chan struct{}
}

func (r *fakeRemote) FetchExam(_ context.Context, examID string) (*model.ExamDefinition, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.exam, nil
}

func (r *fakeRemote) SubmitReport(ctx context.Context, examID, userID string, result *model.Result) error {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.submits = append(r.submits, result)
	return r.submitErr
}

func (r *fakeRemote) setSubmitErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitErr = err
}

func (r *fakeRemote) submitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submits)
}

type fakeChannel struct {
	inbound chan realtime.Inbound

	mu       sync.Mutex
	sent     []string
	progress []int
	tabs     []int
	sendErr  error
	closed   bool
}

func newFakeChannel() *fakeChannel {
	// Unbuffered so a test push returns only once the loop has taken it.
	return &fakeChannel{inbound: make(chan realtime.Inbound)}
}

func (f *fakeChannel) record(kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, kind)
	return f.sendErr
}

func (f *fakeChannel) Join() error  { return f.record("join") }
func (f *fakeChannel) Leave() error { return f.record("leave") }

func (f *fakeChannel) SendProgress(correct, _ int) error {
	f.mu.Lock()
	f.progress = append(f.progress, correct)
	f.mu.Unlock()
	return f.record("progress")
}

func (f *fakeChannel) SendTabSwitch(count int) error {
	f.mu.Lock()
	f.tabs = append(f.tabs, count)
	f.mu.Unlock()
	return f.record("tab")
}

func (f *fakeChannel) SendAutoSubmitted() error { return f.record("auto") }

func (f *fakeChannel) Inbound() <-chan realtime.Inbound { return f.inbound }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.record("close")
}

func (f *fakeChannel) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type recordingPresenter struct {
	mu      sync.Mutex
	notices []Notice
}

func (p *recordingPresenter) Render(Snapshot) {}

func (p *recordingPresenter) Notify(n Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, n)
}

func (p *recordingPresenter) messages(level NoticeLevel) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, n := range p.notices {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

// ─── Harness ────────────────────────────────────────────────────────

type harness struct {
	c         *Controller
	remote    *fakeRemote
	ch        *fakeChannel
	clock     *clockwork.FakeClock
	presenter *recordingPresenter
	counter   *store.MemoryCounterStore
}

func twoQuestionExam(duration int) *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:           testExamID,
		Name:         "Physics Quiz",
		Duration:     duration,
		PassingMarks: 1,
		TotalMarks:   2,
		Questions: []model.Question{
			{ID: "q1", Name: "Unit of force?", Options: map[string]string{"A": "Newton", "B": "Joule"}, CorrectOption: "A"},
			{ID: "q2", Name: "Unit of energy?", Options: map[string]string{"A": "Newton", "B": "Joule"}, CorrectOption: "B"},
		},
	}
}

type option func(*Config, *Deps, *harness)

func newHarness(t *testing.T, exam *model.ExamDefinition, opts ...option) *harness {
	t.Helper()

	h := &harness{
		remote:    &fakeRemote{exam: exam},
		ch:        newFakeChannel(),
		clock:     clockwork.NewFakeClock(),
		presenter: &recordingPresenter{},
		counter:   store.NewMemoryCounterStore(),
	}
	cfg := Config{
		ExamID:   testExamID,
		Identity: model.Identity{UserID: testUserID, Name: "Alice"},
	}
	deps := Deps{
		Remote:    h.remote,
		Dial:      func(context.Context) (Channel, error) { return h.ch, nil },
		Counter:   h.counter,
		Clock:     h.clock,
		Presenter: h.presenter,
		Log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg, &deps, h)
	}

	h.c = New(cfg, deps)
	go h.c.Run(context.Background())

	t.Cleanup(func() {
		h.c.Stop()
		select {
		case <-h.c.Done():
		case <-time.After(2 * time.Second):
			t.Error("controller did not stop")
		}
	})
	return h
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (h *harness) waitFor(t *testing.T, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := h.c.Snapshot(testCtx(t))
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; view=%s index=%d", what, snap.View, snap.QuestionIndex)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	if err := h.clock.BlockUntilContext(testCtx(t), 1); err != nil {
		t.Fatalf("countdown not waiting: %v", err)
	}
	h.clock.Advance(time.Second)
}

func (h *harness) push(t *testing.T, in realtime.Inbound) {
	t.Helper()
	select {
	case h.ch.inbound <- in:
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message not consumed")
	}
}

func (h *harness) tabCount(t *testing.T) int {
	t.Helper()
	n, err := h.counter.Get(context.Background(), config.CacheKey.TabSwitchCountKey(testExamID, testUserID))
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func inView(v model.View) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.View == v }
}

func mustDo(t *testing.T, what string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestTwoQuestionScenarioPasses(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))
	mustDo(t, "Select", h.c.Select(ctx, "A"))
	mustDo(t, "Advance", h.c.Advance(ctx))

	snap := h.waitFor(t, "leaderboard", inView(model.ViewLeaderboard))
	if snap.QuestionIndex != 0 {
		t.Fatalf("index during interstitial = %d, want 0", snap.QuestionIndex)
	}

	h.clock.Advance(DefaultInterstitial)
	snap = h.waitFor(t, "second question", inView(model.ViewQuestions))
	if snap.QuestionIndex != 1 {
		t.Fatalf("index = %d, want 1", snap.QuestionIndex)
	}

	mustDo(t, "Select", h.c.Select(ctx, "A"))
	mustDo(t, "Submit", h.c.Submit(ctx))

	snap = h.waitFor(t, "result", inView(model.ViewResult))
	if snap.Result.CorrectCount() != 1 || len(snap.Result.WrongAnswers) != 1 {
		t.Errorf("partition = %d/%d, want 1/1", snap.Result.CorrectCount(), len(snap.Result.WrongAnswers))
	}
	if snap.Result.Verdict != model.VerdictPass {
		t.Errorf("verdict = %s, want Pass", snap.Result.Verdict)
	}
	if !snap.Result.Persisted {
		t.Error("result not marked persisted")
	}
	if got := h.remote.submitCount(); got != 1 {
		t.Errorf("submits = %d, want 1", got)
	}

	h.ch.mu.Lock()
	progress := append([]int(nil), h.ch.progress...)
	h.ch.mu.Unlock()
	if len(progress) != 2 || progress[0] != 1 || progress[1] != 1 {
		t.Errorf("progress counts = %v, want [1 1]", progress)
	}
}

func TestFinalizeRunsOnceAcrossTriggers(t *testing.T) {
	exam := twoQuestionExam(2)
	exam.Questions = exam.Questions[:1]
	h := newHarness(t, exam)
	gate := make(chan struct{})
	h.remote.gate = gate
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))
	for i := 0; i < 3; i++ {
		mustDo(t, "FocusLost", h.c.FocusLost(ctx))
	}
	snap := h.waitFor(t, "submitting", func(s Snapshot) bool { return s.Submitting })
	if snap.Result == nil {
		t.Fatal("result not computed at claim")
	}

	// Every other trigger fires while the first submission is in flight.
	h.push(t, realtime.Inbound{Kind: realtime.InboundForceSubmit})
	mustDo(t, "Submit", h.c.Submit(ctx))
	mustDo(t, "FocusLost", h.c.FocusLost(ctx))
	h.clock.Advance(5 * time.Second)

	close(gate)
	h.waitFor(t, "result", inView(model.ViewResult))

	time.Sleep(50 * time.Millisecond)
	if got := h.remote.submitCount(); got != 1 {
		t.Errorf("submits = %d, want 1", got)
	}
	if snap, _ := h.c.Snapshot(ctx); snap.TimeUp {
		t.Error("time up recorded after finalize")
	}
}

func TestTabSwitchEscalation(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))

	mustDo(t, "FocusLost", h.c.FocusLost(ctx))
	mustDo(t, "FocusLost", h.c.FocusLost(ctx))
	if got := h.tabCount(t); got != 2 {
		t.Fatalf("persisted count = %d, want 2", got)
	}
	warnings := h.presenter.messages(NoticeWarning)
	want := []string{
		"Warning: Do not switch tabs. 2 attempts remaining.",
		"Final Warning: 1 tab switch left before auto-submission.",
	}
	if len(warnings) != 2 || warnings[0] != want[0] || warnings[1] != want[1] {
		t.Fatalf("warnings = %q, want %q", warnings, want)
	}

	mustDo(t, "FocusLost", h.c.FocusLost(ctx))
	snap := h.waitFor(t, "result", inView(model.ViewResult))
	if snap.TabSwitchCount != 3 {
		t.Errorf("tab switch count = %d, want 3", snap.TabSwitchCount)
	}
	if got := h.tabCount(t); got != 0 {
		t.Errorf("persisted count after finalize = %d, want 0", got)
	}
	errs := h.presenter.messages(NoticeError)
	if len(errs) == 0 || errs[0] != "Too many tab switches. Submitting exam..." {
		t.Errorf("error notices = %q", errs)
	}

	got := strings.Join(h.ch.kinds(), ",")
	if !strings.Contains(got, "tab,tab,auto,tab") {
		t.Errorf("sent = %s, want auto-submitted before the final tab-switch", got)
	}
	h.ch.mu.Lock()
	tabs := append([]int(nil), h.ch.tabs...)
	h.ch.mu.Unlock()
	if len(tabs) != 3 || tabs[2] != 3 {
		t.Errorf("tab-switch counts = %v", tabs)
	}
}

func TestFocusLossIgnoredOutsideQuestions(t *testing.T) {
	tests := []struct {
		name   string
		bypass bool
		start  bool
	}{
		{name: "instructions", start: false},
		{name: "bypass", bypass: true, start: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, twoQuestionExam(60), func(cfg *Config, _ *Deps, _ *harness) {
				cfg.Proctor.Bypass = tt.bypass
			})
			ctx := testCtx(t)
			if tt.start {
				mustDo(t, "Start", h.c.Start(ctx))
			}
			for i := 0; i < 5; i++ {
				mustDo(t, "FocusLost", h.c.FocusLost(ctx))
			}
			snap, err := h.c.Snapshot(ctx)
			mustDo(t, "Snapshot", err)
			if snap.TabSwitchCount != 0 || h.tabCount(t) != 0 {
				t.Errorf("count = %d, persisted = %d, want 0", snap.TabSwitchCount, h.tabCount(t))
			}
			if snap.View == model.ViewResult {
				t.Error("session finalized")
			}
		})
	}
}

func TestFocusLossIgnoredDuringInterstitial(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))
	mustDo(t, "Advance", h.c.Advance(ctx))
	mustDo(t, "FocusLost", h.c.FocusLost(ctx))

	if got := h.tabCount(t); got != 0 {
		t.Errorf("persisted count = %d, want 0", got)
	}
}

func TestTimerExpiryFinalizesOnce(t *testing.T) {
	h := newHarness(t, twoQuestionExam(2))
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))
	mustDo(t, "Select", h.c.Select(ctx, "A"))

	h.tick(t)
	h.waitFor(t, "one second left", func(s Snapshot) bool { return s.SecondsLeft == 1 })
	h.tick(t)

	snap := h.waitFor(t, "result", inView(model.ViewResult))
	if !snap.TimeUp {
		t.Error("time up not recorded")
	}
	if snap.SecondsLeft != 0 {
		t.Errorf("seconds left = %d, want 0", snap.SecondsLeft)
	}
	if snap.Result.Verdict != model.VerdictPass {
		t.Errorf("verdict = %s, want Pass", snap.Result.Verdict)
	}

	h.clock.Advance(10 * time.Second)
	time.Sleep(50 * time.Millisecond)
	if got := h.remote.submitCount(); got != 1 {
		t.Errorf("submits = %d, want 1", got)
	}
}

func TestForceSubmitDuringInterstitial(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))
	mustDo(t, "Advance", h.c.Advance(ctx))
	h.push(t, realtime.Inbound{Kind: realtime.InboundForceSubmit})

	h.waitFor(t, "result", inView(model.ViewResult))

	h.clock.Advance(DefaultInterstitial)
	time.Sleep(50 * time.Millisecond)
	snap, err := h.c.Snapshot(ctx)
	mustDo(t, "Snapshot", err)
	if snap.View != model.ViewResult || snap.QuestionIndex != 0 {
		t.Errorf("interstitial resumed after finalize: view=%s index=%d", snap.View, snap.QuestionIndex)
	}
}

func TestForceSubmitIgnoredBeforeStart(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))

	h.push(t, realtime.Inbound{Kind: realtime.InboundForceSubmit})
	snap, err := h.c.Snapshot(testCtx(t))
	mustDo(t, "Snapshot", err)
	if snap.View != model.ViewInstructions || snap.Result != nil {
		t.Errorf("view = %s, result = %v", snap.View, snap.Result)
	}
}

func TestRetakeResetsAttempt(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))
	mustDo(t, "Select", h.c.Select(ctx, "A"))
	mustDo(t, "FocusLost", h.c.FocusLost(ctx))
	mustDo(t, "Advance", h.c.Advance(ctx))
	h.clock.Advance(DefaultInterstitial)
	h.waitFor(t, "second question", inView(model.ViewQuestions))
	mustDo(t, "Submit", h.c.Submit(ctx))
	h.waitFor(t, "result", inView(model.ViewResult))

	mustDo(t, "Review", h.c.Review(ctx))
	if err := h.c.Select(ctx, "B"); !errors.Is(err, ErrIllegalAction) {
		t.Errorf("select in review = %v, want ErrIllegalAction", err)
	}

	mustDo(t, "Retake", h.c.Retake(ctx))
	snap, err := h.c.Snapshot(ctx)
	mustDo(t, "Snapshot", err)
	if snap.View != model.ViewInstructions {
		t.Errorf("view = %s, want instructions", snap.View)
	}
	if snap.QuestionIndex != 0 || len(snap.Selections) != 0 {
		t.Errorf("index = %d, selections = %v", snap.QuestionIndex, snap.Selections)
	}
	if snap.SecondsLeft != 60 || snap.TabSwitchCount != 0 || snap.Result != nil || snap.TimeUp {
		t.Errorf("not reset: %+v", snap)
	}
	if got := h.tabCount(t); got != 0 {
		t.Errorf("persisted count = %d, want 0", got)
	}
	joins := 0
	for _, k := range h.ch.kinds() {
		if k == "join" {
			joins++
		}
	}
	if joins != 2 {
		t.Errorf("joins = %d, want a second join for the new attempt", joins)
	}

	// The new attempt can be finalized again.
	mustDo(t, "Start", h.c.Start(ctx))
	for i := 0; i < 3; i++ {
		mustDo(t, "FocusLost", h.c.FocusLost(ctx))
	}
	h.waitFor(t, "second result", inView(model.ViewResult))
	if got := h.remote.submitCount(); got != 2 {
		t.Errorf("submits = %d, want 2", got)
	}
}

func TestSubmitFailureThenRetry(t *testing.T) {
	exam := twoQuestionExam(60)
	exam.Questions = exam.Questions[:1]
	h := newHarness(t, exam)
	h.remote.setSubmitErr(errors.New("backend down"))
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))
	mustDo(t, "Select", h.c.Select(ctx, "B"))
	mustDo(t, "Submit", h.c.Submit(ctx))

	snap := h.waitFor(t, "result", func(s Snapshot) bool { return s.View == model.ViewResult && !s.Submitting })
	if snap.Result.Persisted {
		t.Fatal("failed submission marked persisted")
	}
	if errs := h.presenter.messages(NoticeError); len(errs) != 1 {
		t.Errorf("error notices = %q, want one", errs)
	}

	h.remote.setSubmitErr(nil)
	mustDo(t, "RetrySubmit", h.c.RetrySubmit(ctx))
	snap = h.waitFor(t, "persisted", func(s Snapshot) bool { return s.Result != nil && s.Result.Persisted })
	if snap.View != model.ViewResult {
		t.Errorf("view = %s, want result", snap.View)
	}

	h.remote.mu.Lock()
	first, second := h.remote.submits[0], h.remote.submits[1]
	h.remote.mu.Unlock()
	if first.Verdict != second.Verdict || first.CorrectCount() != second.CorrectCount() {
		t.Errorf("retry changed the result: %+v vs %+v", first, second)
	}

	if err := h.c.RetrySubmit(ctx); !errors.Is(err, ErrIllegalAction) {
		t.Errorf("second retry = %v, want ErrIllegalAction", err)
	}
}

func TestActionValidation(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))
	ctx := testCtx(t)

	if err := h.c.Select(ctx, "A"); !errors.Is(err, ErrIllegalAction) {
		t.Errorf("select before start = %v", err)
	}
	if err := h.c.Retake(ctx); !errors.Is(err, ErrIllegalAction) {
		t.Errorf("retake before result = %v", err)
	}

	mustDo(t, "Start", h.c.Start(ctx))
	if err := h.c.Start(ctx); !errors.Is(err, ErrIllegalAction) {
		t.Errorf("second start = %v", err)
	}
	if err := h.c.Select(ctx, "Z"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("unknown option = %v", err)
	}
	if err := h.c.Submit(ctx); !errors.Is(err, ErrIllegalAction) {
		t.Errorf("submit on first question = %v", err)
	}

	mustDo(t, "Advance", h.c.Advance(ctx))
	h.clock.Advance(DefaultInterstitial)
	h.waitFor(t, "second question", inView(model.ViewQuestions))
	if err := h.c.Advance(ctx); !errors.Is(err, ErrIllegalAction) {
		t.Errorf("advance past last = %v", err)
	}
}

func TestFetchFailureBlocksStart(t *testing.T) {
	h := newHarness(t, nil, func(_ *Config, _ *Deps, h *harness) {
		h.remote.fetchErr = errors.New("404")
	})

	if err := h.c.Start(testCtx(t)); !errors.Is(err, ErrNotReady) {
		t.Errorf("Start = %v, want ErrNotReady", err)
	}
	if errs := h.presenter.messages(NoticeError); len(errs) != 1 {
		t.Errorf("error notices = %q, want one", errs)
	}
}

func TestRestoredCountSurvivesReload(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60), func(_ *Config, _ *Deps, h *harness) {
		key := config.CacheKey.TabSwitchCountKey(testExamID, testUserID)
		h.counter.Incr(context.Background(), key)
		h.counter.Incr(context.Background(), key)
	})
	ctx := testCtx(t)

	snap := h.waitFor(t, "restored count", func(s Snapshot) bool { return s.TabSwitchCount == 2 })
	if snap.View != model.ViewInstructions {
		t.Fatalf("view = %s", snap.View)
	}

	mustDo(t, "Start", h.c.Start(ctx))
	mustDo(t, "FocusLost", h.c.FocusLost(ctx))
	h.waitFor(t, "result", inView(model.ViewResult))
}

func TestInboundLeaderboardIsSorted(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))

	h.push(t, realtime.Inbound{Kind: realtime.InboundLeaderboard, Leaderboard: []model.LeaderboardEntry{
		{UserID: "a", Name: "A", CorrectAnswers: 1},
		{UserID: "b", Name: "B", CorrectAnswers: 3},
		{UserID: "c", Name: "C", CorrectAnswers: 2},
	}})

	snap, err := h.c.Snapshot(testCtx(t))
	mustDo(t, "Snapshot", err)
	var order []string
	for _, e := range snap.Leaderboard {
		order = append(order, e.UserID)
	}
	if strings.Join(order, "") != "bca" {
		t.Errorf("order = %v, want [b c a]", order)
	}
}

func TestChannelDropContinuesOffline(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))
	ctx := testCtx(t)

	h.push(t, realtime.Inbound{Kind: realtime.InboundDisconnected, Err: errors.New("eof")})
	h.ch.mu.Lock()
	h.ch.sendErr = realtime.ErrClosed
	h.ch.mu.Unlock()

	mustDo(t, "Start", h.c.Start(ctx))
	mustDo(t, "Select", h.c.Select(ctx, "A"))
	mustDo(t, "FocusLost", h.c.FocusLost(ctx))

	if warnings := h.presenter.messages(NoticeWarning); len(warnings) != 2 {
		t.Errorf("warnings = %q, want channel notice once plus tab warning", warnings)
	}
	snap, err := h.c.Snapshot(ctx)
	mustDo(t, "Snapshot", err)
	if snap.View != model.ViewQuestions || snap.Selections[0] != "A" {
		t.Errorf("exam did not continue: %+v", snap)
	}
}

func TestDialFailureContinuesOffline(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60), func(_ *Config, deps *Deps, _ *harness) {
		deps.Dial = func(context.Context) (Channel, error) { return nil, errors.New("refused") }
	})
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))
	mustDo(t, "Select", h.c.Select(ctx, "A"))
	if warnings := h.presenter.messages(NoticeWarning); len(warnings) != 1 {
		t.Errorf("warnings = %q, want one", warnings)
	}
}

func TestStopReleasesChannel(t *testing.T) {
	h := newHarness(t, twoQuestionExam(60))
	ctx := testCtx(t)

	mustDo(t, "Start", h.c.Start(ctx))
	h.c.Stop()
	h.c.Stop()

	select {
	case <-h.c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if !h.ch.isClosed() {
		t.Error("channel not closed on stop")
	}
	kinds := h.ch.kinds()
	if len(kinds) == 0 || kinds[0] != "join" {
		t.Errorf("sent = %v, want join first", kinds)
	}
	if err := h.c.Select(ctx, "A"); !errors.Is(err, ErrStopped) {
		t.Errorf("action after stop = %v, want ErrStopped", err)
	}
}
