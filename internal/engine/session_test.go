package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

type stubSaver struct {
	mu    sync.Mutex
	calls int
	fail  int
	last  Snapshot
}

func (s *stubSaver) SaveSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = snap
	if s.fail > 0 {
		s.fail--
		return errors.New("save failed")
	}
	return nil
}

func (s *stubSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubSaver) lastSnap() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type stubFinalizer struct {
	mu        sync.Mutex
	calls     int
	fail      int
	delay     time.Duration
	id        uuid.UUID
	lastSnap  Snapshot
	lastTotal int
	reasons   []SubmitReason
}

func (f *stubFinalizer) Finalize(_ context.Context, snap Snapshot, total int, reason SubmitReason) (uuid.UUID, error) {
	f.mu.Lock()
	f.calls++
	f.lastSnap = snap
	f.lastTotal = total
	f.reasons = append(f.reasons, reason)
	failing := f.fail > 0
	if failing {
		f.fail--
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		return uuid.Nil, errors.New("grading failed")
	}
	return f.id, nil
}

func (f *stubFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *stubFinalizer) setFail(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = n
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testQuestions(n int) []model.QuestionForUser {
	qs := make([]model.QuestionForUser, n)
	for i := range qs {
		qs[i] = model.QuestionForUser{
			ID:     uuid.New(),
			Prompt: "prompt",
			Options: []model.Option{
				{ID: "a", Text: "A"}, {ID: "b", Text: "B"},
				{ID: "c", Text: "C"}, {ID: "d", Text: "D"},
			},
			Subject: "math",
		}
	}
	return qs
}

// idleOpts keeps the recurring tasks effectively dormant so tests can drive
// ticks and saves by hand.
func idleOpts() Options {
	return Options{CountdownTick: time.Hour, AutosaveInterval: time.Hour}
}

func newTestSession(questions []model.QuestionForUser, limit int, saver Saver, fin Finalizer, opts Options) *Session {
	if saver == nil {
		saver = &stubSaver{}
	}
	if fin == nil {
		fin = &stubFinalizer{id: uuid.New()}
	}
	return NewSession(uuid.New(), 42, questions, limit, saver, fin, opts, zerolog.Nop())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (s *Session) tasksAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasksRunning
}

func (s *Session) remainingSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func TestStartOnlyOnce(t *testing.T) {
	s := newTestSession(testQuestions(2), 60, nil, nil, idleOpts())
	if err := s.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second start should fail with ErrNotActive, got %v", err)
	}
}

func TestCountdownExpiryAutoSubmits(t *testing.T) {
	fin := &stubFinalizer{id: uuid.New()}
	s := newTestSession(testQuestions(2), 3, nil, fin, Options{
		CountdownTick:    5 * time.Millisecond,
		AutosaveInterval: time.Hour,
	})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "auto submission", func() bool {
		return s.Status() == model.AttemptStatusCompleted
	})

	if got := fin.count(); got != 1 {
		t.Fatalf("expected exactly one finalize call, got %d", got)
	}
	fin.mu.Lock()
	defer fin.mu.Unlock()
	if fin.reasons[0] != SubmitReasonTimeout {
		t.Fatalf("expected TIMEOUT reason, got %s", fin.reasons[0])
	}
	if fin.lastSnap.RemainingSeconds != 0 {
		t.Fatalf("expected 0 remaining at expiry, got %d", fin.lastSnap.RemainingSeconds)
	}
	if fin.lastTotal != 3 {
		t.Fatalf("expected full time budget spent, got %d", fin.lastTotal)
	}
}

func TestTickAtZeroIsNoOp(t *testing.T) {
	s := newTestSession(testQuestions(1), 1, nil, nil, idleOpts())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	if !s.tick() {
		t.Fatal("first tick should cross zero")
	}
	if s.tick() {
		t.Fatal("tick at zero must not cross zero again")
	}
	if got := s.remainingSeconds(); got != 0 {
		t.Fatalf("remaining must not go below zero, got %d", got)
	}
}

func TestFinishExactlyOnceUnderConcurrency(t *testing.T) {
	fin := &stubFinalizer{id: uuid.New(), delay: 30 * time.Millisecond}
	s := newTestSession(testQuestions(2), 60, nil, fin, idleOpts())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var won, rejected int
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Finish(context.Background(), SubmitReasonManual)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && id == fin.id:
				won++
			case errors.Is(err, ErrSubmitInFlight):
				rejected++
			default:
				t.Errorf("unexpected finish outcome: id=%s err=%v", id, err)
			}
		}()
	}
	wg.Wait()

	if won < 1 {
		t.Fatalf("expected at least one caller to get the result, won=%d rejected=%d", won, rejected)
	}
	if got := fin.count(); got != 1 {
		t.Fatalf("expected exactly one finalize call, got %d", got)
	}
}

func TestFinishAfterCompletedReturnsSameResult(t *testing.T) {
	fin := &stubFinalizer{id: uuid.New()}
	s := newTestSession(testQuestions(1), 60, nil, fin, idleOpts())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	first, err := s.Finish(context.Background(), SubmitReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Finish(context.Background(), SubmitReasonManual)
	if err != nil {
		t.Fatal(err)
	}
	if first != second || first != fin.id {
		t.Fatalf("repeat finish must return the stored result id: %s vs %s", first, second)
	}
	if got := fin.count(); got != 1 {
		t.Fatalf("expected exactly one finalize call, got %d", got)
	}
}

func TestTimeoutFailureLeavesCountdownStopped(t *testing.T) {
	fin := &stubFinalizer{id: uuid.New()}
	fin.setFail(1)
	s := newTestSession(testQuestions(1), 2, nil, fin, Options{
		CountdownTick:    5 * time.Millisecond,
		AutosaveInterval: time.Hour,
	})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "failed timeout submission", func() bool {
		return fin.count() == 1 && s.Status() == model.AttemptStatusActive
	})

	// The countdown must not be relaunched: the budget is already spent.
	time.Sleep(30 * time.Millisecond)
	if s.tasksAlive() {
		t.Fatal("tasks must stay stopped after a failed timeout submission")
	}
	if got := s.remainingSeconds(); got != 0 {
		t.Fatalf("remaining should stay at zero, got %d", got)
	}
	if got := fin.count(); got != 1 {
		t.Fatalf("no automatic retry expected, got %d finalize calls", got)
	}

	// A manual retry still works.
	id, err := s.Finish(context.Background(), SubmitReasonManual)
	if err != nil {
		t.Fatalf("manual retry: %v", err)
	}
	if id != fin.id {
		t.Fatalf("unexpected result id %s", id)
	}
}

func TestManualFailureRestartsCountdown(t *testing.T) {
	fin := &stubFinalizer{id: uuid.New()}
	fin.setFail(1)
	s := newTestSession(testQuestions(1), 100, nil, fin, Options{
		CountdownTick:    5 * time.Millisecond,
		AutosaveInterval: time.Hour,
	})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Finish(context.Background(), SubmitReasonManual); err == nil {
		t.Fatal("expected the first submission to fail")
	}
	if s.Status() != model.AttemptStatusActive {
		t.Fatalf("failed manual submit must return to ACTIVE, got %s", s.Status())
	}
	if !s.tasksAlive() {
		t.Fatal("tasks must restart after a failed manual submission with time left")
	}
	waitFor(t, "countdown to keep running", func() bool {
		return s.remainingSeconds() < 100
	})

	id, err := s.Finish(context.Background(), SubmitReasonManual)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if id != fin.id {
		t.Fatalf("unexpected result id %s", id)
	}
}

func TestAnswerValidation(t *testing.T) {
	qs := testQuestions(3)
	s := newTestSession(qs, 60, nil, nil, idleOpts())

	if _, err := s.Answer(qs[0].ID, "a", false); !errors.Is(err, ErrNotActive) {
		t.Fatalf("answer before start should fail, got %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Answer(uuid.New(), "a", false); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("expected ErrUnknownQuestion, got %v", err)
	}
	if _, err := s.Answer(qs[0].ID, "zz", false); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}

	p, err := s.Answer(qs[0].ID, "b", false)
	if err != nil {
		t.Fatal(err)
	}
	if p.Answered != 1 || p.Unanswered != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}

	p, err = s.Answer(qs[1].ID, "", true)
	if err != nil {
		t.Fatal(err)
	}
	if p.Answered != 1 || p.Skipped != 1 || p.Unanswered != 1 {
		t.Fatalf("unexpected progress after skip: %+v", p)
	}
}

func TestNavigationClamp(t *testing.T) {
	s := newTestSession(testQuestions(5), 60, nil, nil, idleOpts())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	if idx, _ := s.Goto(-3); idx != 0 {
		t.Fatalf("negative index should clamp to 0, got %d", idx)
	}
	if idx, _ := s.Goto(99); idx != 4 {
		t.Fatalf("overflow index should clamp to last, got %d", idx)
	}
	if idx, _ := s.Next(); idx != 4 {
		t.Fatalf("next at the end should stay, got %d", idx)
	}
	if idx, _ := s.Previous(); idx != 3 {
		t.Fatalf("previous should step back, got %d", idx)
	}
}

func TestNavigationMergesElapsedTime(t *testing.T) {
	clock := newFakeClock()
	qs := testQuestions(3)
	opts := idleOpts()
	opts.Now = clock.Now
	s := newTestSession(qs, 600, nil, nil, opts)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	clock.Advance(7 * time.Second)
	if _, err := s.Next(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(3 * time.Second)
	if _, err := s.Goto(2); err != nil {
		t.Fatal(err)
	}

	st := s.State()
	if got := st.Answers[qs[0].ID].TimeSpentSeconds; got != 7 {
		t.Fatalf("question 0 should carry 7s, got %d", got)
	}
	if got := st.Answers[qs[1].ID].TimeSpentSeconds; got != 3 {
		t.Fatalf("question 1 should carry 3s, got %d", got)
	}
	if st.Cursor != 2 {
		t.Fatalf("cursor should be 2, got %d", st.Cursor)
	}
}

func TestFinishMergesElapsedAndReportsTotal(t *testing.T) {
	clock := newFakeClock()
	fin := &stubFinalizer{id: uuid.New()}
	qs := testQuestions(2)
	opts := idleOpts()
	opts.Now = clock.Now
	s := newTestSession(qs, 600, nil, fin, opts)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		s.tick()
	}
	clock.Advance(9 * time.Second)

	if _, err := s.Finish(context.Background(), SubmitReasonManual); err != nil {
		t.Fatal(err)
	}

	fin.mu.Lock()
	defer fin.mu.Unlock()
	if fin.lastTotal != 5 {
		t.Fatalf("total time spent should follow the countdown, got %d", fin.lastTotal)
	}
	if got := fin.lastSnap.Answers[qs[0].ID].TimeSpentSeconds; got != 9 {
		t.Fatalf("pending elapsed time must merge before grading, got %d", got)
	}
}

func TestMergeAutosaveValidatesAndKeepsTimeMonotonic(t *testing.T) {
	saver := &stubSaver{}
	qs := testQuestions(3)
	s := newTestSession(qs, 600, saver, nil, idleOpts())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	err := s.MergeAutosave(context.Background(), map[uuid.UUID]model.AutosaveAnswer{
		qs[0].ID:   {OptionID: "a", TimeSpent: 50},
		qs[1].ID:   {OptionID: "zz", TimeSpent: 10}, // invalid option: time still merges
		uuid.New(): {OptionID: "a", TimeSpent: 99},  // foreign question: ignored
	})
	if err != nil {
		t.Fatal(err)
	}

	st := s.State()
	if rec := st.Answers[qs[0].ID]; rec.OptionID != "a" || rec.TimeSpentSeconds != 50 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec := st.Answers[qs[1].ID]; rec.State == model.AnswerStateAnswered {
		t.Fatalf("invalid option must not record an answer: %+v", rec)
	} else if rec.TimeSpentSeconds != 10 {
		t.Fatalf("time should merge even without a valid selection: %+v", rec)
	}
	if len(st.Answers) != 2 {
		t.Fatalf("foreign question must not create a slot: %d records", len(st.Answers))
	}

	// An older client snapshot never rolls time back.
	err = s.MergeAutosave(context.Background(), map[uuid.UUID]model.AutosaveAnswer{
		qs[0].ID: {OptionID: "b", TimeSpent: 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	st = s.State()
	if rec := st.Answers[qs[0].ID]; rec.OptionID != "b" || rec.TimeSpentSeconds != 50 {
		t.Fatalf("time must be monotonic across merges: %+v", rec)
	}

	if got := saver.count(); got != 2 {
		t.Fatalf("each merge should flush one snapshot, got %d", got)
	}
}

func TestAutosaveRetriesAfterFailure(t *testing.T) {
	saver := &stubSaver{fail: 1}
	s := newTestSession(testQuestions(1), 600, saver, nil, Options{
		CountdownTick:    time.Hour,
		AutosaveInterval: 5 * time.Millisecond,
	})
	events, cancel := s.Subscribe()
	defer cancel()
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "autosave retry", func() bool { return saver.count() >= 2 })

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == EventSaved {
				return
			}
		case <-deadline:
			t.Fatal("no saved event after autosave recovered")
		}
	}
}

func TestSubscribeProgressAndGraded(t *testing.T) {
	fin := &stubFinalizer{id: uuid.New()}
	qs := testQuestions(2)
	s := newTestSession(qs, 600, nil, fin, idleOpts())
	events, cancel := s.Subscribe()
	defer cancel()
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Answer(qs[0].ID, "a", false); err != nil {
		t.Fatal(err)
	}
	ev := nextEvent(t, events, EventProgress)
	if ev.Progress == nil || ev.Progress.Answered != 1 {
		t.Fatalf("unexpected progress event: %+v", ev)
	}

	if _, err := s.Finish(context.Background(), SubmitReasonManual); err != nil {
		t.Fatal(err)
	}
	ev = nextEvent(t, events, EventGraded)
	if ev.ResultID != fin.id.String() {
		t.Fatalf("graded event should carry the result id, got %q", ev.ResultID)
	}

	if _, open := <-events; open {
		t.Fatal("stream should close after grading")
	}
}

func nextEvent(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("stream closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestCloseFlushesFinalSnapshot(t *testing.T) {
	clock := newFakeClock()
	saver := &stubSaver{}
	qs := testQuestions(2)
	opts := idleOpts()
	opts.Now = clock.Now
	s := newTestSession(qs, 600, saver, nil, opts)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Answer(qs[0].ID, "c", false); err != nil {
		t.Fatal(err)
	}
	clock.Advance(4 * time.Second)

	s.Close(context.Background())

	if got := saver.count(); got != 1 {
		t.Fatalf("close should flush one snapshot, got %d", got)
	}
	snap := saver.lastSnap()
	if rec := snap.Answers[qs[0].ID]; rec.OptionID != "c" || rec.TimeSpentSeconds != 4 {
		t.Fatalf("final snapshot should carry merged state: %+v", rec)
	}
	if s.Status() != model.AttemptStatusActive {
		t.Fatalf("close must not finalize the attempt, got %s", s.Status())
	}

	// Closing a session that never started does nothing.
	idle := newTestSession(qs, 600, saver, nil, opts)
	idle.Close(context.Background())
	if got := saver.count(); got != 1 {
		t.Fatalf("close before start must not flush, got %d saves", got)
	}
}

func TestRestoreBeforeStart(t *testing.T) {
	qs := testQuestions(4)
	s := newTestSession(qs, 300, nil, nil, idleOpts())

	answers := map[uuid.UUID]model.AnswerRecord{
		qs[0].ID: {State: model.AnswerStateAnswered, OptionID: "d", TimeSpentSeconds: 80},
		qs[1].ID: {State: model.AnswerStateSkipped, TimeSpentSeconds: 12},
	}
	if err := s.Restore(120, 2, answers); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	st := s.State()
	if st.RemainingSeconds != 120 || st.Cursor != 2 {
		t.Fatalf("unexpected restored state: remaining=%d cursor=%d", st.RemainingSeconds, st.Cursor)
	}
	if rec := st.Answers[qs[0].ID]; rec.OptionID != "d" || rec.TimeSpentSeconds != 80 {
		t.Fatalf("unexpected restored record: %+v", rec)
	}
	if st.Progress.Answered != 1 || st.Progress.Skipped != 1 || st.Progress.Unanswered != 2 {
		t.Fatalf("unexpected restored progress: %+v", st.Progress)
	}

	if err := s.Restore(60, 0, nil); !errors.Is(err, ErrNotActive) {
		t.Fatalf("restore after start should fail, got %v", err)
	}
}

func TestRestoreClampsRemainingAndCursor(t *testing.T) {
	qs := testQuestions(2)
	s := newTestSession(qs, 300, nil, nil, idleOpts())
	if err := s.Restore(-10, 50, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.RemainingSeconds != 0 {
		t.Fatalf("negative remaining should clamp to 0, got %d", st.RemainingSeconds)
	}
	if st.Cursor != 1 {
		t.Fatalf("cursor should clamp to last question, got %d", st.Cursor)
	}
}

func TestFullAttemptTimesOutWithMixedAnswers(t *testing.T) {
	fin := &stubFinalizer{id: uuid.New()}
	qs := testQuestions(3)
	s := newTestSession(qs, 90, nil, fin, idleOpts())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Answer(qs[0].ID, "b", false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Answer(qs[1].ID, "", true); err != nil {
		t.Fatal(err)
	}

	// Drive the countdown all the way down by hand.
	for i := 0; i < 89; i++ {
		if s.tick() {
			t.Fatalf("premature zero crossing at tick %d", i)
		}
	}
	if !s.tick() {
		t.Fatal("expected the zero crossing on the final tick")
	}
	if _, err := s.Finish(context.Background(), SubmitReasonTimeout); err != nil {
		t.Fatal(err)
	}

	fin.mu.Lock()
	defer fin.mu.Unlock()
	if fin.calls != 1 {
		t.Fatalf("expected exactly one finalize call, got %d", fin.calls)
	}
	if fin.lastTotal != 90 {
		t.Fatalf("expected the full budget as total time, got %d", fin.lastTotal)
	}
	p := ComputeProgress(len(qs), fin.lastSnap.Answers)
	if p.Answered != 1 || p.Skipped != 1 || p.Unanswered != 1 {
		t.Fatalf("unexpected final progress: %+v", p)
	}
}

func TestRevisitedQuestionAccumulatesTime(t *testing.T) {
	clock := newFakeClock()
	qs := testQuestions(3)
	opts := idleOpts()
	opts.Now = clock.Now
	s := newTestSession(qs, 600, nil, nil, opts)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	// Q1 → Q2 → Q1 → Q3, five seconds on each stop.
	clock.Advance(5 * time.Second)
	if _, err := s.Goto(1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Second)
	if _, err := s.Goto(0); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Second)
	if _, err := s.Goto(2); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Second)

	if _, err := s.Finish(context.Background(), SubmitReasonManual); err != nil {
		t.Fatal(err)
	}

	fin := s.finalizer.(*stubFinalizer)
	fin.mu.Lock()
	defer fin.mu.Unlock()
	if got := fin.lastSnap.Answers[qs[0].ID].TimeSpentSeconds; got != 10 {
		t.Fatalf("two visits to question 0 should sum to 10s, got %d", got)
	}
	if got := fin.lastSnap.Answers[qs[1].ID].TimeSpentSeconds; got != 5 {
		t.Fatalf("question 1 should carry 5s, got %d", got)
	}
	if got := fin.lastSnap.Answers[qs[2].ID].TimeSpentSeconds; got != 5 {
		t.Fatalf("question 2 should carry 5s, got %d", got)
	}
}

func TestConcurrentNextStepsExactlyOnceEach(t *testing.T) {
	qs := testQuestions(10)
	s := newTestSession(qs, 600, nil, nil, idleOpts())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	// Five concurrent single steps from cursor 0 must land on 5: each
	// Next reads and moves the cursor under one critical section.
	const steps = 5
	var wg sync.WaitGroup
	for i := 0; i < steps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Next(); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := s.State().Cursor; got != steps {
		t.Fatalf("expected cursor %d after %d concurrent steps, got %d", steps, steps, got)
	}

	for i := 0; i < steps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Previous(); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := s.State().Cursor; got != 0 {
		t.Fatalf("expected cursor back at 0, got %d", got)
	}
}
