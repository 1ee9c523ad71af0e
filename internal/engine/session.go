package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepdeck/prepdeck-backend/internal/model"
)

// SubmitReason distinguishes a user-requested finish from timer expiry.
type SubmitReason string

const (
	SubmitReasonManual  SubmitReason = "MANUAL"
	SubmitReasonTimeout SubmitReason = "TIMEOUT"
)

// Session errors.
var (
	ErrNotActive       = errors.New("attempt is not active")
	ErrSubmitInFlight  = errors.New("submission already in flight")
	ErrUnknownQuestion = errors.New("question is not part of this attempt")
	ErrInvalidOption   = errors.New("option is not part of this question")
)

// Snapshot is an immutable copy of session state handed to persistence and
// grading. Answers is owned by the receiver.
type Snapshot struct {
	AttemptID        uuid.UUID                        `json:"attempt_id"`
	UserID           int                              `json:"user_id"`
	RemainingSeconds int                              `json:"remaining_seconds"`
	Cursor           int                              `json:"cursor"`
	Answers          map[uuid.UUID]model.AnswerRecord `json:"answers"`
	TakenAt          time.Time                        `json:"taken_at"`
}

// Saver persists periodic snapshots. Implementations must tolerate being
// called from the autosave task with a short deadline; a failed save is
// retried with newer state on the next cycle.
type Saver interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// Finalizer grades and durably records a finished attempt, returning the
// result id. It is invoked at most once concurrently per session.
type Finalizer interface {
	Finalize(ctx context.Context, snap Snapshot, totalTimeSpent int, reason SubmitReason) (uuid.UUID, error)
}

// Options tune the session's recurring tasks. Zero values fall back to
// production defaults; tests inject short intervals and a fake clock.
type Options struct {
	CountdownTick    time.Duration
	AutosaveInterval time.Duration
	AutosaveTimeout  time.Duration
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CountdownTick <= 0 {
		o.CountdownTick = time.Second
	}
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = 30 * time.Second
	}
	if o.AutosaveTimeout <= 0 {
		o.AutosaveTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// State is a read-only view of a live session, served to resume and active
// lookups.
type State struct {
	SessionID        uuid.UUID                        `json:"session_id"`
	Status           model.AttemptStatus              `json:"status"`
	Questions        []model.QuestionForUser          `json:"questions"`
	Answers          map[uuid.UUID]model.AnswerRecord `json:"answers"`
	RemainingSeconds int                              `json:"remaining_seconds"`
	TimeLimitSeconds int                              `json:"time_limit_seconds"`
	Cursor           int                              `json:"cursor"`
	Progress         model.Progress                   `json:"progress"`
}

// Session owns all mutable state of one timed attempt: the answer ledger,
// the countdown, the cursor and the status. Every operation (tick,
// navigate, record, finish) takes the single mutex, so the two recurring
// tasks and request handlers are linearized regardless of scheduling.
type Session struct {
	mu sync.Mutex

	id        uuid.UUID
	userID    int
	questions []model.QuestionForUser
	byID      map[uuid.UUID]*model.QuestionForUser

	ledger    *Ledger
	limit     int
	remaining int
	cursor    int
	status    model.AttemptStatus

	// enteredAt is the reference instant for per-question time accounting:
	// when the cursor last moved, or when the session (re)started.
	enteredAt time.Time

	resultID uuid.UUID

	stop         chan struct{}
	tasksRunning bool

	subscribers map[int]chan Event
	nextSubID   int

	saver     Saver
	finalizer Finalizer
	opts      Options
	log       zerolog.Logger
}

// NewSession creates a session in NOT_STARTED with a full time budget.
func NewSession(
	id uuid.UUID,
	userID int,
	questions []model.QuestionForUser,
	timeLimitSeconds int,
	saver Saver,
	finalizer Finalizer,
	opts Options,
	log zerolog.Logger,
) *Session {
	byID := make(map[uuid.UUID]*model.QuestionForUser, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	return &Session{
		id:          id,
		userID:      userID,
		questions:   questions,
		byID:        byID,
		ledger:      NewLedger(),
		limit:       timeLimitSeconds,
		remaining:   timeLimitSeconds,
		status:      model.AttemptStatusNotStarted,
		subscribers: make(map[int]chan Event),
		saver:       saver,
		finalizer:   finalizer,
		opts:        opts.withDefaults(),
		log:         log.With().Str("component", "session").Str("attempt_id", id.String()).Logger(),
	}
}

// Restore overwrites ledger, remaining time and cursor from a persisted
// snapshot. Full replacement, never a merge: after an interruption the
// stored state is authoritative. Only valid before Start.
func (s *Session) Restore(remaining, cursor int, answers map[uuid.UUID]model.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.AttemptStatusNotStarted {
		return ErrNotActive
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > s.limit {
		remaining = s.limit
	}
	s.remaining = remaining
	s.cursor = s.clampIndex(cursor)
	s.ledger.Restore(answers)
	return nil
}

// Start transitions NOT_STARTED → ACTIVE and launches the countdown and
// autosave tasks.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.AttemptStatusNotStarted {
		return fmt.Errorf("start from %s: %w", s.status, ErrNotActive)
	}
	s.status = model.AttemptStatusActive
	s.enteredAt = s.opts.Now()
	s.startTasksLocked()
	s.log.Info().Int("remaining", s.remaining).Int("questions", len(s.questions)).Msg("Session started")
	return nil
}

// ID returns the attempt id.
func (s *Session) ID() uuid.UUID { return s.id }

// UserID returns the owning user id.
func (s *Session) UserID() int { return s.userID }

// Status returns the current lifecycle state.
func (s *Session) Status() model.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns a consistent read-only view of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers := s.ledger.Snapshot()
	return State{
		SessionID:        s.id,
		Status:           s.status,
		Questions:        s.questions,
		Answers:          answers,
		RemainingSeconds: s.remaining,
		TimeLimitSeconds: s.limit,
		Cursor:           s.cursor,
		Progress:         ComputeProgress(len(s.questions), answers),
	}
}

// Answer upserts the selection for a question without moving the cursor;
// time accounting belongs to the next navigation event.
func (s *Session) Answer(questionID uuid.UUID, optionID string, skipped bool) (model.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.AttemptStatusActive {
		return model.Progress{}, ErrNotActive
	}
	q, ok := s.byID[questionID]
	if !ok {
		return model.Progress{}, ErrUnknownQuestion
	}
	if skipped {
		s.ledger.Skip(questionID)
	} else {
		if !q.HasOption(optionID) {
			return model.Progress{}, ErrInvalidOption
		}
		s.ledger.Record(questionID, optionID)
	}
	p := ComputeProgress(len(s.questions), s.ledger.Snapshot())
	s.broadcastLocked(Event{Type: EventProgress, Progress: &p})
	return p, nil
}

// Goto merges elapsed wall-clock time into the question being left, then
// moves the cursor, clamped to the question range.
func (s *Session) Goto(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotoLocked(index)
}

// Next advances the cursor by one. The target is computed under the same
// critical section as the move, so concurrent steps never read a stale
// cursor.
func (s *Session) Next() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotoLocked(s.cursor + 1)
}

// Previous moves the cursor back by one.
func (s *Session) Previous() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotoLocked(s.cursor - 1)
}

func (s *Session) gotoLocked(index int) (int, error) {
	if s.status != model.AttemptStatusActive {
		return s.cursor, ErrNotActive
	}
	s.mergeElapsedLocked()
	s.cursor = s.clampIndex(index)
	return s.cursor, nil
}

// MergeAutosave applies client-pushed answer records on top of the ledger,
// then persists a snapshot immediately. TimeSpent values replace the
// accumulated time only when larger, so time never runs backwards.
func (s *Session) MergeAutosave(ctx context.Context, answers map[uuid.UUID]model.AutosaveAnswer) error {
	s.mu.Lock()
	if s.status != model.AttemptStatusActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	for qid, a := range answers {
		q, ok := s.byID[qid]
		if !ok {
			continue
		}
		switch {
		case a.Skipped:
			s.ledger.Skip(qid)
		case a.OptionID != "":
			if q.HasOption(a.OptionID) {
				s.ledger.Record(qid, a.OptionID)
			}
		}
		if rec, _ := s.ledger.Get(qid); a.TimeSpent > rec.TimeSpentSeconds {
			s.ledger.AddTime(qid, a.TimeSpent-rec.TimeSpentSeconds)
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return s.saver.SaveSnapshot(ctx, snap)
}

// Finish finalizes the attempt exactly once. The SUBMITTING status itself is
// the in-flight guard: a second caller is rejected immediately, and a caller
// arriving after completion receives the winner's result id.
func (s *Session) Finish(ctx context.Context, reason SubmitReason) (uuid.UUID, error) {
	s.mu.Lock()
	switch s.status {
	case model.AttemptStatusCompleted:
		id := s.resultID
		s.mu.Unlock()
		return id, nil
	case model.AttemptStatusSubmitting:
		s.mu.Unlock()
		return uuid.Nil, ErrSubmitInFlight
	case model.AttemptStatusActive:
		// proceed
	default:
		s.mu.Unlock()
		return uuid.Nil, ErrNotActive
	}

	s.status = model.AttemptStatusSubmitting
	s.stopTasksLocked()
	s.mergeElapsedLocked()
	total := s.limit - s.remaining
	snap := s.snapshotLocked()
	s.mu.Unlock()

	resultID, err := s.finalizer.Finalize(ctx, snap, total, reason)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = model.AttemptStatusActive
		// After timer expiry the countdown stays stopped: restarting it would
		// count the same window twice. The caller surfaces a retry instead.
		if reason == SubmitReasonManual && s.remaining > 0 {
			s.enteredAt = s.opts.Now()
			s.startTasksLocked()
		}
		s.log.Warn().Err(err).Str("reason", string(reason)).Msg("Submission failed")
		return uuid.Nil, fmt.Errorf("finalize attempt: %w", err)
	}
	s.status = model.AttemptStatusCompleted
	s.resultID = resultID
	s.broadcastLocked(Event{Type: EventGraded, ResultID: resultID.String()})
	s.closeSubscribersLocked()
	s.log.Info().Str("reason", string(reason)).Str("result_id", resultID.String()).Msg("Session completed")
	return resultID, nil
}

// Close tears the session down without submitting, flushing one final
// snapshot so the attempt can be resumed later. Used on server shutdown.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.status != model.AttemptStatusActive {
		s.mu.Unlock()
		return
	}
	s.stopTasksLocked()
	s.mergeElapsedLocked()
	snap := s.snapshotLocked()
	s.closeSubscribersLocked()
	s.mu.Unlock()

	if err := s.saver.SaveSnapshot(ctx, snap); err != nil {
		s.log.Error().Err(err).Msg("Final snapshot failed")
	}
}

// ─── Recurring tasks ───────────────────────────────────────────────

func (s *Session) startTasksLocked() {
	if s.tasksRunning {
		return
	}
	s.stop = make(chan struct{})
	s.tasksRunning = true
	go s.runCountdown(s.stop)
	go s.runAutosave(s.stop)
}

func (s *Session) stopTasksLocked() {
	if !s.tasksRunning {
		return
	}
	close(s.stop)
	s.tasksRunning = false
}

func (s *Session) runCountdown(stop chan struct{}) {
	ticker := time.NewTicker(s.opts.CountdownTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.tick() {
				// Zero-crossing happens-before the submission it triggers.
				if _, err := s.Finish(context.Background(), SubmitReasonTimeout); err != nil &&
					!errors.Is(err, ErrSubmitInFlight) && !errors.Is(err, ErrNotActive) {
					s.log.Error().Err(err).Msg("Timeout submission failed")
				}
				return
			}
		}
	}
}

// tick decrements the countdown by one second and reports the zero
// crossing. A tick that fires when the clock already sits at zero, or after
// the session left ACTIVE, is a no-op; it must never trigger a second
// submission.
func (s *Session) tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.AttemptStatusActive || s.remaining <= 0 {
		return false
	}
	s.remaining--
	s.broadcastLocked(Event{Type: EventTick, RemainingSeconds: s.remaining})
	return s.remaining == 0
}

func (s *Session) runAutosave(stop chan struct{}) {
	ticker := time.NewTicker(s.opts.AutosaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.autosave()
		}
	}
}

// autosave copies the ledger under the mutex and persists outside it, so a
// slow save never blocks navigation or answer recording. Failures are
// swallowed: the next cycle carries the same or newer state.
func (s *Session) autosave() {
	s.mu.Lock()
	if s.status != model.AttemptStatusActive {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.AutosaveTimeout)
	defer cancel()
	if err := s.saver.SaveSnapshot(ctx, snap); err != nil {
		s.log.Debug().Err(err).Msg("Autosave failed, retrying next cycle")
		return
	}
	s.broadcast(Event{Type: EventSaved})
}

// ─── Internal helpers ───────────────────────────────────────────────

func (s *Session) clampIndex(i int) int {
	if i < 0 {
		return 0
	}
	if i > len(s.questions)-1 {
		return len(s.questions) - 1
	}
	return i
}

// mergeElapsedLocked folds wall-clock time since the last cursor move into
// the outgoing question and resets the reference instant. Sub-second
// remainders are dropped, so the ledger sum tracks wall-clock time within
// one second per move.
func (s *Session) mergeElapsedLocked() {
	now := s.opts.Now()
	if len(s.questions) > 0 {
		if secs := int(now.Sub(s.enteredAt) / time.Second); secs > 0 {
			s.ledger.AddTime(s.questions[s.cursor].ID, secs)
		}
	}
	s.enteredAt = now
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		AttemptID:        s.id,
		UserID:           s.userID,
		RemainingSeconds: s.remaining,
		Cursor:           s.cursor,
		Answers:          s.ledger.Snapshot(),
		TakenAt:          s.opts.Now(),
	}
}
