package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepdeck/prepdeck-backend/internal/config"
	"github.com/prepdeck/prepdeck-backend/internal/engine"
	"github.com/prepdeck/prepdeck-backend/internal/model"
	"github.com/prepdeck/prepdeck-backend/internal/repository"
)

// Exam service errors, mapped to API error codes by the handler layer.
var (
	ErrNothingToResume = errors.New("no incomplete attempt to resume")
	ErrNoQuestions     = errors.New("no questions match the requested subjects")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrResultNotFound  = errors.New("result not found")
	ErrNotOwner        = errors.New("attempt belongs to another user")
)

// StartExamResponse is the payload returned when a new attempt starts.
type StartExamResponse struct {
	SessionID        uuid.UUID               `json:"session_id"`
	Questions        []model.QuestionForUser `json:"questions"`
	TimeLimitSeconds int                     `json:"time_limit_seconds"`
}

// ActiveAttemptRef points a client at its resumable attempt, if any.
type ActiveAttemptRef struct {
	None      bool       `json:"none"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	ExamType  string     `json:"exam_type,omitempty"`
}

// snapshotMeta is the Redis-cached countdown position of an attempt.
type snapshotMeta struct {
	RemainingSeconds int    `json:"remaining_seconds"`
	Cursor           int    `json:"cursor"`
	TakenAt          string `json:"taken_at"`
}

// ExamService orchestrates the session engine against durable storage. It
// implements engine.Saver and engine.Finalizer, so live sessions persist
// and finalize through the same code path as HTTP callers.
type ExamService struct {
	cfg       *config.Config
	attempts  *repository.AttemptRepository
	questions *repository.QuestionRepository
	results   *repository.ResultRepository
	registry  *engine.Registry
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	cfg *config.Config,
	attempts *repository.AttemptRepository,
	questions *repository.QuestionRepository,
	results *repository.ResultRepository,
	registry *engine.Registry,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		cfg:       cfg,
		attempts:  attempts,
		questions: questions,
		results:   results,
		registry:  registry,
		rdb:       rdb,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// ─── Attempt lifecycle ──────────────────────────────────────────────

// StartExam assembles a fresh attempt: draws questions, creates the durable
// row, then boots a live session with both recurring tasks running.
func (s *ExamService) StartExam(ctx context.Context, userID int, req *model.StartExamRequest) (*StartExamResponse, error) {
	if _, live := s.registry.ActiveForUser(userID); live {
		return nil, engine.ErrAttemptInProgress
	}

	picked, err := s.questions.PickRandom(ctx, req.Subjects, req.QuestionCount)
	if err != nil {
		return nil, fmt.Errorf("pick questions: %w", err)
	}
	if len(picked) == 0 {
		return nil, ErrNoQuestions
	}

	qids := make([]uuid.UUID, len(picked))
	sanitized := make([]model.QuestionForUser, len(picked))
	for i := range picked {
		qids[i] = picked[i].ID
		sanitized[i] = picked[i].Sanitize()
	}

	attempt := &model.Attempt{
		UserID:           userID,
		ExamType:         req.Type,
		QuestionIDs:      qids,
		TimeLimitSeconds: req.TimeLimitMinutes * 60,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	sess := s.buildSession(attempt.ID, userID, sanitized, attempt.TimeLimitSeconds)
	if err := s.registry.Put(sess); err != nil {
		return nil, err
	}
	if err := sess.Start(); err != nil {
		s.registry.Remove(attempt.ID)
		return nil, fmt.Errorf("start session: %w", err)
	}

	// Cache the active attempt pointer so clients can rediscover it cheaply.
	if err := s.rdb.Set(ctx, config.CacheKey.UserActiveAttemptKey(userID), attempt.ID.String(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache active attempt pointer")
	}

	return &StartExamResponse{
		SessionID:        attempt.ID,
		Questions:        sanitized,
		TimeLimitSeconds: attempt.TimeLimitSeconds,
	}, nil
}

// ActiveAttempt returns a reference to the user's resumable attempt, live or
// persisted. "Nothing to resume" is a normal empty result, not an error.
func (s *ExamService) ActiveAttempt(ctx context.Context, userID int) (*ActiveAttemptRef, error) {
	if sess, ok := s.registry.ActiveForUser(userID); ok {
		id := sess.ID()
		return &ActiveAttemptRef{SessionID: &id}, nil
	}

	attempt, err := s.attempts.GetActiveByUser(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &ActiveAttemptRef{None: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active attempt: %w", err)
	}
	return &ActiveAttemptRef{SessionID: &attempt.ID, ExamType: attempt.ExamType}, nil
}

// ResumeExam reconstructs an interrupted attempt. If the session is still
// live on this instance, its current state is returned unchanged, which
// makes resume idempotent. Otherwise state is rebuilt from the last
// persisted snapshot (Redis first, PostgreSQL as failover), fully replacing
// local state, and fresh countdown and autosave tasks are started anchored
// at the restored remaining time.
func (s *ExamService) ResumeExam(ctx context.Context, userID int, sessionID uuid.UUID) (*engine.State, error) {
	if sess, ok := s.registry.Get(sessionID); ok {
		if sess.UserID() != userID {
			return nil, ErrNotOwner
		}
		state := sess.State()
		return &state, nil
	}

	attempt, err := s.attempts.GetByID(ctx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNothingToResume
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, ErrNotOwner
	}
	if attempt.Status != model.AttemptStatusActive {
		return nil, ErrNothingToResume
	}

	answers, err := s.loadAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	remaining, cursor := s.loadSnapshotMeta(ctx, attempt)

	bank, err := s.questions.GetByIDs(ctx, attempt.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	sanitized := make([]model.QuestionForUser, len(bank))
	for i := range bank {
		sanitized[i] = bank[i].Sanitize()
	}

	sess := s.buildSession(attempt.ID, userID, sanitized, attempt.TimeLimitSeconds)
	if err := sess.Restore(remaining, cursor, answers); err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if err := s.registry.Put(sess); err != nil {
		return nil, err
	}
	if err := sess.Start(); err != nil {
		s.registry.Remove(attempt.ID)
		return nil, fmt.Errorf("start session: %w", err)
	}

	state := sess.State()
	return &state, nil
}

// RecordAnswer upserts a selection on the live session.
func (s *ExamService) RecordAnswer(ctx context.Context, userID int, sessionID uuid.UUID, req *model.AnswerRequest) (model.Progress, error) {
	sess, err := s.liveSession(userID, sessionID)
	if err != nil {
		return model.Progress{}, err
	}
	return sess.Answer(req.QuestionID, req.OptionID, req.Skipped)
}

// Navigate moves the live session's cursor.
func (s *ExamService) Navigate(ctx context.Context, userID int, sessionID uuid.UUID, index int) (int, error) {
	sess, err := s.liveSession(userID, sessionID)
	if err != nil {
		return 0, err
	}
	return sess.Goto(index)
}

// MergeAutosave folds client-pushed records into the live session and
// flushes a snapshot.
func (s *ExamService) MergeAutosave(ctx context.Context, userID int, req *model.AutosaveRequest) error {
	sess, err := s.liveSession(userID, req.SessionID)
	if err != nil {
		return err
	}
	return sess.MergeAutosave(ctx, req.Answers)
}

// SubmitExam finalizes an attempt exactly once and returns the result id.
// An attempt that already completed returns its original result id, so a
// client retrying a lost response never produces a second submission.
func (s *ExamService) SubmitExam(ctx context.Context, userID int, sessionID uuid.UUID) (uuid.UUID, error) {
	if sess, ok := s.registry.Get(sessionID); ok {
		if sess.UserID() != userID {
			return uuid.Nil, ErrNotOwner
		}
		return sess.Finish(ctx, engine.SubmitReasonManual)
	}

	// No live session: either the attempt already completed, or the server
	// restarted and the user submits without resuming first.
	attempt, err := s.attempts.GetByID(ctx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrAttemptNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return uuid.Nil, ErrNotOwner
	}
	if attempt.Status == model.AttemptStatusCompleted {
		resultID, err := s.results.GetByAttempt(ctx, sessionID)
		if errors.Is(err, pgx.ErrNoRows) {
			// Completed attempt without a result row: a crash between the
			// result insert and the attempt update.
			return uuid.Nil, ErrResultNotFound
		}
		if err != nil {
			return uuid.Nil, fmt.Errorf("result for attempt: %w", err)
		}
		return resultID, nil
	}

	if _, err := s.ResumeExam(ctx, userID, sessionID); err != nil {
		return uuid.Nil, err
	}
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return uuid.Nil, ErrAttemptNotFound
	}
	return sess.Finish(ctx, engine.SubmitReasonManual)
}

// GetResult loads a graded result for its owner.
func (s *ExamService) GetResult(ctx context.Context, userID int, resultID uuid.UUID) (*model.Result, error) {
	res, err := s.results.GetByID(ctx, resultID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

// History returns the user's completed attempts, paginated.
func (s *ExamService) History(ctx context.Context, userID, page, limit int) ([]model.HistoryEntry, int64, error) {
	return s.results.ListByUser(ctx, userID, page, limit)
}

// Stream returns the live session for WebSocket streaming.
func (s *ExamService) Stream(userID int, sessionID uuid.UUID) (*engine.Session, error) {
	return s.liveSession(userID, sessionID)
}

// ─── engine.Saver ───────────────────────────────────────────────────

// SaveSnapshot writes the hot copy to Redis and queues the snapshot for
// durable persistence by the snapshot worker. Called from autosave ticks
// and final flushes; must stay cheap and non-blocking for the session.
func (s *ExamService) SaveSnapshot(ctx context.Context, snap engine.Snapshot) error {
	answersKey := config.CacheKey.AttemptAnswersKey(snap.AttemptID.String())

	pipe := s.rdb.Pipeline()
	for qid, rec := range snap.Answers {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal answer: %w", err)
		}
		pipe.HSet(ctx, answersKey, qid.String(), raw)
	}
	meta, err := json.Marshal(snapshotMeta{
		RemainingSeconds: snap.RemainingSeconds,
		Cursor:           snap.Cursor,
		TakenAt:          snap.TakenAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot meta: %w", err)
	}
	pipe.Set(ctx, config.CacheKey.AttemptSnapshotKey(snap.AttemptID.String()), meta, 0)

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	pipe.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// ─── engine.Finalizer ───────────────────────────────────────────────

// Finalize grades the final snapshot, records the result and releases the
// attempt's resources. Invoked by the session engine exactly once per
// successful submission, whether the trigger was manual or timer expiry.
func (s *ExamService) Finalize(ctx context.Context, snap engine.Snapshot, totalTimeSpent int, reason engine.SubmitReason) (uuid.UUID, error) {
	attempt, err := s.attempts.GetByID(ctx, snap.AttemptID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get attempt: %w", err)
	}

	bank, err := s.questions.GetByIDs(ctx, attempt.QuestionIDs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load answer key: %w", err)
	}

	result := BuildResult(attempt, bank, snap.Answers, totalTimeSpent)
	if err := s.results.Create(ctx, result); err != nil {
		return uuid.Nil, fmt.Errorf("store result: %w", err)
	}

	// The final answer set rides along so the durable copy matches what was
	// graded even if earlier autosaves were lost.
	if err := s.attempts.UpsertAnswers(ctx, snap.AttemptID, snap.Answers); err != nil {
		s.log.Error().Err(err).Str("attempt_id", snap.AttemptID.String()).Msg("Final answer upsert failed")
	}
	if err := s.attempts.Complete(ctx, snap.AttemptID, model.AttemptStatusCompleted, snap.RemainingSeconds); err != nil {
		s.log.Error().Err(err).Str("attempt_id", snap.AttemptID.String()).Msg("Attempt completion update failed")
	}

	s.cleanupAttempt(ctx, snap.AttemptID, attempt.UserID)

	s.log.Info().
		Str("attempt_id", snap.AttemptID.String()).
		Str("reason", string(reason)).
		Float64("percentage", result.Percentage).
		Int("total_time_spent", totalTimeSpent).
		Msg("Attempt finalized")

	return result.ID, nil
}

// ForceExpire finalizes an abandoned attempt from its last persisted
// snapshot, reason TIMEOUT. Called by the reaper worker; attempts with a
// live session are left alone.
func (s *ExamService) ForceExpire(ctx context.Context, attempt *model.Attempt) error {
	if _, live := s.registry.Get(attempt.ID); live {
		return nil
	}

	answers, err := s.loadAnswers(ctx, attempt.ID)
	if err != nil {
		return err
	}
	remaining, cursor := s.loadSnapshotMeta(ctx, attempt)

	snap := engine.Snapshot{
		AttemptID:        attempt.ID,
		UserID:           attempt.UserID,
		RemainingSeconds: remaining,
		Cursor:           cursor,
		Answers:          answers,
	}
	_, err = s.Finalize(ctx, snap, attempt.TimeLimitSeconds-remaining, engine.SubmitReasonTimeout)
	return err
}

// ListAbandoned exposes the reaper's sweep query.
func (s *ExamService) ListAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]model.Attempt, error) {
	return s.attempts.ListAbandoned(ctx, cutoff, limit)
}

// Shutdown flushes and closes all live sessions.
func (s *ExamService) Shutdown(ctx context.Context) {
	s.registry.CloseAll(ctx)
}

// ─── Internal helpers ───────────────────────────────────────────────

func (s *ExamService) buildSession(id uuid.UUID, userID int, questions []model.QuestionForUser, limitSeconds int) *engine.Session {
	return engine.NewSession(id, userID, questions, limitSeconds, s, s, engine.Options{
		CountdownTick:    s.cfg.CountdownTick,
		AutosaveInterval: s.cfg.AutosaveInterval,
		AutosaveTimeout:  s.cfg.AutosaveTimeout,
	}, s.log)
}

func (s *ExamService) liveSession(userID int, sessionID uuid.UUID) (*engine.Session, error) {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if sess.UserID() != userID {
		return nil, ErrNotOwner
	}
	return sess, nil
}

// loadAnswers reads the last persisted ledger: Redis hash first, PostgreSQL
// on cache miss, with a self-heal write back to Redis.
func (s *ExamService) loadAnswers(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]model.AnswerRecord, error) {
	answersKey := config.CacheKey.AttemptAnswersKey(attemptID.String())

	cached, err := s.rdb.HGetAll(ctx, answersKey).Result()
	if err == nil && len(cached) > 0 {
		answers := make(map[uuid.UUID]model.AnswerRecord, len(cached))
		for field, raw := range cached {
			qid, err := uuid.Parse(field)
			if err != nil {
				continue
			}
			var rec model.AnswerRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				continue
			}
			answers[qid] = rec
		}
		return answers, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Redis answers read failed, falling back to PostgreSQL")
	}

	answers, err := s.attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load persisted answers: %w", err)
	}

	// Self-heal: warm the cache so the next resume is fast.
	if len(answers) > 0 {
		pipe := s.rdb.Pipeline()
		for qid, rec := range answers {
			if raw, err := json.Marshal(rec); err == nil {
				pipe.HSet(ctx, answersKey, qid.String(), raw)
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			s.log.Debug().Err(err).Msg("Answer cache self-heal failed")
		}
	}
	return answers, nil
}

// loadSnapshotMeta reads the persisted countdown position, preferring the
// Redis copy over the attempt row. The stored value is authoritative: the
// countdown does not advance while no session is live.
func (s *ExamService) loadSnapshotMeta(ctx context.Context, attempt *model.Attempt) (remaining, cursor int) {
	remaining, cursor = attempt.RemainingSeconds, attempt.Cursor

	raw, err := s.rdb.Get(ctx, config.CacheKey.AttemptSnapshotKey(attempt.ID.String())).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Redis snapshot read failed, using attempt row")
		}
		return remaining, cursor
	}

	var meta snapshotMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return remaining, cursor
	}
	return meta.RemainingSeconds, meta.Cursor
}

// cleanupAttempt drops hot-state keys once an attempt reaches a terminal
// state, and deregisters any live session.
func (s *ExamService) cleanupAttempt(ctx context.Context, attemptID uuid.UUID, userID int) {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String()))
	pipe.Del(ctx, config.CacheKey.AttemptSnapshotKey(attemptID.String()))
	pipe.Del(ctx, config.CacheKey.UserActiveAttemptKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Debug().Err(err).Msg("Attempt cache cleanup failed")
	}
	s.registry.Remove(attemptID)
}
