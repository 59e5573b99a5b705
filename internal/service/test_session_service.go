package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/grading"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/repository"
	"github.com/stemsi/certify-backend/internal/session"
)

// ScoreResult is returned when a session is submitted or auto-submitted.
type ScoreResult struct {
	SessionID      string                `json:"session_id"`
	AttemptID      uuid.UUID             `json:"attempt_id"`
	Score          int                   `json:"score"`
	EarnedPoints   float64               `json:"earned_points"`
	TotalPoints    float64               `json:"total_points"`
	Passed         bool                  `json:"passed"`
	Expired        bool                  `json:"expired"`
	CorrectCount   int                   `json:"correct_count"`
	TotalQuestions int                   `json:"total_questions"`
	Certificate    *GeneratedCertificate `json:"certificate,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
}

// TestSessionService runs the timed test session state machine.
// Expiry is lazy: every access compares now - start_time with the time limit.
type TestSessionService struct {
	tests       TestReader
	records     SessionRecorder
	attempts    AttemptStore
	store       session.Store
	checkpoints CheckpointPublisher
	grader      *grading.Grader
	issuer      CertificateIssuer
	log         zerolog.Logger
	now         func() time.Time
}

// NewTestSessionService creates a new TestSessionService. issuer may be nil,
// in which case passing attempts get no automatic certificate.
func NewTestSessionService(
	tests TestReader,
	records SessionRecorder,
	attempts AttemptStore,
	store session.Store,
	checkpoints CheckpointPublisher,
	grader *grading.Grader,
	issuer CertificateIssuer,
	log zerolog.Logger,
) *TestSessionService {
	return &TestSessionService{
		tests:       tests,
		records:     records,
		attempts:    attempts,
		store:       store,
		checkpoints: checkpoints,
		grader:      grader,
		issuer:      issuer,
		log:         log.With().Str("component", "test_session_service").Logger(),
		now:         time.Now,
	}
}

// ----------------------------------------------------------------
// Lifecycle
// ----------------------------------------------------------------

// Start opens a session on a published test, freezing its questions and time limit.
func (s *TestSessionService) Start(ctx context.Context, actor Actor, testID uuid.UUID) (*model.TestSession, error) {
	test, err := s.tests.GetWithQuestions(ctx, testID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load test: %w", err)
	}
	if test.Status != model.TestStatusPublished || len(test.Questions) == 0 || test.TimeLimitMinutes <= 0 {
		return nil, ErrTestUnavailable
	}

	questions := make([]model.QuestionSnapshot, len(test.Questions))
	for i, q := range test.Questions {
		questions[i] = q.Snapshot()
	}

	now := s.now()
	sess := &model.TestSession{
		ID:           uuid.NewString(),
		UserID:       actor.UserID,
		TestID:       test.ID,
		TestTitle:    test.Title,
		PassingScore: test.PassingScore,
		Questions:    questions,
		Answers:      map[string]string{},
		StartTime:    now,
		TimeLimit:    test.TimeLimitMinutes,
		Status:       model.SessionStatusActive,
		UpdatedAt:    now,
	}

	// Claim a store slot first so a full store leaves no orphaned row. The
	// durable row must exist before the session is returned.
	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.records.Save(ctx, sess); err != nil {
		_ = s.store.Delete(ctx, sess.ID)
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.log.Info().
		Str("session_id", sess.ID).
		Str("user_id", actor.UserID.String()).
		Str("test_id", testID.String()).
		Int("questions", len(questions)).
		Int("time_limit", sess.TimeLimit).
		Msg("Test session started")

	return sess, nil
}

// GetCurrent reads the session from the store without side effects.
func (s *TestSessionService) GetCurrent(ctx context.Context, actor Actor, sessionID string) (*model.TestSession, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !actor.Owns(sess.UserID) {
		return nil, ErrForbidden
	}
	return sess, nil
}

// Resume returns the session, rebuilding it from the durable record when the
// store no longer has it. A paused session still within time becomes ACTIVE.
// The returned session may already be out of time; callers check IsValid.
func (s *TestSessionService) Resume(ctx context.Context, actor Actor, sessionID string) (*model.TestSession, error) {
	sess, err := s.locate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(sess.UserID) {
		return nil, ErrForbidden
	}
	if sess.IsTerminal() {
		return nil, ErrSessionClosed
	}

	now := s.now()
	if sess.Status == model.SessionStatusPaused && sess.WithinTime(now) {
		sess.Status = model.SessionStatusActive
		return sess, s.commit(ctx, sess)
	}
	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// IsValid reports whether the session exists, is ACTIVE or PAUSED, and is within its time limit.
func (s *TestSessionService) IsValid(ctx context.Context, sessionID string) bool {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return false
	}
	return sess.IsOpen() && sess.WithinTime(s.now())
}

// ----------------------------------------------------------------
// Mutations
// ----------------------------------------------------------------

// Answer records value for questionID. The cursor does not move.
func (s *TestSessionService) Answer(ctx context.Context, actor Actor, sessionID, questionID, value string) (*model.TestSession, error) {
	sess, err := s.loadActive(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.HasQuestion(questionID) {
		return nil, ErrUnknownQuestion
	}
	sess.Answers[questionID] = value
	return sess, s.commit(ctx, sess)
}

// NextQuestion advances the cursor; at the last question it is a no-op.
func (s *TestSessionService) NextQuestion(ctx context.Context, actor Actor, sessionID string) (*model.TestSession, error) {
	sess, err := s.loadActive(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CurrentQuestionIndex >= len(sess.Questions)-1 {
		return sess, nil
	}
	sess.CurrentQuestionIndex++
	return sess, s.commit(ctx, sess)
}

// PreviousQuestion moves the cursor back; at the first question it is a no-op.
func (s *TestSessionService) PreviousQuestion(ctx context.Context, actor Actor, sessionID string) (*model.TestSession, error) {
	sess, err := s.loadActive(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CurrentQuestionIndex <= 0 {
		return sess, nil
	}
	sess.CurrentQuestionIndex--
	return sess, s.commit(ctx, sess)
}

// GoToQuestion jumps to index. Outside [0, len) it fails with ErrOutOfRange
// and leaves the cursor where it was.
func (s *TestSessionService) GoToQuestion(ctx context.Context, actor Actor, sessionID string, index int) (*model.TestSession, error) {
	sess, err := s.loadActive(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(sess.Questions) {
		return nil, ErrOutOfRange
	}
	if index == sess.CurrentQuestionIndex {
		return sess, nil
	}
	sess.CurrentQuestionIndex = index
	return sess, s.commit(ctx, sess)
}

// ToggleFlag marks or unmarks index for review.
func (s *TestSessionService) ToggleFlag(ctx context.Context, actor Actor, sessionID string, index int) (*model.TestSession, error) {
	sess, err := s.loadActive(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(sess.Questions) {
		return nil, ErrOutOfRange
	}
	sess.ToggleFlag(index)
	return sess, s.commit(ctx, sess)
}

// Pause sets an ACTIVE session to PAUSED. The clock keeps running.
func (s *TestSessionService) Pause(ctx context.Context, actor Actor, sessionID string) (*model.TestSession, error) {
	sess, err := s.loadOpen(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.SessionStatusPaused {
		return sess, nil
	}
	sess.Status = model.SessionStatusPaused
	return sess, s.commit(ctx, sess)
}

// ----------------------------------------------------------------
// Submission
// ----------------------------------------------------------------

// Submit grades the session and records the attempt. A session already past
// its time limit is finalized as EXPIRED instead of SUBMITTED.
func (s *TestSessionService) Submit(ctx context.Context, actor Actor, sessionID string) (*ScoreResult, error) {
	sess, err := s.locate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !actor.System && !actor.Owns(sess.UserID) {
		return nil, ErrForbidden
	}
	if sess.IsTerminal() {
		return nil, ErrSessionClosed
	}

	status := model.SessionStatusSubmitted
	if !sess.WithinTime(s.now()) {
		status = model.SessionStatusExpired
	}
	return s.finalize(ctx, actor, sess, status)
}

// AutoSubmitExpired finalizes a session whose time limit has passed.
func (s *TestSessionService) AutoSubmitExpired(ctx context.Context, actor Actor, sessionID string) (*ScoreResult, error) {
	sess, err := s.locate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !actor.System && !actor.Owns(sess.UserID) {
		return nil, ErrForbidden
	}
	if sess.IsTerminal() {
		return nil, ErrSessionClosed
	}
	if sess.WithinTime(s.now()) {
		return nil, ErrSessionNotExpired
	}
	return s.finalize(ctx, actor, sess, model.SessionStatusExpired)
}

// SweepExpired auto-submits every expired session left in the store and
// returns how many were finalized.
func (s *TestSessionService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	done := 0
	for _, sess := range expired {
		if ctx.Err() != nil {
			break
		}
		_, err := s.AutoSubmitExpired(ctx, SystemActor, sess.ID)
		switch {
		case err == nil:
			done++
		case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionNotExpired):
			// Finished by a request in the meantime.
		default:
			s.log.Error().Err(err).Str("session_id", sess.ID).Msg("Auto-submit failed")
		}
	}
	return done, nil
}

// finalize grades, writes the attempt exactly once and evicts the session.
func (s *TestSessionService) finalize(ctx context.Context, actor Actor, sess *model.TestSession, status model.SessionStatus) (*ScoreResult, error) {
	now := s.now()
	graded := s.grader.GradeSession(ctx, sess.Questions, sess.Answers)
	passed := float64(graded.Score) >= sess.PassingScore

	attempt := &model.TestAttempt{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		TestID:       sess.TestID,
		Score:        graded.Score,
		EarnedPoints: graded.EarnedPoints,
		TotalPoints:  graded.TotalPoints,
		Passed:       passed,
		Expired:      status == model.SessionStatusExpired,
		Answers:      sess.Answers,
		StartedAt:    sess.StartTime,
		CompletedAt:  now,
	}

	if err := s.attempts.CreateOnce(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a double-submit race; the first attempt stands.
			s.evict(ctx, sess.ID)
			return nil, ErrSessionClosed
		}
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	sess.Status = status
	sess.UpdatedAt = now
	if err := s.records.Save(ctx, sess); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to close durable session record")
	}
	s.evict(ctx, sess.ID)

	result := &ScoreResult{
		SessionID:      sess.ID,
		AttemptID:      attempt.ID,
		Score:          graded.Score,
		EarnedPoints:   graded.EarnedPoints,
		TotalPoints:    graded.TotalPoints,
		Passed:         passed,
		Expired:        attempt.Expired,
		CorrectCount:   graded.Correct,
		TotalQuestions: graded.Total,
	}

	s.log.Info().
		Str("session_id", sess.ID).
		Str("attempt_id", attempt.ID.String()).
		Str("status", string(status)).
		Int("score", graded.Score).
		Bool("passed", passed).
		Msg("Test session finalized")

	if passed && s.issuer != nil {
		cert, err := s.issuer.IssueForAttempt(ctx, attempt, actor)
		if err != nil {
			// The test result stands even when the certificate cannot be produced.
			s.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Automatic certificate issuance failed")
			result.Warnings = append(result.Warnings, "Your result was saved, but the certificate could not be generated. You can request it again later.")
		} else {
			result.Certificate = cert
		}
	}
	return result, nil
}

// ----------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------

// locate finds a session in the store, falling back to the durable record.
func (s *TestSessionService) locate(ctx context.Context, sessionID string) (*model.TestSession, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess, err = s.records.Get(ctx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session record: %w", err)
	}
	return sess, nil
}

// loadOpen returns an owned session that is open and within time.
func (s *TestSessionService) loadOpen(ctx context.Context, actor Actor, sessionID string) (*model.TestSession, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !actor.Owns(sess.UserID) {
		return nil, ErrForbidden
	}
	if sess.IsTerminal() {
		return nil, ErrSessionClosed
	}
	if !sess.WithinTime(s.now()) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// loadActive is loadOpen that also rejects PAUSED sessions.
func (s *TestSessionService) loadActive(ctx context.Context, actor Actor, sessionID string) (*model.TestSession, error) {
	sess, err := s.loadOpen(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionStatusActive {
		return nil, ErrSessionNotActive
	}
	return sess, nil
}

// put writes sess to the store.
func (s *TestSessionService) put(ctx context.Context, sess *model.TestSession) error {
	err := s.store.Set(ctx, sess)
	if errors.Is(err, session.ErrFull) {
		return ErrSessionCapacity
	}
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// commit stores the mutated session and queues a checkpoint.
func (s *TestSessionService) commit(ctx context.Context, sess *model.TestSession) error {
	sess.UpdatedAt = s.now()
	if err := s.put(ctx, sess); err != nil {
		return err
	}
	if err := s.checkpoints.Publish(ctx, sess.Checkpoint()); err != nil {
		// The store still has the change; only resumability after a store loss is at risk.
		s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("Failed to queue session checkpoint")
	}
	return nil
}

func (s *TestSessionService) evict(ctx context.Context, sessionID string) {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to evict session")
	}
}
