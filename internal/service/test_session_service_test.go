package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/certify-backend/internal/grading"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	svc       *TestSessionService
	clock     *clock
	store     *session.MemoryStore
	records   *fakeRecords
	attempts  *fakeAttempts
	publisher *fakePublisher
	test      *model.Test
	owner     Actor
}

func newSessionFixture(t *testing.T, issuer CertificateIssuer) *sessionFixture {
	t.Helper()
	c := newClock()
	test := &model.Test{
		ID:               uuid.New(),
		Title:            "Go Fundamentals",
		TimeLimitMinutes: 30,
		PassingScore:     70,
		Status:           model.TestStatusPublished,
		Questions: []model.Question{
			{ID: uuid.New(), Text: "2 + 2?", Type: model.QuestionTypeMultipleChoice, CorrectAnswer: "4", Points: 1},
			{ID: uuid.New(), Text: "Go has generics", Type: model.QuestionTypeTrueFalse, CorrectAnswer: "true", Points: 1},
			{ID: uuid.New(), Text: "Keyword for a goroutine", Type: model.QuestionTypeShortAnswer, CorrectAnswer: "go", Points: 1},
		},
	}

	f := &sessionFixture{
		clock:     c,
		store:     session.NewMemoryStore(100, time.Hour, session.WithClock(c.Now)),
		records:   newFakeRecords(),
		attempts:  newFakeAttempts(),
		publisher: &fakePublisher{},
		test:      test,
		owner:     Actor{UserID: uuid.New(), Role: model.RoleUser},
	}
	f.svc = NewTestSessionService(
		&fakeTests{byID: map[uuid.UUID]*model.Test{test.ID: test}},
		f.records, f.attempts, f.store, f.publisher,
		grading.New(nil, zerolog.Nop()), issuer, zerolog.Nop(),
	)
	f.svc.now = c.Now
	return f
}

func (f *sessionFixture) start(t *testing.T) *model.TestSession {
	t.Helper()
	sess, err := f.svc.Start(context.Background(), f.owner, f.test.ID)
	require.NoError(t, err)
	return sess
}

func (f *sessionFixture) qid(i int) string { return f.test.Questions[i].ID.String() }

func TestStartFreezesTest(t *testing.T) {
	f := newSessionFixture(t, nil)
	sess := f.start(t)

	assert.Equal(t, model.SessionStatusActive, sess.Status)
	assert.Equal(t, 30, sess.TimeLimit)
	assert.Len(t, sess.Questions, 3)
	assert.Equal(t, 0, sess.CurrentQuestionIndex)

	_, err := f.records.Get(context.Background(), sess.ID)
	require.NoError(t, err, "durable record written at start")

	// Later edits to the test do not reach the running session.
	f.test.TimeLimitMinutes = 5
	got, err := f.svc.GetCurrent(context.Background(), f.owner, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.TimeLimit)
}

func TestStartRejectsUnavailableTest(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, f.owner, uuid.New())
	assert.ErrorIs(t, err, ErrTestNotFound)

	f.test.Status = model.TestStatusDraft
	_, err = f.svc.Start(ctx, f.owner, f.test.ID)
	assert.ErrorIs(t, err, ErrTestUnavailable)
}

func TestFullStoreKeepsLiveSessions(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	f.store = session.NewMemoryStore(1, time.Hour, session.WithClock(f.clock.Now))
	f.svc.store = f.store

	a := f.start(t)
	_, err := f.svc.Answer(ctx, f.owner, a.ID, f.qid(0), "4")
	require.NoError(t, err)

	other := Actor{UserID: uuid.New(), Role: model.RoleUser}
	_, err = f.svc.Start(ctx, other, f.test.ID)
	require.ErrorIs(t, err, ErrSessionCapacity)
	assert.Len(t, f.records.rows, 1, "rejected start leaves no durable row")

	got, err := f.svc.Answer(ctx, f.owner, a.ID, f.qid(1), "true")
	require.NoError(t, err)
	assert.Equal(t, "4", got.Answers[f.qid(0)])
	assert.Equal(t, "true", got.Answers[f.qid(1)])

	// Submitting frees the slot for the next taker.
	_, err = f.svc.Submit(ctx, f.owner, a.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, other, f.test.ID)
	assert.NoError(t, err)
}

func TestSubmitScoresOneOfThree(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	_, err := f.svc.Answer(ctx, f.owner, sess.ID, f.qid(0), "4")
	require.NoError(t, err)
	_, err = f.svc.Answer(ctx, f.owner, sess.ID, f.qid(1), "false")
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 33, res.Score)
	assert.Equal(t, 1, res.CorrectCount)
	assert.Equal(t, 3, res.TotalQuestions)
	assert.False(t, res.Passed)
	assert.False(t, res.Expired)
	assert.Nil(t, res.Certificate)

	assert.Equal(t, 1, f.attempts.count())
	_, err = f.store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound, "submitted session is evicted")

	rec, err := f.records.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusSubmitted, rec.Status)
}

func TestDoubleSubmitCreatesOneAttempt(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	_, err := f.svc.Submit(ctx, f.owner, sess.ID)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.owner, sess.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 1, f.attempts.count())
}

func TestSubmitRaceLoserGetsClosed(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	// Another instance already recorded the attempt but this store still holds the session.
	f.attempts.put(model.TestAttempt{SessionID: sess.ID, UserID: f.owner.UserID, TestID: f.test.ID})

	_, err := f.svc.Submit(ctx, f.owner, sess.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 1, f.attempts.count())
	assert.Equal(t, 0, f.store.Len())
}

func TestSubmitAfterDeadlineIsExpired(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	f.clock.Advance(31 * time.Minute)
	res, err := f.svc.Submit(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.True(t, res.Expired)
	assert.Equal(t, 0, res.Score)
}

func TestAutoSubmitExpired(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	_, err := f.svc.AutoSubmitExpired(ctx, f.owner, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotExpired)

	f.clock.Advance(30 * time.Minute)
	res, err := f.svc.AutoSubmitExpired(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.True(t, res.Expired)

	_, err = f.svc.AutoSubmitExpired(ctx, f.owner, sess.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 1, f.attempts.count())
}

func TestAutoSubmitOnSubmittedSession(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	_, err := f.svc.Submit(ctx, f.owner, sess.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.AutoSubmitExpired(ctx, SystemActor, sess.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 1, f.attempts.count())
}

func TestGoToQuestionOutOfRange(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	_, err := f.svc.GoToQuestion(ctx, f.owner, sess.ID, 1)
	require.NoError(t, err)

	for _, idx := range []int{-1, 3, 99} {
		_, err := f.svc.GoToQuestion(ctx, f.owner, sess.ID, idx)
		assert.ErrorIs(t, err, ErrOutOfRange, "index %d", idx)
	}

	got, err := f.svc.GetCurrent(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentQuestionIndex)
}

func TestNextPreviousBoundaries(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	got, err := f.svc.PreviousQuestion(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentQuestionIndex)

	for i := 0; i < 5; i++ {
		got, err = f.svc.NextQuestion(ctx, f.owner, sess.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, got.CurrentQuestionIndex)

	got, err = f.svc.PreviousQuestion(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentQuestionIndex)
}

func TestAnswerKeepsCursorAndOverwrites(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	_, err := f.svc.Answer(ctx, f.owner, sess.ID, f.qid(2), "goroutine")
	require.NoError(t, err)
	got, err := f.svc.Answer(ctx, f.owner, sess.ID, f.qid(2), " GO ")
	require.NoError(t, err)

	assert.Equal(t, 0, got.CurrentQuestionIndex)
	assert.Equal(t, " GO ", got.Answers[f.qid(2)])

	_, err = f.svc.Answer(ctx, f.owner, sess.ID, uuid.NewString(), "x")
	assert.ErrorIs(t, err, ErrUnknownQuestion)

	require.NotEmpty(t, f.publisher.got)
	last := f.publisher.got[len(f.publisher.got)-1]
	assert.Equal(t, " GO ", last.Answers[f.qid(2)])
}

func TestToggleFlag(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	got, err := f.svc.ToggleFlag(ctx, f.owner, sess.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, got.FlaggedQuestions)

	got, err = f.svc.ToggleFlag(ctx, f.owner, sess.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, got.FlaggedQuestions)

	_, err = f.svc.ToggleFlag(ctx, f.owner, sess.ID, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestIsValidIgnoresPause(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	_, err := f.svc.Pause(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.True(t, f.svc.IsValid(ctx, sess.ID))

	f.clock.Advance(29 * time.Minute)
	assert.True(t, f.svc.IsValid(ctx, sess.ID))

	f.clock.Advance(time.Minute)
	assert.False(t, f.svc.IsValid(ctx, sess.ID), "pausing does not stop the clock")
	assert.False(t, f.svc.IsValid(ctx, "missing"))
}

func TestPausedSessionRejectsNavigationUntilResumed(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	_, err := f.svc.Pause(ctx, f.owner, sess.ID)
	require.NoError(t, err)

	_, err = f.svc.NextQuestion(ctx, f.owner, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotActive)
	_, err = f.svc.Answer(ctx, f.owner, sess.ID, f.qid(0), "4")
	assert.ErrorIs(t, err, ErrSessionNotActive)

	got, err := f.svc.Resume(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusActive, got.Status)

	_, err = f.svc.NextQuestion(ctx, f.owner, sess.ID)
	assert.NoError(t, err)
}

func TestMutationsAfterDeadline(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	f.clock.Advance(45 * time.Minute)
	_, err := f.svc.Answer(ctx, f.owner, sess.ID, f.qid(0), "4")
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = f.svc.Pause(ctx, f.owner, sess.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestResumeRebuildsFromRecord(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	require.NoError(t, f.store.Delete(ctx, sess.ID))

	got, err := f.svc.Resume(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Len(t, got.Questions, 3)
	assert.True(t, f.svc.IsValid(ctx, sess.ID))
}

func TestResumeSubmittedSession(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)

	_, err := f.svc.Submit(ctx, f.owner, sess.ID)
	require.NoError(t, err)

	_, err = f.svc.Resume(ctx, f.owner, sess.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestOtherUserIsForbidden(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)
	stranger := Actor{UserID: uuid.New(), Role: model.RoleUser}

	_, err := f.svc.GetCurrent(ctx, stranger, sess.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Answer(ctx, stranger, sess.ID, f.qid(0), "4")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Submit(ctx, stranger, sess.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSweepExpired(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	stale := f.start(t)
	f.clock.Advance(20 * time.Minute)
	fresh := f.start(t)

	f.clock.Advance(15 * time.Minute)
	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := f.records.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusExpired, rec.Status)
	assert.True(t, f.svc.IsValid(ctx, fresh.ID))
}

func TestCheckpointFailureDoesNotFailMutation(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx := context.Background()
	sess := f.start(t)
	f.publisher.err = assert.AnError

	got, err := f.svc.Answer(ctx, f.owner, sess.ID, f.qid(0), "4")
	require.NoError(t, err)
	assert.Equal(t, "4", got.Answers[f.qid(0)])
}

func TestPassingSubmitWarnsWhenIssuanceFails(t *testing.T) {
	f := newSessionFixture(t, failingIssuer{})
	ctx := context.Background()
	sess := f.start(t)

	for i, a := range []string{"4", "true", "go"} {
		_, err := f.svc.Answer(ctx, f.owner, sess.ID, f.qid(i), a)
		require.NoError(t, err)
	}

	res, err := f.svc.Submit(ctx, f.owner, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.True(t, res.Passed)
	assert.Nil(t, res.Certificate)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, f.attempts.count(), "result stands without a certificate")
}
