package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/certify-backend/internal/mail"
	"github.com/stemsi/certify-backend/internal/model"
	"github.com/stemsi/certify-backend/internal/render"
	"github.com/stemsi/certify-backend/internal/repository"
	"github.com/stemsi/certify-backend/internal/storage"
)

// In-memory stand-ins for the Postgres repositories. They report missing
// rows as pgx.ErrNoRows and unique violations with the repository sentinels.

type clock struct{ t time.Time }

func newClock() *clock                   { return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)} }
func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeTests struct{ byID map[uuid.UUID]*model.Test }

func (f *fakeTests) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	cp.Questions = nil
	return &cp, nil
}

func (f *fakeTests) GetWithQuestions(_ context.Context, id uuid.UUID) (*model.Test, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	cp.Questions = append([]model.Question(nil), t.Questions...)
	return &cp, nil
}

type fakeRecords struct {
	mu   sync.Mutex
	rows map[string]*model.TestSession
}

func newFakeRecords() *fakeRecords { return &fakeRecords{rows: map[string]*model.TestSession{}} }

func (f *fakeRecords) Save(_ context.Context, s *model.TestSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rows[s.ID]; ok && cur.IsTerminal() {
		return nil
	}
	f.rows[s.ID] = s.Clone()
	return nil
}

func (f *fakeRecords) Get(_ context.Context, id string) (*model.TestSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s.Clone(), nil
}

type fakeAttempts struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*model.TestAttempt
	bySession map[string]uuid.UUID
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{byID: map[uuid.UUID]*model.TestAttempt{}, bySession: map[string]uuid.UUID{}}
}

func (f *fakeAttempts) CreateOnce(_ context.Context, a *model.TestAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bySession[a.SessionID]; ok {
		return repository.ErrDuplicate
	}
	a.ID = uuid.New()
	cp := *a
	f.byID[a.ID] = &cp
	f.bySession[a.SessionID] = a.ID
	return nil
}

func (f *fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.TestAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttempts) put(a model.TestAttempt) *model.TestAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.byID[a.ID] = &a
	f.bySession[a.SessionID] = a.ID
	cp := a
	return &cp
}

func (f *fakeAttempts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type fakeAudit struct {
	mu   sync.Mutex
	rows []model.CertificateAuditLog
}

func (f *fakeAudit) Append(_ context.Context, e *model.CertificateAuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *e)
	return nil
}

func (f *fakeAudit) List(_ context.Context, filter model.AuditLogFilter) ([]model.CertificateAuditLog, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CertificateAuditLog
	for _, r := range f.rows {
		if filter.CertificateID != nil && r.CertificateID != *filter.CertificateID {
			continue
		}
		if filter.Action != nil && r.Action != *filter.Action {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeAudit) actions(certID uuid.UUID, action model.AuditAction) []model.CertificateAuditLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CertificateAuditLog
	for _, r := range f.rows {
		if r.CertificateID == certID && r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeAudit) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeCerts struct {
	mu    sync.Mutex
	audit *fakeAudit
	rows  map[uuid.UUID]*model.Certificate
	// createErrs are returned, in order, by the next CreateWithAudit calls.
	createErrs []error
}

func newFakeCerts(audit *fakeAudit) *fakeCerts {
	return &fakeCerts{audit: audit, rows: map[uuid.UUID]*model.Certificate{}}
}

func (f *fakeCerts) CreateWithAudit(ctx context.Context, c *model.Certificate, entry *model.CertificateAuditLog) error {
	f.mu.Lock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		f.mu.Unlock()
		return err
	}
	for _, r := range f.rows {
		if r.TestAttemptID == c.TestAttemptID {
			f.mu.Unlock()
			return repository.ErrDuplicate
		}
		if r.VerificationCode == c.VerificationCode {
			f.mu.Unlock()
			return repository.ErrDuplicateCode
		}
	}
	c.IsValid = true
	c.CreatedAt = c.IssueDate
	cp := *c
	f.rows[c.ID] = &cp
	f.mu.Unlock()

	entry.CertificateID = c.ID
	return f.audit.Append(ctx, entry)
}

func (f *fakeCerts) GetByID(_ context.Context, id uuid.UUID) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCerts) GetByCode(_ context.Context, code string) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.VerificationCode == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeCerts) ExistsForAttempt(_ context.Context, attemptID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.TestAttemptID == attemptID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCerts) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Certificate{}
	for _, c := range f.rows {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueDate.After(out[j].IssueDate) })
	return out, nil
}

func (f *fakeCerts) RevokeWithAudit(ctx context.Context, id uuid.UUID, entry *model.CertificateAuditLog) error {
	f.mu.Lock()
	c, ok := f.rows[id]
	if !ok || !c.IsValid {
		f.mu.Unlock()
		return repository.ErrNotUpdated
	}
	c.IsValid = false
	f.mu.Unlock()

	entry.CertificateID = id
	return f.audit.Append(ctx, entry)
}

func (f *fakeCerts) IncrementViewCount(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	c.ViewCount++
	return c.ViewCount, nil
}

func (f *fakeCerts) IncrementDownloadCount(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	c.DownloadCount++
	return c.DownloadCount, nil
}

func (f *fakeCerts) MarkEmailed(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.EmailSent = true
	c.EmailSentAt = &at
	return nil
}

func (f *fakeCerts) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeUsers struct{ byID map[uuid.UUID]*model.User }

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type fakePublisher struct {
	mu  sync.Mutex
	got []model.SessionCheckpoint
	err error
}

func (f *fakePublisher) Publish(_ context.Context, cp model.SessionCheckpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, cp)
	return nil
}

type fakeRenderer struct {
	err  error
	docs []render.Document
}

func (f *fakeRenderer) Render(_ context.Context, doc render.Document) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, doc)
	return []byte("%PDF-1.3 " + doc.VerificationCode), nil
}

type fakeFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeFiles() *fakeFiles { return &fakeFiles{files: map[string][]byte{}} }

func (f *fakeFiles) Save(name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := "/certs/" + name
	f.files[path] = append([]byte(nil), data...)
	return path, nil
}

func (f *fakeFiles) Read(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (f *fakeFiles) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

func (f *fakeFiles) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

type fakeMailer struct {
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type failingIssuer struct{}

func (failingIssuer) IssueForAttempt(context.Context, *model.TestAttempt, Actor) (*GeneratedCertificate, error) {
	return nil, errors.New("renderer offline")
}
