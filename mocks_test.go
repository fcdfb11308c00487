package buildtrack_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/buildtrack/buildtrack"
)

// testClock is a manually advanced clock shared by a test scenario.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeEmployees is an in-memory account store. The embedded interface covers
// the generic repository methods the lifecycle never touches; calling one of
// those in a test panics loudly.
type fakeEmployees struct {
	buildtrack.Employees

	mu          sync.Mutex
	byID        map[uuid.UUID]*buildtrack.Employee
	assignments map[uuid.UUID][]uuid.UUID
	sites       *fakeSites

	failRecordLogin bool

	// runs before ClearEmailOTP takes the store lock, so a test can slip a
	// concurrent mutation between a service's read and its guarded clear
	beforeClearEmailOTP func()
}

func newFakeEmployees(sites *fakeSites) *fakeEmployees {
	return &fakeEmployees{
		byID:        map[uuid.UUID]*buildtrack.Employee{},
		assignments: map[uuid.UUID][]uuid.UUID{},
		sites:       sites,
	}
}

func (f *fakeEmployees) add(emp *buildtrack.Employee) *buildtrack.Employee {
	f.mu.Lock()
	defer f.mu.Unlock()
	if emp.ID == uuid.Nil {
		emp.ID = uuid.New()
	}
	clone := *emp
	f.byID[emp.ID] = &clone
	return emp
}

func (f *fakeEmployees) get(id uuid.UUID) *buildtrack.Employee {
	f.mu.Lock()
	defer f.mu.Unlock()
	if emp, ok := f.byID[id]; ok {
		clone := *emp
		return &clone
	}
	return nil
}

func (f *fakeEmployees) GetByEmail(_ context.Context, email string) (*buildtrack.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, emp := range f.byID {
		if emp.Email == email {
			clone := *emp
			return &clone, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeEmployees) GetWithSites(_ context.Context, id uuid.UUID) (*buildtrack.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	emp, ok := f.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	clone := *emp
	for _, siteID := range f.assignments[id] {
		if site := f.sites.find(siteID); site != nil {
			clone.AssignedSites = append(clone.AssignedSites, site)
		}
	}
	return &clone, nil
}

func (f *fakeEmployees) Register(_ context.Context, emp *buildtrack.Employee) (*buildtrack.Employee, error) {
	return f.add(emp), nil
}

func (f *fakeEmployees) DeleteByID(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeEmployees) StoreEmailOTP(_ context.Context, id uuid.UUID, otp string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if emp, ok := f.byID[id]; ok {
		emp.EmailVerificationOTP = otp
		emp.OTPExpiry = &expiry
	}
	return nil
}

func (f *fakeEmployees) ClearEmailOTP(_ context.Context, id uuid.UUID, otp string, markVerified bool) error {
	if f.beforeClearEmailOTP != nil {
		f.beforeClearEmailOTP()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	emp, ok := f.byID[id]
	if !ok || emp.EmailVerificationOTP != otp {
		if markVerified {
			return buildtrack.ErrInvalidOTP
		}
		return nil
	}
	emp.EmailVerificationOTP = ""
	emp.OTPExpiry = nil
	if markVerified {
		emp.IsEmailVerified = true
	}
	return nil
}

func (f *fakeEmployees) StoreRecoveryOTP(_ context.Context, id uuid.UUID, otp string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if emp, ok := f.byID[id]; ok {
		emp.ForgotPasswordOTP = otp
		emp.ForgotPasswordOTPExpiry = &expiry
	}
	return nil
}

func (f *fakeEmployees) ClearRecoveryOTP(_ context.Context, id uuid.UUID, otp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	emp, ok := f.byID[id]
	if !ok || emp.ForgotPasswordOTP != otp {
		return nil
	}
	emp.ForgotPasswordOTP = ""
	emp.ForgotPasswordOTPExpiry = nil
	return nil
}

func (f *fakeEmployees) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if emp, ok := f.byID[id]; ok {
		emp.PasswordHash = hash
	}
	return nil
}

func (f *fakeEmployees) ResetPasswordWithOTP(_ context.Context, id uuid.UUID, otp, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	emp, ok := f.byID[id]
	if !ok || emp.ForgotPasswordOTP != otp {
		return buildtrack.ErrInvalidOTP
	}
	emp.PasswordHash = hash
	emp.ForgotPasswordOTP = ""
	emp.ForgotPasswordOTPExpiry = nil
	return nil
}

func (f *fakeEmployees) RecordFailedLogin(_ context.Context, id uuid.UUID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRecordLogin {
		return context.DeadlineExceeded
	}
	if emp, ok := f.byID[id]; ok {
		emp.ApplyFailedLogin(now)
	}
	return nil
}

func (f *fakeEmployees) PendingUsers(_ context.Context) ([]*buildtrack.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*buildtrack.Employee
	for _, emp := range f.byID {
		if emp.Role == buildtrack.RoleUser && emp.IsEmailVerified && !emp.IsAdminVerified {
			clone := *emp
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeEmployees) AdminVerifyTx(_ context.Context, _ bun.IDB, targetID, adminID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	emp, ok := f.byID[targetID]
	if !ok {
		return repository.NewRecordNotFound()
	}
	emp.IsAdminVerified = true
	emp.AdminVerifiedBy = &adminID
	emp.AdminVerifiedAt = &at
	return nil
}

func (f *fakeEmployees) ReplaceAssignedSitesTx(_ context.Context, _ bun.IDB, employeeID uuid.UUID, siteIDs []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments[employeeID] = append([]uuid.UUID{}, siteIDs...)
	return nil
}

// fakeSites is an in-memory site store.
type fakeSites struct {
	mu    sync.Mutex
	sites []*buildtrack.Site
}

func newFakeSites(names ...string) *fakeSites {
	f := &fakeSites{}
	for _, name := range names {
		f.sites = append(f.sites, &buildtrack.Site{
			ID:       uuid.New(),
			SiteName: name,
			SiteCode: "SC-" + name,
		})
	}
	return f
}

func (f *fakeSites) find(id uuid.UUID) *buildtrack.Site {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sites {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (f *fakeSites) All(_ context.Context) ([]*buildtrack.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*buildtrack.Site{}, f.sites...), nil
}

func (f *fakeSites) GetByID(_ context.Context, id uuid.UUID) (*buildtrack.Site, error) {
	if s := f.find(id); s != nil {
		return s, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeSites) CountByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	return f.CountByIDsTx(ctx, nil, ids)
}

func (f *fakeSites) CountByIDsTx(_ context.Context, _ bun.IDB, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if f.find(id) != nil {
			count++
		}
	}
	return count, nil
}

func (f *fakeSites) Create(_ context.Context, site *buildtrack.Site) (*buildtrack.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if site.ID == uuid.Nil {
		site.ID = uuid.New()
	}
	f.sites = append(f.sites, site)
	return site, nil
}

// fakeChatMessages is an in-memory chat archive mirroring the store's window
// semantics: newest N selected, returned oldest first.
type fakeChatMessages struct {
	mu       sync.Mutex
	messages []*buildtrack.ChatMessage
}

func (f *fakeChatMessages) Save(_ context.Context, msg *buildtrack.ChatMessage) (*buildtrack.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeChatMessages) RecentBySite(_ context.Context, siteID string, limit int) ([]*buildtrack.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matching []*buildtrack.ChatMessage
	for _, m := range f.messages {
		if m.SiteID == siteID {
			matching = append(matching, m)
		}
	}
	if len(matching) > limit {
		matching = matching[len(matching)-limit:]
	}
	return matching, nil
}

func (f *fakeChatMessages) DeleteBySite(_ context.Context, siteID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*buildtrack.ChatMessage
	var deleted int64
	for _, m := range f.messages {
		if m.SiteID == siteID {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	f.messages = kept
	return deleted, nil
}

// fakeRepo bundles the fakes behind the RepositoryManager seam.
type fakeRepo struct {
	employees *fakeEmployees
	sites     *fakeSites
	chat      *fakeChatMessages
}

func newFakeRepo(siteNames ...string) *fakeRepo {
	sites := newFakeSites(siteNames...)
	return &fakeRepo{
		employees: newFakeEmployees(sites),
		sites:     sites,
		chat:      &fakeChatMessages{},
	}
}

func (f *fakeRepo) Validate() error { return nil }
func (f *fakeRepo) MustValidate()   {}

func (f *fakeRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, fn func(context.Context, bun.Tx) error) error {
	return fn(ctx, bun.Tx{})
}

func (f *fakeRepo) Employees() buildtrack.Employees       { return f.employees }
func (f *fakeRepo) Sites() buildtrack.Sites               { return f.sites }
func (f *fakeRepo) ChatMessages() buildtrack.ChatMessages { return f.chat }

// fakeMailer records deliveries and can be told to fail a channel.
type fakeMailer struct {
	mu sync.Mutex

	failVerification bool
	failReset        bool

	verificationOTPs map[string]string
	resetOTPs        map[string]string
	welcomes         []string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{
		verificationOTPs: map[string]string{},
		resetOTPs:        map[string]string{},
	}
}

func (m *fakeMailer) SendVerificationOTP(_ context.Context, to, _, otp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failVerification {
		return context.DeadlineExceeded
	}
	m.verificationOTPs[to] = otp
	return nil
}

func (m *fakeMailer) SendWelcome(_ context.Context, to, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, to)
	return nil
}

func (m *fakeMailer) SendPasswordResetOTP(_ context.Context, to, _, otp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReset {
		return context.DeadlineExceeded
	}
	m.resetOTPs[to] = otp
	return nil
}

func (m *fakeMailer) lastVerificationOTP(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verificationOTPs[to]
}

func (m *fakeMailer) lastResetOTP(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetOTPs[to]
}
