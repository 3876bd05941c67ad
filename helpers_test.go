package authflow

import (
	"context"
	"sync"
	"testing"
	"time"
)

// testClock is a mutable time source shared by a test and its controller.
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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mockIDP is a scripted identity provider. SignIn fires session-change
// notifications synchronously on a separate goroutine, mirroring a provider
// whose callbacks race the caller.
type mockIDP struct {
	mu          sync.Mutex
	signInErr   error
	accounts    map[string]string // identifier -> account id
	session     *Session
	subscribers []func(*Session)
	signInCalls int
	signOutErr  error

	magicSessions map[string]*Session

	pending sync.WaitGroup
}

func newMockIDP() *mockIDP {
	return &mockIDP{
		accounts:      map[string]string{"user@site.com": "acct-1"},
		magicSessions: map[string]*Session{},
	}
}

func (m *mockIDP) SignIn(ctx context.Context, identifier, secret string) (*Session, error) {
	m.mu.Lock()
	m.signInCalls++
	if m.signInErr != nil {
		err := m.signInErr
		m.mu.Unlock()
		return nil, err
	}
	id, ok := m.accounts[identifier]
	if !ok || secret == "" {
		m.mu.Unlock()
		return nil, ErrInvalidCredentials
	}
	sess := &Session{AccountID: id, Identifier: identifier, Token: "tok-" + id}
	m.session = sess
	fns := append([]func(*Session){}, m.subscribers...)
	m.mu.Unlock()

	m.notify(fns, sess)
	return sess, nil
}

func (m *mockIDP) SignOut(ctx context.Context) error {
	m.mu.Lock()
	err := m.signOutErr
	m.session = nil
	fns := append([]func(*Session){}, m.subscribers...)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify(fns, nil)
	return nil
}

func (m *mockIDP) OnSessionChange(fn func(*Session)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
	return func() {}
}

func (m *mockIDP) GetSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

func (m *mockIDP) ExchangeMagicLink(ctx context.Context, link string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.magicSessions[link]
	if ok {
		delete(m.magicSessions, link)
		m.session = sess
	}
	fns := append([]func(*Session){}, m.subscribers...)
	m.mu.Unlock()

	if !ok {
		return nil, ErrCodeInvalid
	}
	m.notify(fns, sess)
	return sess, nil
}

func (m *mockIDP) notify(fns []func(*Session), sess *Session) {
	for _, fn := range fns {
		m.pending.Add(1)
		fn := fn
		go func() {
			defer m.pending.Done()
			fn(sess)
		}()
	}
}

func (m *mockIDP) Flush() {
	m.pending.Wait()
}

// mockOTP is a scripted OTP service with call counters.
type mockOTP struct {
	mu sync.Mutex

	clock *testClock
	ttl   time.Duration

	requestErr error
	verifyErr  error
	verifyRes  VerifyResult
	resetErr   error

	requestCalls int
	verifyCalls  int
	resetCalls   int

	lastRequest struct {
		identifier string
		purpose    Purpose
		accountID  string
	}
	lastVerify struct {
		identifier string
		code       string
		purpose    Purpose
	}
	lastReset struct {
		identifier  string
		code        string
		newPassword string
	}
}

func newMockOTP(clock *testClock) *mockOTP {
	return &mockOTP{
		clock:     clock,
		ttl:       DefaultCodeTTL,
		verifyRes: VerifyResult{Valid: true},
	}
}

func (m *mockOTP) RequestCode(ctx context.Context, identifier string, purpose Purpose, accountID string) (IssueResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCalls++
	m.lastRequest.identifier = identifier
	m.lastRequest.purpose = purpose
	m.lastRequest.accountID = accountID
	if m.requestErr != nil {
		return IssueResult{}, m.requestErr
	}
	return IssueResult{ExpiresAt: m.clock.Now().Add(m.ttl)}, nil
}

func (m *mockOTP) VerifyCode(ctx context.Context, identifier, code string, purpose Purpose) (VerifyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	m.lastVerify.identifier = identifier
	m.lastVerify.code = code
	m.lastVerify.purpose = purpose
	if m.verifyErr != nil {
		return VerifyResult{}, m.verifyErr
	}
	return m.verifyRes, nil
}

func (m *mockOTP) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalls++
	m.lastReset.identifier = identifier
	m.lastReset.code = code
	m.lastReset.newPassword = newPassword
	return m.resetErr
}

// mockStatus reports a fixed status per account id.
type mockStatus struct {
	mu       sync.Mutex
	statuses map[string]AccountStatus
	err      error
}

func newMockStatus() *mockStatus {
	return &mockStatus{statuses: map[string]AccountStatus{}}
}

func (m *mockStatus) GetStatus(ctx context.Context, accountID string) (AccountStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return AccountStatus{}, m.err
	}
	st, ok := m.statuses[accountID]
	if !ok {
		return AccountStatus{VerificationStatus: VerificationActive}, nil
	}
	return st, nil
}

type testRig struct {
	controller *Controller
	idp        *mockIDP
	otp        *mockOTP
	status     *mockStatus
	clock      *testClock

	mu            sync.Mutex
	authenticated []*Session
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{
		idp:    newMockIDP(),
		status: newMockStatus(),
		clock:  newTestClock(),
	}
	rig.otp = newMockOTP(rig.clock)

	c, err := New().
		WithIdentityProvider(rig.idp).
		WithOTPService(rig.otp).
		WithStatusStore(rig.status).
		WithClock(rig.clock.Now).
		WithMetricsEnabled(true).
		WithAuthenticatedFunc(func(sess *Session) {
			rig.mu.Lock()
			rig.authenticated = append(rig.authenticated, sess)
			rig.mu.Unlock()
		}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)

	rig.controller = c
	return rig
}

func (r *testRig) authenticatedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.authenticated)
}
