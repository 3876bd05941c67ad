package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"github.com/northpay/authflow"
	"github.com/northpay/authflow/internal"
	"github.com/northpay/authflow/password"
)

const magicLinkTTL = 5 * time.Minute

// ErrAccountExists is an exported constant or variable used by the identity provider.
var ErrAccountExists = errors.New("account already exists")

// ErrAccountNotFound is an exported constant or variable used by the identity provider.
var ErrAccountNotFound = errors.New("account not found")

// account fields other than id and identifier are guarded by Provider.mu;
// id and identifier never change after Register.
type account struct {
	id             string
	identifier     string
	passwordHash   string
	emailConfirmed bool
	blocked        bool
	blockedReason  string
	verification   string
}

// Config defines a public type used by the identity APIs.
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Config struct {
	Token    TokenConfig
	Password password.Config
}

// Provider is an in-process identity backend. It implements
// [authflow.IdentityProvider] and [authflow.AccountStatusStore], plus the otp
// service's magic link minting and password update hooks.
//
// Session change notifications fire on their own goroutine per event, so
// subscribers observe them unordered relative to the call that caused them.
// Flush blocks until all notifications dispatched so far have been delivered.
type Provider struct {
	hasher *password.Hasher
	tokens *tokenManager
	links  *ttlcache.Cache[string, string]
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.Mutex
	byIdent     map[string]*account
	byID        map[string]*account
	session     *authflow.Session
	subscribers map[uint64]func(*authflow.Session)
	nextSubID   uint64

	pending sync.WaitGroup
}

// NewProvider describes the new provider operation and its observable behavior.
func NewProvider(cfg Config) (*Provider, error) {
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	tokens, err := newTokenManager(cfg.Token)
	if err != nil {
		return nil, err
	}

	links := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](magicLinkTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go links.Start()

	return &Provider{
		hasher:      hasher,
		tokens:      tokens,
		links:       links,
		logger:      zerolog.Nop(),
		now:         time.Now,
		byIdent:     make(map[string]*account),
		byID:        make(map[string]*account),
		subscribers: make(map[uint64]func(*authflow.Session)),
	}, nil
}

// WithLogger describes the with logger operation and its observable behavior.
func (p *Provider) WithLogger(logger zerolog.Logger) *Provider {
	p.logger = logger
	return p
}

// WithClock overrides the time source, intended for tests.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	if now != nil {
		p.now = now
	}
	return p
}

// Close stops the magic link expiration loop.
func (p *Provider) Close() {
	p.links.Stop()
}

// Register creates an account and returns its id. The account starts with a
// confirmed email and active verification status; use SetEmailConfirmed,
// SetBlocked and SetDeleted to stage other states.
func (p *Provider) Register(ctx context.Context, identifier, plaintext string) (string, error) {
	hash, err := p.hasher.Hash(plaintext)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byIdent[identifier]; ok {
		return "", ErrAccountExists
	}
	acct := &account{
		id:             uuid.NewString(),
		identifier:     identifier,
		passwordHash:   hash,
		emailConfirmed: true,
		verification:   authflow.VerificationActive,
	}
	p.byIdent[identifier] = acct
	p.byID[acct.id] = acct
	return acct.id, nil
}

// SetEmailConfirmed describes the set email confirmed operation and its observable behavior.
func (p *Provider) SetEmailConfirmed(identifier string, confirmed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.byIdent[identifier]
	if !ok {
		return ErrAccountNotFound
	}
	acct.emailConfirmed = confirmed
	return nil
}

// SetBlocked describes the set blocked operation and its observable behavior.
func (p *Provider) SetBlocked(identifier string, blocked bool, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.byIdent[identifier]
	if !ok {
		return ErrAccountNotFound
	}
	acct.blocked = blocked
	acct.blockedReason = reason
	return nil
}

// SetDeleted describes the set deleted operation and its observable behavior.
func (p *Provider) SetDeleted(identifier string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.byIdent[identifier]
	if !ok {
		return ErrAccountNotFound
	}
	acct.verification = authflow.VerificationDeleted
	return nil
}

// SignIn verifies the credential pair and, on success, establishes the
// current session as a side effect before returning it. Subscribers are
// notified asynchronously.
func (p *Provider) SignIn(ctx context.Context, identifier, secret string) (*authflow.Session, error) {
	p.mu.Lock()
	acct, ok := p.byIdent[identifier]
	var hash string
	var confirmed bool
	if ok {
		hash = acct.passwordHash
		confirmed = acct.emailConfirmed
	}
	p.mu.Unlock()
	if !ok {
		return nil, authflow.ErrInvalidCredentials
	}

	// The argon2 verify runs on the snapshot so the lock is not held across
	// the hash computation.
	valid, err := p.hasher.Verify(secret, hash)
	if err != nil || !valid {
		return nil, authflow.ErrInvalidCredentials
	}
	if !confirmed {
		return nil, authflow.ErrEmailUnconfirmed
	}

	if upgrade, err := p.hasher.NeedsUpgrade(hash); err == nil && upgrade {
		if rehashed, err := p.hasher.Hash(secret); err == nil {
			p.mu.Lock()
			// Skip the upgrade if a password change landed in the meantime.
			if acct.passwordHash == hash {
				acct.passwordHash = rehashed
			}
			p.mu.Unlock()
		}
	}

	return p.establishSession(acct)
}

// SignOut clears the current session. Subscribers receive a nil session.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.session = nil
	fns := p.subscriberFns()
	p.mu.Unlock()

	p.dispatch(fns, nil)
	return nil
}

// OnSessionChange registers fn for session change notifications. The returned
// function unsubscribes; it is safe to call more than once.
func (p *Provider) OnSessionChange(fn func(*authflow.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
		})
	}
}

// GetSession describes the get session operation and its observable behavior.
func (p *Provider) GetSession(ctx context.Context) (*authflow.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, nil
	}
	clone := *p.session
	return &clone, nil
}

// ExchangeMagicLink redeems a one-time link minted by MintMagicLink and
// establishes a session for the identifier it was bound to.
func (p *Provider) ExchangeMagicLink(ctx context.Context, link string) (*authflow.Session, error) {
	item := p.links.Get(link)
	if item == nil {
		return nil, authflow.ErrCodeInvalid
	}
	p.links.Delete(link)
	identifier := item.Value()

	p.mu.Lock()
	acct, ok := p.byIdent[identifier]
	var confirmed bool
	if ok {
		confirmed = acct.emailConfirmed
	}
	p.mu.Unlock()
	if !ok {
		return nil, authflow.ErrInvalidCredentials
	}
	if !confirmed {
		return nil, authflow.ErrEmailUnconfirmed
	}
	return p.establishSession(acct)
}

// MintMagicLink issues a one-time link bound to identifier. The otp service
// calls this after a passwordless code verification succeeds.
func (p *Provider) MintMagicLink(ctx context.Context, identifier string) (string, error) {
	p.mu.Lock()
	_, ok := p.byIdent[identifier]
	p.mu.Unlock()
	if !ok {
		return "", ErrAccountNotFound
	}

	link, err := internal.NewLinkToken()
	if err != nil {
		return "", err
	}
	p.links.Set(link, identifier, magicLinkTTL)
	return link, nil
}

// UpdatePassword rehashes and stores a new password for identifier.
func (p *Provider) UpdatePassword(ctx context.Context, identifier, newPassword string) error {
	hash, err := p.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.byIdent[identifier]
	if !ok {
		return ErrAccountNotFound
	}
	acct.passwordHash = hash
	return nil
}

// GetStatus describes the get status operation and its observable behavior.
func (p *Provider) GetStatus(ctx context.Context, accountID string) (authflow.AccountStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.byID[accountID]
	if !ok {
		return authflow.AccountStatus{}, ErrAccountNotFound
	}
	return authflow.AccountStatus{
		Blocked:            acct.blocked,
		BlockedReason:      acct.blockedReason,
		VerificationStatus: acct.verification,
	}, nil
}

// Flush blocks until every notification dispatched so far has been delivered.
// Intended for tests that need an ordering point.
func (p *Provider) Flush() {
	p.pending.Wait()
}

func (p *Provider) establishSession(acct *account) (*authflow.Session, error) {
	token, expiresAt, err := p.tokens.create(acct.id, acct.identifier, p.now())
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}

	session := &authflow.Session{
		AccountID:  acct.id,
		Identifier: acct.identifier,
		Token:      token,
		ExpiresAt:  expiresAt,
	}

	p.mu.Lock()
	p.session = session
	fns := p.subscriberFns()
	p.mu.Unlock()

	p.dispatch(fns, session)

	clone := *session
	return &clone, nil
}

func (p *Provider) subscriberFns() []func(*authflow.Session) {
	fns := make([]func(*authflow.Session), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	return fns
}

func (p *Provider) dispatch(fns []func(*authflow.Session), session *authflow.Session) {
	for _, fn := range fns {
		var clone *authflow.Session
		if session != nil {
			c := *session
			clone = &c
		}
		p.pending.Add(1)
		fn := fn
		go func() {
			defer p.pending.Done()
			fn(clone)
		}()
	}
}
