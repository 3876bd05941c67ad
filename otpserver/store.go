package otpserver

import (
	"context"
	"errors"
	"time"

	"github.com/northpay/authflow"
)

var (
	// ErrChallengeNotFound is an exported constant or variable used by the otp service.
	ErrChallengeNotFound = errors.New("code challenge not found")
	// ErrChallengeExpired is an exported constant or variable used by the otp service.
	ErrChallengeExpired = errors.New("code challenge expired")
	// ErrChallengeExceeded is an exported constant or variable used by the otp service.
	ErrChallengeExceeded = errors.New("code challenge attempts exceeded")
	// ErrChallengeBackend is an exported constant or variable used by the otp service.
	ErrChallengeBackend = errors.New("code challenge backend unavailable")
)

// Record is one stored code challenge. The plaintext code is never persisted.
type Record struct {
	AccountID string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// Store persists code challenges keyed by (identifier, purpose). Save
// overwrites any existing record for the pair: issuance supersedes the prior
// code for that pair only.
type Store interface {
	Save(ctx context.Context, identifier string, purpose authflow.Purpose, record *Record, ttl time.Duration) error
	Get(ctx context.Context, identifier string, purpose authflow.Purpose) (*Record, error)
	// Delete consumes the record; the bool reports whether it existed, which
	// distinguishes a consume from a replay.
	Delete(ctx context.Context, identifier string, purpose authflow.Purpose) (bool, error)
	// RecordFailure increments the attempt counter and consumes the record
	// once maxAttempts is reached, reporting exceeded=true.
	RecordFailure(ctx context.Context, identifier string, purpose authflow.Purpose, maxAttempts int) (bool, error)
}
