package identity

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod defines a public type used by the identity APIs.
// SigningMethod instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise.
type SigningMethod string

const (
	// MethodHS256 is an exported constant or variable used by the identity provider.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 is an exported constant or variable used by the identity provider.
	MethodEd25519 SigningMethod = "ed25519"
)

// TokenConfig defines a public type used by the identity APIs.
// TokenConfig instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	SessionTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// SessionClaims defines a public type used by the identity APIs.
// SessionClaims instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise.
type SessionClaims struct {
	Identifier string `json:"idf"`
	jwt.RegisteredClaims
}

type tokenManager struct {
	config TokenConfig
}

func newTokenManager(cfg TokenConfig) (*tokenManager, error) {
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("invalid session TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) != ed25519.PrivateKeySize {
			return nil, errors.New("invalid ed25519 private key")
		}
		if len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("invalid ed25519 public key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &tokenManager{config: cfg}, nil
}

func (m *tokenManager) create(accountID, identifier string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(m.config.SessionTTL)
	claims := SessionClaims{
		Identifier: identifier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(m.method(), claims)
	signed, err := token.SignedString(m.signKey())
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *tokenManager) parse(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.verifyKey(), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (m *tokenManager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *tokenManager) signKey() interface{} {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey
	}
	return ed25519.PrivateKey(m.config.PrivateKey)
}

func (m *tokenManager) verifyKey() interface{} {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey
	}
	return ed25519.PublicKey(m.config.PublicKey)
}
