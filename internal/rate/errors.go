package rate

import "errors"

var (
	// ErrRateLimited is an exported constant or variable used by the authentication flow.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is an exported constant or variable used by the authentication flow.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
