package otpserver

import (
	"context"
	"time"

	"github.com/northpay/authflow"
)

// Sender delivers an issued code to the account's contact channel. A failed
// Send aborts the issuance; the stored challenge is rolled back so the
// identifier is not left waiting on a code that never arrives.
type Sender interface {
	Send(ctx context.Context, identifier, code string, purpose authflow.Purpose, expiresAt time.Time) error
}

// SentCode captures one delivery observed by a ChannelSender.
type SentCode struct {
	Identifier string
	Code       string
	Purpose    authflow.Purpose
	ExpiresAt  time.Time
}

// ChannelSender forwards deliveries to a channel. Intended for tests and for
// callers that bridge delivery into their own mail or SMS pipeline.
type ChannelSender struct {
	ch chan SentCode
}

// NewChannelSender describes the new channel sender operation and its observable behavior.
func NewChannelSender(buffer int) *ChannelSender {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelSender{ch: make(chan SentCode, buffer)}
}

// Codes exposes the delivery channel for consumption.
func (s *ChannelSender) Codes() <-chan SentCode {
	return s.ch
}

// Send describes the send operation and its observable behavior.
func (s *ChannelSender) Send(_ context.Context, identifier, code string, purpose authflow.Purpose, expiresAt time.Time) error {
	s.ch <- SentCode{Identifier: identifier, Code: code, Purpose: purpose, ExpiresAt: expiresAt}
	return nil
}

// NoOpSender discards deliveries.
type NoOpSender struct{}

// Send describes the send operation and its observable behavior.
func (NoOpSender) Send(context.Context, string, string, authflow.Purpose, time.Time) error {
	return nil
}
