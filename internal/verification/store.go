// Package verification stores short-lived phone verification codes.
package verification

import (
	"context"
	"errors"
	"time"
)

var ErrCodeMismatch = errors.New("verification_code_mismatch")

// Store keeps one pending code per phone number until it expires or is consumed.
type Store interface {
	// Put overwrites any pending code for the phone.
	Put(ctx context.Context, phone, code string, ttl time.Duration) error
	// Take consumes the pending code when it matches, returning
	// ErrCodeMismatch for wrong, expired or absent codes.
	Take(ctx context.Context, phone, code string) error
	Delete(ctx context.Context, phone string) error
}
