// Package exchange implements the signed-REST exchange client contract
// from spec.md §4.1 and §6: two venues with analogous shapes but distinct
// HMAC canonical-string and header conventions ("variant A" and
// "variant B").
package exchange

import "net/http"

// SignInput carries everything a venue signer needs to compute a
// signature and the headers that carry it.
type SignInput struct {
	Method    string
	Path      string
	Query     string // raw query string, without leading '?'
	Body      string // JSON body, empty for GET/DELETE with no body
	Timestamp int64  // server-synced epoch millis, from Clock
	APIKey    string
	APISecret string
	RecvWindowMs int
}

// Signer computes venue-specific authentication headers for one request.
// Implementations must be pure functions of SignInput: no network I/O, no
// shared mutable state, so the exchange client can re-sign freely on
// retry after a clock resync.
type Signer interface {
	// Name identifies the variant, used in logs and error messages.
	Name() string
	// Headers returns the headers to attach to the outgoing request.
	Headers(in SignInput) http.Header
}
