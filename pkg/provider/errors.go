// Package provider holds what every backend package under pkg/provider
// shares: the error values the voice pipeline interprets.
package provider

import (
	"errors"
	"net/http"
)

// ErrActivationLimit reports that a backend refused work because the account
// exhausted its quota or hit a rate limit. The pipeline treats it as fatal and
// shuts down gracefully.
var ErrActivationLimit = errors.New("provider: activation limit reached")

// IsLimitStatus reports whether an HTTP status code means the caller ran out
// of quota (402 Payment Required or 429 Too Many Requests).
func IsLimitStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusPaymentRequired
}
