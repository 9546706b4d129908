// Package cashewerr defines the fixed set of error kinds callers branch on
// across session, gossip, router and onion processing (see spec error
// taxonomy). Packages wrap one of these sentinels with fmt.Errorf("%w", ...)
// so callers can use errors.Is instead of inventing per-package error types.
package cashewerr

import "errors"

var (
	// ErrDecode: malformed wire data that failed to parse.
	ErrDecode = errors.New("cashew: decode error")
	// ErrAuth: a signature, MAC or AEAD tag failed to verify.
	ErrAuth = errors.New("cashew: authentication failed")
	// ErrPolicy: the message was well-formed but violates a policy check
	// (hop limit exceeded, message too old, replay detected).
	ErrPolicy = errors.New("cashew: policy violation")
	// ErrResource: a bounded resource (connection slot, queue, cache) is full.
	ErrResource = errors.New("cashew: resource exhausted")
	// ErrTransport: the underlying network transport failed.
	ErrTransport = errors.New("cashew: transport error")
	// ErrIntegrity: internal state invariant violated (should never happen
	// in a correct build; callers should log loudly rather than retry).
	ErrIntegrity = errors.New("cashew: integrity violation")
	// ErrNotFound: a lookup by id found nothing.
	ErrNotFound = errors.New("cashew: not found")
)
