// Package credential resolves which API key funds a model call and which
// identity a request is attributed to. The caller-funded / service-funded
// distinction decided here drives quota gating downstream.
package credential

import "strings"

// Key is a resolved API key.
type Key struct {
	// Value is the key to send upstream.
	Value string
	// CallerFunded is true when the caller supplied the key. Caller-funded
	// requests bypass the quota gate entirely and never consume allowance.
	CallerFunded bool
}

// Resolver picks an API key for a request.
type Resolver struct {
	defaultKey string
}

// NewResolver creates a resolver with the operator's default key (may be
// empty when the service runs in caller-keys-only mode).
func NewResolver(defaultKey string) *Resolver {
	return &Resolver{defaultKey: defaultKey}
}

// Resolve applies the key policy: a non-blank caller key wins and marks the
// call caller-funded; otherwise the service default key is used; otherwise
// no key is available and ok is false.
func (r *Resolver) Resolve(callerKey string) (Key, bool) {
	if trimmed := strings.TrimSpace(callerKey); trimmed != "" {
		return Key{Value: trimmed, CallerFunded: true}, true
	}
	if r.defaultKey != "" {
		return Key{Value: r.defaultKey}, true
	}
	return Key{}, false
}
