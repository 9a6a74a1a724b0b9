// Package gnserr defines the error taxonomy shared by the naming and
// transport packages: wire-format failures, authentication failures,
// resource exhaustion, invalid configuration, timeouts, not-found results,
// and internal invariant violations.
//
// Callers that only log-and-drop (the wire-level path) can ignore the
// taxonomy entirely; callers that need to decide between "abort startup"
// and "silently drop" use errors.Is against the sentinel Kind values.
package gnserr

import "fmt"

// Kind classifies an error for propagation-policy decisions.
type Kind int

const (
	// KindWireFormat covers malformed or oversized wire data.
	KindWireFormat Kind = iota
	// KindAuthenticationFailure covers GCM tag or signature verification failures.
	KindAuthenticationFailure
	// KindResourceExhaustion covers MAX_SECRETS/MAX_BLOCK_SIZE/ack-credit limits.
	KindResourceExhaustion
	// KindConfigurationInvalid covers bad bind specs, missing files, bad options.
	KindConfigurationInvalid
	// KindTimeout covers peer or lookup timeouts.
	KindTimeout
	// KindNotFound covers namestore/DHT misses.
	KindNotFound
	// KindInternal covers invariant violations that should never happen.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindWireFormat:
		return "wire-format"
	case KindAuthenticationFailure:
		return "authentication-failure"
	case KindResourceExhaustion:
		return "resource-exhaustion"
	case KindConfigurationInvalid:
		return "configuration-invalid"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not-found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying a Kind alongside the usual wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a typed Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind, so call sites can write
// `errors.Is(err, gnserr.KindTimeout)`-style checks via a Kind sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel returns a comparable marker error for a Kind, usable with
// errors.Is(err, gnserr.Sentinel(gnserr.KindTimeout)).
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}
