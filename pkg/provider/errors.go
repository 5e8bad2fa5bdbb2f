package provider

import "errors"

// Failure taxonomy for provider fetches. Fetchers wrap the underlying cause
// with one of these sentinels so the coordinator can classify a failure from
// the error value itself rather than from control flow.
var (
	// ErrNotConfigured means a required credential is missing. Permanent for
	// the process lifetime; the provider contributes nothing until restart.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrAuthentication means the vendor rejected or never issued a token.
	// The provider is unavailable for the current call and retried fresh on
	// the next one.
	ErrAuthentication = errors.New("authentication failed")

	// ErrTransport is a network or HTTP-level failure reaching the vendor,
	// including per-call timeouts.
	ErrTransport = errors.New("transport failure")

	// ErrPayloadShape means the vendor responded but the payload was missing
	// expected fields.
	ErrPayloadShape = errors.New("unexpected payload shape")
)

// Kind names the taxonomy bucket of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrPayloadShape):
		return "payload_shape"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
