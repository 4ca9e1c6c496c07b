package gateway

import (
	"errors"
	"strings"
)

// ValidationError reports the request fields that failed pre-flight checks.
// It is raised before any network or SDK interaction takes place.
type ValidationError struct {
	Fields []string
}

// Error lists the offending wire field names.
func (e *ValidationError) Error() string {
	return "gateway: invalid payment request: " + strings.Join(e.Fields, ", ")
}

// ScriptLoadError wraps a failure to fetch the vendor checkout script.
// A later StartPayment call may retry the load.
type ScriptLoadError struct {
	Err error
}

func (e *ScriptLoadError) Error() string {
	return "gateway: checkout script load failed: " + e.Err.Error()
}

func (e *ScriptLoadError) Unwrap() error { return e.Err }

// SDKUnavailableError indicates the script loaded but the entry point is
// missing, or invoking it failed synchronously. Not retryable without a
// fresh process/page.
type SDKUnavailableError struct {
	Reason string
}

func (e *SDKUnavailableError) Error() string {
	return "gateway: checkout sdk unavailable: " + e.Reason
}

// GatewayError carries the processor-reported failure message verbatim.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return "gateway: payment failed: " + e.Message
}

// ErrUserCancelled marks a shopper dismissing the checkout. An expected,
// recoverable outcome rather than a defect.
var ErrUserCancelled = errors.New("gateway: payment cancelled by customer")

// ErrSessionTimeout marks a session with no terminal event inside the
// configured window. The payment may or may not have succeeded upstream, so
// callers must check order status instead of silently retrying.
var ErrSessionTimeout = errors.New("gateway: payment session timed out")

// Retryable reports whether the caller may invoke StartPayment again for the
// same order without reloading. Validation and SDK failures require the
// caller to fix input or restart; cancellations, timeouts and script-load
// failures may be retried.
func Retryable(err error) bool {
	var load *ScriptLoadError
	if errors.As(err, &load) {
		return true
	}
	return errors.Is(err, ErrUserCancelled) || errors.Is(err, ErrSessionTimeout)
}
