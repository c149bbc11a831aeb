// Package apperror maps the proxy's error taxonomy to HTTP status codes and
// human-readable {name, description} pairs for the error page.
package apperror

import "net/http"

// Kind identifies a category of failure the server can surface to a client.
type Kind int

const (
	// KindInvalidHash: the capability's HMAC did not match.
	KindInvalidHash Kind = iota
	// KindHex: the hash query parameter was not valid hex.
	KindHex
	// KindBadRequest: the request was malformed (missing url, unparseable target, ...).
	KindBadRequest
	// KindIPRangeDenied: the resolved target address is outside the permitted range.
	KindIPRangeDenied
	// KindResolveHostname: the target hostname could not be resolved.
	KindResolveHostname
	// KindUpstreamRequest: the outbound request to the origin failed.
	KindUpstreamRequest
	// KindUnexpectedStatus: the origin responded with a status code other than 200 that is not a 3xx redirect.
	KindUnexpectedStatus
	// KindMimeParse: the origin's Content-Type header could not be parsed.
	KindMimeParse
	// KindUTF8Decode: a rewriter encountered invalid UTF-8 it could not process.
	KindUTF8Decode
	// KindURLParse: a URL (target, redirect Location, ...) could not be parsed.
	KindURLParse
	// KindRewriteFailure: the CSS or HTML rewriter failed.
	KindRewriteFailure
	// KindForbiddenContentType: the origin's Content-Type is not on the allowlist.
	KindForbiddenContentType
	// KindHMACUninitialized: the process-wide HMAC singleton was not ready.
	KindHMACUninitialized
	// KindClientUninitialized: the process-wide outbound client was not ready.
	KindClientUninitialized
)

// Error wraps a Kind with the underlying cause, if any.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	name, _ := e.Kind.page()
	if e.Cause != nil {
		return name + ": " + e.Cause.Error()
	}
	return name
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause under kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// StatusCode maps a Kind to the HTTP status code the server responds with.
func (k Kind) StatusCode() int {
	switch k {
	case KindInvalidHash:
		return http.StatusUnauthorized
	case KindHex, KindBadRequest, KindIPRangeDenied, KindResolveHostname:
		return http.StatusBadRequest
	case KindForbiddenContentType:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// page returns the human-readable {name, description} pair behind Name and
// Description.
func (k Kind) page() (name string, description string) {
	switch k {
	case KindInvalidHash:
		return "Invalid capability", "The signed URL's hash did not match; it may have been tampered with or minted by a different key."
	case KindHex:
		return "Malformed hash", "The hash query parameter was not valid hexadecimal."
	case KindBadRequest:
		return "Bad request", "The request was missing required parameters or could not be understood."
	case KindIPRangeDenied:
		return "Destination not permitted", "The target address falls outside the ranges this proxy is configured to reach."
	case KindResolveHostname:
		return "Could not resolve host", "The destination hostname did not resolve to any address."
	case KindUpstreamRequest:
		return "Upstream request failed", "The request to the origin server could not be completed."
	case KindUnexpectedStatus:
		return "Unexpected upstream status", "The origin server responded with a status code this proxy does not handle."
	case KindMimeParse:
		return "Could not parse content type", "The origin's Content-Type header was malformed."
	case KindUTF8Decode:
		return "Invalid text encoding", "The origin's response body contained invalid UTF-8 where it was required."
	case KindURLParse:
		return "Could not parse URL", "A URL involved in this request could not be parsed."
	case KindRewriteFailure:
		return "Rewrite failed", "The response body could not be sanitized."
	case KindForbiddenContentType:
		return "Forbidden content type", "The origin server's response content type is not permitted by this proxy."
	case KindHMACUninitialized, KindClientUninitialized:
		return "Server not ready", "The server has not finished initializing."
	default:
		return "Internal error", "An unexpected error occurred."
	}
}

// Name returns the short human-readable error name.
func (k Kind) Name() string { name, _ := k.page(); return name }

// Description returns the longer human-readable explanation.
func (k Kind) Description() string { _, desc := k.page(); return desc }

// LogLevel returns "error" for the high-severity (5xx) kinds and "info" for
// the low-severity (4xx) kinds, which are kept off error level to avoid
// leaking request details at high verbosity.
func (k Kind) LogLevel() string {
	if k.StatusCode() >= 500 {
		return "error"
	}
	return "info"
}
