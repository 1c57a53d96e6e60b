// Package nntperr defines the typed error kinds shared across newsd's
// subsystems and their mapping to NNTP response codes.
package nntperr

import "fmt"

// Kind identifies which taxonomy a typed error belongs to.
type Kind int

const (
	KindUnknown Kind = iota

	// Storage
	KindArticleNotFound
	KindGroupNotFound
	KindDatabase

	// Validation
	KindMissingHeader
	KindSizeExceeded
	KindModerationRequired
	KindInvalidHeader
	KindFilterRejected

	// Auth
	KindAuthRequired
	KindInvalidCredentials
	KindUserNotFound
	KindAccountDisabled

	// Limit
	KindPostingDisabled
	KindBandwidthExceeded
	KindConnectionLimitExceeded

	// Config
	KindConfigInvalid
	KindConfigMissingField
	KindConfigFileNotFound

	KindIO
	KindProtocol
)

// Error is a typed failure carrying a Kind and an optional wrapped cause.
// Client-visible text stays generic; Error() carries the detail that gets
// logged, never returned on the wire.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a typed error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a typed error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts a *Error from err, if any.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	if ok {
		return e, true
	}
	type wrapper interface{ Unwrap() error }
	if w, ok := err.(wrapper); ok {
		return As(w.Unwrap())
	}
	return nil, false
}

// ResponseSite distinguishes the command site a validation error is
// being mapped from, since GroupNotFound maps to 411 in GROUP but 412
// elsewhere (spec.md §7).
type ResponseSite int

const (
	SiteDefault ResponseSite = iota
	SiteGroup
)

// Code maps a Kind to the NNTP response code spec.md §7 assigns it.
func Code(kind Kind, site ResponseSite) int {
	switch kind {
	case KindArticleNotFound:
		return 430
	case KindGroupNotFound:
		if site == SiteGroup {
			return 411
		}
		return 412
	case KindMissingHeader, KindSizeExceeded, KindModerationRequired,
		KindInvalidHeader, KindFilterRejected:
		return 441
	case KindAuthRequired:
		return 480
	case KindInvalidCredentials, KindUserNotFound, KindAccountDisabled:
		return 481
	case KindPostingDisabled:
		return 440
	case KindBandwidthExceeded:
		return 403
	case KindConnectionLimitExceeded:
		return 481
	case KindConfigInvalid, KindConfigMissingField, KindConfigFileNotFound, KindIO:
		return 403
	case KindProtocol:
		return 500
	default:
		return 500
	}
}

// CodeOf maps any error to a response code, defaulting to 500 for
// untyped errors (a Database or unexpected failure).
func CodeOf(err error, site ResponseSite) int {
	if err == nil {
		return 240
	}
	if e, ok := As(err); ok {
		return Code(e.Kind, site)
	}
	return 500
}
