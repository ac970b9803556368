package model

import (
	"errors"
	"fmt"
)

// Kind classifies a recoverable synchronization failure.
type Kind string

const (
	KindFeedUnavailable      Kind = "feed_unavailable"
	KindPortfolioUnavailable Kind = "portfolio_unavailable"
	KindSignalsUnavailable   Kind = "signals_unavailable"
	KindToggleFailed         Kind = "toggle_failed"
	KindTradeRejected        Kind = "trade_rejected"
	KindMalformedResponse    Kind = "malformed_response"
	// KindStatusUnavailable covers a failed bot-status read outside a toggle.
	KindStatusUnavailable Kind = "status_unavailable"
)

// SyncError is the error type returned by every component. None of these are fatal;
// the owning store keeps its last good value.
type SyncError struct {
	Kind    Kind
	Op      string // operation or endpoint, e.g. "GET /api/prices"
	Message string // user-facing text; for trades this is the backend's text verbatim
	Cause   error
}

func (e *SyncError) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *SyncError) Unwrap() error { return e.Cause }

// Is matches any SyncError of the same kind, so the Err* values work with errors.Is.
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	return ok && t.Kind == e.Kind
}

// KindName exposes the kind to loggers without importing this package.
func (e *SyncError) KindName() string { return string(e.Kind) }

var (
	ErrFeedUnavailable      = &SyncError{Kind: KindFeedUnavailable}
	ErrPortfolioUnavailable = &SyncError{Kind: KindPortfolioUnavailable}
	ErrSignalsUnavailable   = &SyncError{Kind: KindSignalsUnavailable}
	ErrToggleFailed         = &SyncError{Kind: KindToggleFailed}
	ErrTradeRejected        = &SyncError{Kind: KindTradeRejected}
	ErrMalformedResponse    = &SyncError{Kind: KindMalformedResponse}
	ErrStatusUnavailable    = &SyncError{Kind: KindStatusUnavailable}
)

func NewError(kind Kind, op, message string, cause error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Malformed builds a MalformedResponse error for op.
func Malformed(op, format string, args ...any) *SyncError {
	return NewError(KindMalformedResponse, op, fmt.Sprintf(format, args...), nil)
}

// KindOf returns the kind of the outermost SyncError in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// UserMessage returns the text to show the user for err, or fallback when none is set.
func UserMessage(err error, fallback string) string {
	var se *SyncError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}
