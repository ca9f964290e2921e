// Package delivery sends notifications over external channels and mints identifiers.
package delivery

import (
	"context"
	"errors"
	"fmt"
)

// Channel is an external delivery channel
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelMessenger Channel = "messenger"
)

// Kind classifies a failed delivery.
type Kind string

const (
	// KindTransient covers network failures, 5xx and 429 responses. Retrying may succeed.
	KindTransient Kind = "TRANSIENT"
	// KindRejected covers 4xx responses caused by the request itself.
	KindRejected Kind = "REJECTED"
	// KindDisabled means the remote side reports the user opted out.
	KindDisabled Kind = "DISABLED"
)

// Sentinels matched by errors.Is against an *Error of the same kind
var (
	ErrTransient = errors.New("delivery failed transiently")
	ErrRejected  = errors.New("delivery rejected")
	ErrDisabled  = errors.New("delivery disabled by recipient")
)

// Error is the categorised failure of one delivery call.
type Error struct {
	Channel    Channel
	Kind       Kind
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery %s (status %d): %v", e.Channel, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery %s: %v", e.Channel, e.Kind, e.Err)
}

// Unwrap returns the underlying transport or sentinel error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrDisabled:
		return e.Kind == KindDisabled
	}
	return false
}

// KindOf returns the kind of a delivery error, or "" when err is not one.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Delivery is the external sender used by the dispatcher.
type Delivery interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
	SendMessenger(ctx context.Context, handle, body string) error
}

// IdentifierMinter hands out opaque identifiers for new records.
type IdentifierMinter interface {
	Mint(ctx context.Context) (string, error)
}

// Attempt is the outcome of one channel call.
type Attempt struct {
	Channel Channel
	Err     error
}

// Succeeded reports whether the attempt completed without error
func (a Attempt) Succeeded() bool {
	return a.Err == nil
}
