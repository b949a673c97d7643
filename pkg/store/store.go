// Package store holds the session history implementations. The
// signaling core works against the signaling.History contract; both
// backends here are drop-in.
package store

import "errors"

// ErrUnavailable marks a failed read against the durable backend.
// Safe to retry; live signaling never depends on it.
var ErrUnavailable = errors.New("history store unavailable")
