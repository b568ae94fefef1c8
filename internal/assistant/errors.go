package assistant

import "errors"

// ErrNotFound is returned by Respond when the caller supplies a conversation
// ID that does not exist. The streaming path never returns it: a stale ID
// there starts a fresh conversation instead.
var ErrNotFound = errors.New("assistant: conversation not found")
