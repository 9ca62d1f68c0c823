package chat

import "errors"

var (
	// ErrValidation marks input rejected before any store call.
	ErrValidation = errors.New("chat: invalid input")
	// ErrPermissionDenied marks an action the caller is not allowed to perform.
	ErrPermissionDenied = errors.New("chat: permission denied")
	// ErrInvalidState marks a negotiation transition applied to a non-pending message.
	ErrInvalidState = errors.New("chat: invalid state")
	// ErrNotFound marks a missing conversation or message.
	ErrNotFound = errors.New("chat: not found")
	// ErrConversationExists is returned by stores when the (participants, listing)
	// key is already taken; callers re-read the existing thread.
	ErrConversationExists = errors.New("chat: conversation already exists")
	// ErrUploadFailed marks attachment storage failures, distinct from append failures.
	ErrUploadFailed = errors.New("chat: attachment upload failed")
	// ErrStoreUnavailable marks a backend that cannot be reached.
	ErrStoreUnavailable = errors.New("chat: store unavailable")
)
