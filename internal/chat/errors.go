package chat

import (
	"errors"

	"github.com/omochice/presence-chat/pkg/protocol"
)

var (
	ErrUsernameTaken     = errors.New("username already taken")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrEmptyMessage      = errors.New("message content is empty")
	ErrMessageTooLong    = errors.New("message too long")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnknownOperation  = errors.New("unknown operation")
)

// errorStatus maps each handler error to the status code sent back. The
// response message is the error text.
var errorStatus = map[error]protocol.StatusCode{
	ErrUsernameTaken:     protocol.StatusBadRequest,
	ErrInvalidUsername:   protocol.StatusBadRequest,
	ErrAlreadyRegistered: protocol.StatusBadRequest,
	ErrNotRegistered:     protocol.StatusBadRequest,
	ErrUserNotFound:      protocol.StatusBadRequest,
	ErrInvalidStatus:     protocol.StatusBadRequest,
	ErrRecipientNotFound: protocol.StatusNotFound,
	ErrEmptyMessage:      protocol.StatusBadRequest,
	ErrMessageTooLong:    protocol.StatusBadRequest,
	ErrRateLimited:       protocol.StatusBadRequest,
	ErrUnknownOperation:  protocol.StatusBadRequest,
}

// errorResponse converts a handler error into a response for op. Errors not
// in the table are reported as bad requests with their own text.
func errorResponse(op protocol.Operation, err error) *protocol.Response {
	for target, code := range errorStatus {
		if errors.Is(err, target) {
			return &protocol.Response{Operation: op, StatusCode: code, Message: target.Error()}
		}
	}
	return &protocol.Response{Operation: op, StatusCode: protocol.StatusBadRequest, Message: err.Error()}
}
