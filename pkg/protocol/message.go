package protocol

import (
	"fmt"
	"strings"
)

// Operation identifies what a Request asks for. Responses echo it back.
type Operation int32

const (
	OperationUnspecified Operation = iota
	OperationRegisterUser
	OperationUpdateStatus
	OperationGetUsers
	OperationSendMessage
	OperationIncomingMessage
)

// String returns the string representation of Operation
func (op Operation) String() string {
	switch op {
	case OperationRegisterUser:
		return "REGISTER_USER"
	case OperationUpdateStatus:
		return "UPDATE_STATUS"
	case OperationGetUsers:
		return "GET_USERS"
	case OperationSendMessage:
		return "SEND_MESSAGE"
	case OperationIncomingMessage:
		return "INCOMING_MESSAGE"
	case OperationUnspecified:
		return "UNSPECIFIED"
	default:
		return fmt.Sprintf("OPERATION(%d)", int32(op))
	}
}

// StatusCode is the outcome of a request.
type StatusCode int32

const (
	StatusUnspecified StatusCode = 0
	StatusOK          StatusCode = 200
	StatusBadRequest  StatusCode = 400
	StatusNotFound    StatusCode = 404
)

// String returns the string representation of StatusCode
func (sc StatusCode) String() string {
	switch sc {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusUnspecified:
		return "UNSPECIFIED"
	default:
		return fmt.Sprintf("STATUS(%d)", int32(sc))
	}
}

// UserStatus is a user's presence.
type UserStatus int32

const (
	UserStatusUnspecified UserStatus = iota
	UserStatusOnline
	UserStatusBusy
	UserStatusOffline
)

// String returns the string representation of UserStatus
func (us UserStatus) String() string {
	switch us {
	case UserStatusOnline:
		return "ONLINE"
	case UserStatusBusy:
		return "BUSY"
	case UserStatusOffline:
		return "OFFLINE"
	default:
		return "UNSPECIFIED"
	}
}

// Valid reports whether us is a status a user can actually hold.
func (us UserStatus) Valid() bool {
	return us == UserStatusOnline || us == UserStatusBusy || us == UserStatusOffline
}

// ParseUserStatus parses the names produced by UserStatus.String, case-insensitively.
func ParseUserStatus(s string) (UserStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ONLINE":
		return UserStatusOnline, nil
	case "BUSY":
		return UserStatusBusy, nil
	case "OFFLINE":
		return UserStatusOffline, nil
	default:
		return UserStatusUnspecified, fmt.Errorf("unknown user status %q", s)
	}
}

// MessageType tells a recipient how an IncomingMessage was addressed.
type MessageType int32

const (
	MessageTypeUnspecified MessageType = iota
	MessageTypeBroadcast
	MessageTypeDirect
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeBroadcast:
		return "BROADCAST"
	case MessageTypeDirect:
		return "DIRECT"
	default:
		return "UNSPECIFIED"
	}
}

// NewUserRequest is the REGISTER_USER payload.
type NewUserRequest struct {
	Username string
}

// UpdateStatusRequest is the UPDATE_STATUS payload.
// An empty Username means the caller's own session.
type UpdateStatusRequest struct {
	Username  string
	NewStatus UserStatus
}

// UserListRequest is the GET_USERS payload. An empty Username lists everyone online.
type UserListRequest struct {
	Username string
}

// SendMessageRequest is the SEND_MESSAGE payload. An empty Recipient broadcasts.
type SendMessageRequest struct {
	Recipient string
	Content   string
}

// Request is a client to server envelope. At most one payload field is set,
// matching Operation.
type Request struct {
	Operation    Operation
	RegisterUser *NewUserRequest
	UpdateStatus *UpdateStatusRequest
	GetUsers     *UserListRequest
	SendMessage  *SendMessageRequest
}

// User describes one user in a GET_USERS reply. IPAddress and Status are only
// filled when a single user was requested.
type User struct {
	Username  string
	IPAddress string
	Status    UserStatus
}

// UserList is the GET_USERS result.
type UserList struct {
	Users []User
}

// IncomingMessage is pushed to recipients of a SEND_MESSAGE.
type IncomingMessage struct {
	Sender  string
	Content string
	Type    MessageType
}

// Response is a server to client envelope. Replies echo the request's
// Operation; pushes carry OperationIncomingMessage.
type Response struct {
	Operation  Operation
	StatusCode StatusCode
	Message    string
	UserList   *UserList
	Incoming   *IncomingMessage
}

// NewRegisterRequest builds a REGISTER_USER request.
func NewRegisterRequest(username string) *Request {
	return &Request{
		Operation:    OperationRegisterUser,
		RegisterUser: &NewUserRequest{Username: username},
	}
}

// NewUpdateStatusRequest builds an UPDATE_STATUS request.
func NewUpdateStatusRequest(username string, status UserStatus) *Request {
	return &Request{
		Operation:    OperationUpdateStatus,
		UpdateStatus: &UpdateStatusRequest{Username: username, NewStatus: status},
	}
}

// NewGetUsersRequest builds a GET_USERS request.
func NewGetUsersRequest(username string) *Request {
	return &Request{
		Operation: OperationGetUsers,
		GetUsers:  &UserListRequest{Username: username},
	}
}

// NewSendMessageRequest builds a SEND_MESSAGE request.
func NewSendMessageRequest(recipient, content string) *Request {
	return &Request{
		Operation:   OperationSendMessage,
		SendMessage: &SendMessageRequest{Recipient: recipient, Content: content},
	}
}

// NewIncomingMessage builds the out-of-band push delivered to a recipient.
func NewIncomingMessage(sender, content string, kind MessageType) *Response {
	return &Response{
		Operation:  OperationIncomingMessage,
		StatusCode: StatusOK,
		Incoming: &IncomingMessage{
			Sender:  sender,
			Content: content,
			Type:    kind,
		},
	}
}
