// Package protocol defines the chat envelopes and their wire representation.
//
// Envelopes are protobuf messages described by proto/chat.proto and carried
// in length-prefixed frames (see frame.go).
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("protocol: malformed envelope")

var errMultiplePayloads = errors.New("protocol: envelope carries more than one payload")

// marshal writes fields in field-number order, oneof members last.
var marshal = proto.MarshalOptions{Deterministic: true}

// Encode encodes the request into protobuf wire bytes.
func (r *Request) Encode() ([]byte, error) {
	payloads := 0
	for _, set := range []bool{r.RegisterUser != nil, r.UpdateStatus != nil, r.GetUsers != nil, r.SendMessage != nil} {
		if set {
			payloads++
		}
	}
	if payloads > 1 {
		return nil, fmt.Errorf("failed to encode request: %w", errMultiplePayloads)
	}

	data, err := marshal.Marshal(r.toProto())
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return data, nil
}

// Decode decodes protobuf wire bytes into the request, replacing its contents.
func (r *Request) Decode(data []byte) error {
	m := dynamicpb.NewMessage(requestDesc)
	if err := proto.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to decode request: %w: %v", ErrMalformed, err)
	}
	r.fromProto(m)
	return nil
}

func (r *Request) toProto() *dynamicpb.Message {
	m := dynamicpb.NewMessage(requestDesc)
	setEnum(m, "operation", int32(r.Operation))

	switch {
	case r.RegisterUser != nil:
		p := newMessageField(m, "register_user")
		setString(p, "username", r.RegisterUser.Username)
		setMessage(m, "register_user", p)
	case r.UpdateStatus != nil:
		p := newMessageField(m, "update_status")
		setString(p, "username", r.UpdateStatus.Username)
		setEnum(p, "new_status", int32(r.UpdateStatus.NewStatus))
		setMessage(m, "update_status", p)
	case r.GetUsers != nil:
		p := newMessageField(m, "get_users")
		setString(p, "username", r.GetUsers.Username)
		setMessage(m, "get_users", p)
	case r.SendMessage != nil:
		p := newMessageField(m, "send_message")
		setString(p, "recipient", r.SendMessage.Recipient)
		setString(p, "content", r.SendMessage.Content)
		setMessage(m, "send_message", p)
	}
	return m
}

func (r *Request) fromProto(m protoreflect.Message) {
	*r = Request{Operation: Operation(getEnum(m, "operation"))}

	which := m.WhichOneof(requestDesc.Oneofs().ByName("payload"))
	if which == nil {
		return
	}
	p := m.Get(which).Message()
	switch which.Name() {
	case "register_user":
		r.RegisterUser = &NewUserRequest{Username: getString(p, "username")}
	case "update_status":
		r.UpdateStatus = &UpdateStatusRequest{
			Username:  getString(p, "username"),
			NewStatus: UserStatus(getEnum(p, "new_status")),
		}
	case "get_users":
		r.GetUsers = &UserListRequest{Username: getString(p, "username")}
	case "send_message":
		r.SendMessage = &SendMessageRequest{
			Recipient: getString(p, "recipient"),
			Content:   getString(p, "content"),
		}
	}
}

// Encode encodes the response into protobuf wire bytes.
func (r *Response) Encode() ([]byte, error) {
	if r.UserList != nil && r.Incoming != nil {
		return nil, fmt.Errorf("failed to encode response: %w", errMultiplePayloads)
	}

	data, err := marshal.Marshal(r.toProto())
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return data, nil
}

// Decode decodes protobuf wire bytes into the response, replacing its contents.
func (r *Response) Decode(data []byte) error {
	m := dynamicpb.NewMessage(responseDesc)
	if err := proto.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to decode response: %w: %v", ErrMalformed, err)
	}
	r.fromProto(m)
	return nil
}

func (r *Response) toProto() *dynamicpb.Message {
	m := dynamicpb.NewMessage(responseDesc)
	setEnum(m, "operation", int32(r.Operation))
	setEnum(m, "status_code", int32(r.StatusCode))
	setString(m, "message", r.Message)

	switch {
	case r.UserList != nil:
		p := newMessageField(m, "user_list")
		users := p.Mutable(fieldOf(p, "users")).List()
		for _, u := range r.UserList.Users {
			um := users.NewElement().Message()
			setString(um, "username", u.Username)
			setString(um, "ip_address", u.IPAddress)
			setEnum(um, "status", int32(u.Status))
			users.Append(protoreflect.ValueOfMessage(um))
		}
		setMessage(m, "user_list", p)
	case r.Incoming != nil:
		p := newMessageField(m, "incoming_message")
		setString(p, "sender", r.Incoming.Sender)
		setString(p, "content", r.Incoming.Content)
		setEnum(p, "type", int32(r.Incoming.Type))
		setMessage(m, "incoming_message", p)
	}
	return m
}

func (r *Response) fromProto(m protoreflect.Message) {
	*r = Response{
		Operation:  Operation(getEnum(m, "operation")),
		StatusCode: StatusCode(getEnum(m, "status_code")),
		Message:    getString(m, "message"),
	}

	which := m.WhichOneof(responseDesc.Oneofs().ByName("result"))
	if which == nil {
		return
	}
	p := m.Get(which).Message()
	switch which.Name() {
	case "user_list":
		list := &UserList{}
		users := p.Get(fieldOf(p, "users")).List()
		for i := 0; i < users.Len(); i++ {
			um := users.Get(i).Message()
			list.Users = append(list.Users, User{
				Username:  getString(um, "username"),
				IPAddress: getString(um, "ip_address"),
				Status:    UserStatus(getEnum(um, "status")),
			})
		}
		r.UserList = list
	case "incoming_message":
		r.Incoming = &IncomingMessage{
			Sender:  getString(p, "sender"),
			Content: getString(p, "content"),
			Type:    MessageType(getEnum(p, "type")),
		}
	}
}

// DecodeRequest decodes a single request envelope.
func DecodeRequest(data []byte) (*Request, error) {
	req := &Request{}
	if err := req.Decode(data); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeResponse decodes a single response envelope.
func DecodeResponse(data []byte) (*Response, error) {
	resp := &Response{}
	if err := resp.Decode(data); err != nil {
		return nil, err
	}
	return resp, nil
}

func fieldOf(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil {
		panic(fmt.Sprintf("protocol: %s has no field %s", m.Descriptor().FullName(), name))
	}
	return fd
}

// Zero scalars are left unset, matching proto3 implicit presence.

func setString(m protoreflect.Message, name protoreflect.Name, v string) {
	if v != "" {
		m.Set(fieldOf(m, name), protoreflect.ValueOfString(v))
	}
}

func setEnum(m protoreflect.Message, name protoreflect.Name, v int32) {
	if v != 0 {
		m.Set(fieldOf(m, name), protoreflect.ValueOfEnum(protoreflect.EnumNumber(v)))
	}
}

// newMessageField returns an empty message of the type of field name.
func newMessageField(m protoreflect.Message, name protoreflect.Name) protoreflect.Message {
	return m.NewField(fieldOf(m, name)).Message()
}

// setMessage always sets the field, so an empty payload still selects its
// oneof member on the wire.
func setMessage(m protoreflect.Message, name protoreflect.Name, v protoreflect.Message) {
	m.Set(fieldOf(m, name), protoreflect.ValueOfMessage(v))
}

func getString(m protoreflect.Message, name protoreflect.Name) string {
	return m.Get(fieldOf(m, name)).String()
}

func getEnum(m protoreflect.Message, name protoreflect.Name) int32 {
	return int32(m.Get(fieldOf(m, name)).Enum())
}
