package protocol

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func TestSchema_FieldNumbers(t *testing.T) {
	tests := []struct {
		message protoreflect.FullName
		field   protoreflect.Name
		number  protoreflect.FieldNumber
	}{
		{"chat.Request", "operation", 1},
		{"chat.Request", "register_user", 2},
		{"chat.Request", "send_message", 5},
		{"chat.Response", "status_code", 2},
		{"chat.Response", "user_list", 4},
		{"chat.Response", "incoming_message", 5},
		{"chat.User", "ip_address", 2},
		{"chat.IncomingMessageResponse", "type", 3},
	}

	for _, tt := range tests {
		md := chatFile.Messages().ByName(tt.message.Name())
		if md == nil {
			t.Fatalf("message %s missing", tt.message)
		}
		fd := md.Fields().ByName(tt.field)
		if fd == nil {
			t.Fatalf("field %s.%s missing", tt.message, tt.field)
		}
		if fd.Number() != tt.number {
			t.Errorf("%s.%s = %d, want %d", tt.message, tt.field, fd.Number(), tt.number)
		}
	}
}

func TestEncode_OmitsZeroValues(t *testing.T) {
	data, err := (&Request{}).Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Encode(empty) = %x, want empty", data)
	}
}

func TestEncode_EmptyPayloadIsPresent(t *testing.T) {
	data, err := NewGetUsersRequest("").Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	// operation=3, then field 4 with zero length
	want := []byte{0x08, 0x03, 0x22, 0x00}
	if string(data) != string(want) {
		t.Fatalf("Encode() = %x, want %x", data, want)
	}

	req, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if req.GetUsers == nil {
		t.Error("GetUsers payload lost for empty message")
	}
}

func TestDecode_NegativeEnum(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	neg := int64(-3)
	b = protowire.AppendVarint(b, uint64(neg))

	req, err := DecodeRequest(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if req.Operation != Operation(-3) {
		t.Errorf("Operation = %d, want -3", req.Operation)
	}
}

func TestDecode_LastPayloadWins(t *testing.T) {
	var register []byte
	register = protowire.AppendTag(register, 1, protowire.BytesType)
	register = protowire.AppendString(register, "alice")

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(OperationGetUsers))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, register)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)

	req, err := DecodeRequest(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if req.RegisterUser != nil {
		t.Error("RegisterUser should be cleared by a later payload")
	}
	if req.GetUsers == nil {
		t.Error("GetUsers should be set")
	}
}
