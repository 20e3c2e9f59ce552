package protocol

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// chatFile mirrors proto/chat.proto. Keep both in sync.
var chatFile = mustBuildFile(&descriptorpb.FileDescriptorProto{
	Name:    proto.String("chat.proto"),
	Package: proto.String("chat"),
	Syntax:  proto.String("proto3"),
	EnumType: []*descriptorpb.EnumDescriptorProto{
		enumType("Operation",
			"OPERATION_UNSPECIFIED", 0,
			"REGISTER_USER", 1,
			"UPDATE_STATUS", 2,
			"GET_USERS", 3,
			"SEND_MESSAGE", 4,
			"INCOMING_MESSAGE", 5,
		),
		enumType("StatusCode",
			"STATUS_CODE_UNSPECIFIED", 0,
			"OK", 200,
			"BAD_REQUEST", 400,
			"NOT_FOUND", 404,
		),
		enumType("UserStatus",
			"USER_STATUS_UNSPECIFIED", 0,
			"ONLINE", 1,
			"BUSY", 2,
			"OFFLINE", 3,
		),
		enumType("MessageType",
			"MESSAGE_TYPE_UNSPECIFIED", 0,
			"BROADCAST", 1,
			"DIRECT", 2,
		),
	},
	MessageType: []*descriptorpb.DescriptorProto{
		{Name: proto.String("NewUserRequest"), Field: []*descriptorpb.FieldDescriptorProto{
			stringField("username", 1),
		}},
		{Name: proto.String("UpdateStatusRequest"), Field: []*descriptorpb.FieldDescriptorProto{
			stringField("username", 1),
			enumField("new_status", 2, "UserStatus"),
		}},
		{Name: proto.String("UserListRequest"), Field: []*descriptorpb.FieldDescriptorProto{
			stringField("username", 1),
		}},
		{Name: proto.String("SendMessageRequest"), Field: []*descriptorpb.FieldDescriptorProto{
			stringField("recipient", 1),
			stringField("content", 2),
		}},
		{
			Name: proto.String("Request"),
			Field: []*descriptorpb.FieldDescriptorProto{
				enumField("operation", 1, "Operation"),
				oneofField(messageField("register_user", 2, "NewUserRequest"), 0),
				oneofField(messageField("update_status", 3, "UpdateStatusRequest"), 0),
				oneofField(messageField("get_users", 4, "UserListRequest"), 0),
				oneofField(messageField("send_message", 5, "SendMessageRequest"), 0),
			},
			OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("payload")}},
		},
		{Name: proto.String("User"), Field: []*descriptorpb.FieldDescriptorProto{
			stringField("username", 1),
			stringField("ip_address", 2),
			enumField("status", 3, "UserStatus"),
		}},
		{Name: proto.String("UserListResponse"), Field: []*descriptorpb.FieldDescriptorProto{
			repeated(messageField("users", 1, "User")),
		}},
		{Name: proto.String("IncomingMessageResponse"), Field: []*descriptorpb.FieldDescriptorProto{
			stringField("sender", 1),
			stringField("content", 2),
			enumField("type", 3, "MessageType"),
		}},
		{
			Name: proto.String("Response"),
			Field: []*descriptorpb.FieldDescriptorProto{
				enumField("operation", 1, "Operation"),
				enumField("status_code", 2, "StatusCode"),
				stringField("message", 3),
				oneofField(messageField("user_list", 4, "UserListResponse"), 0),
				oneofField(messageField("incoming_message", 5, "IncomingMessageResponse"), 0),
			},
			OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("result")}},
		},
	},
})

var (
	requestDesc  = chatFile.Messages().ByName("Request")
	responseDesc = chatFile.Messages().ByName("Response")
)

func mustBuildFile(fd *descriptorpb.FileDescriptorProto) protoreflect.FileDescriptor {
	file, err := protodesc.NewFile(fd, nil)
	if err != nil {
		panic("protocol: invalid chat schema: " + err.Error())
	}
	return file
}

// enumType builds an enum from alternating value names and numbers.
func enumType(name string, values ...any) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i := 0; i+1 < len(values); i += 2 {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(values[i].(string)),
			Number: proto.Int32(int32(values[i+1].(int))),
		})
	}
	return e
}

func field(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func stringField(name string, num int32) *descriptorpb.FieldDescriptorProto {
	return field(name, num, descriptorpb.FieldDescriptorProto_TYPE_STRING)
}

func enumField(name string, num int32, enum string) *descriptorpb.FieldDescriptorProto {
	f := field(name, num, descriptorpb.FieldDescriptorProto_TYPE_ENUM)
	f.TypeName = proto.String(".chat." + enum)
	return f
}

func messageField(name string, num int32, msg string) *descriptorpb.FieldDescriptorProto {
	f := field(name, num, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String(".chat." + msg)
	return f
}

func oneofField(f *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(index)
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}
