package config

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/durationpb"
)

// configField is a field of the Config message; its name is the command line flag it sets.
type configField struct {
	flagName string
	kind     descriptorpb.FieldDescriptorProto_Type
}

// configFields lists every flag that can be set from the config file. New flags must be added here, or else
// CollectUnregisteredFlags reports them.
var configFields = []configField{
	{flagName: "log_handler_type", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING},
	{flagName: "log_level", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING},
	{flagName: "address", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING},
	{flagName: "idle_timeout", kind: descriptorpb.FieldDescriptorProto_TYPE_MESSAGE}, // google.protobuf.Duration
	{flagName: "keyspace_shard_count", kind: descriptorpb.FieldDescriptorProto_TYPE_INT32},
	{flagName: "stack_backing", kind: descriptorpb.FieldDescriptorProto_TYPE_STRING},
	{flagName: "verify_list_invariants", kind: descriptorpb.FieldDescriptorProto_TYPE_BOOL},
}

// configDescriptor returns the descriptor of the Config message, built once from configFields.
var configDescriptor = sync.OnceValues(buildConfigDescriptor)

// buildConfigDescriptor builds the Config message schema. It is a proto2 message so that explicitly set zero values
// (e.g. `verify_list_invariants: false`) are still seen as set.
func buildConfigDescriptor() (protoreflect.MessageDescriptor, error) {
	durationFile := durationpb.File_google_protobuf_duration_proto
	fields := make([]*descriptorpb.FieldDescriptorProto, len(configFields))
	for i, field := range configFields {
		fields[i] = &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(field.flagName),
			Number: proto.Int32(int32(i + 1)),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:   field.kind.Enum(),
		}
		if field.kind == descriptorpb.FieldDescriptorProto_TYPE_MESSAGE {
			fields[i].TypeName = proto.String("." + string((&durationpb.Duration{}).ProtoReflect().Descriptor().FullName()))
		}
	}
	file := &descriptorpb.FileDescriptorProto{
		Name:        proto.String("twine/config.proto"),
		Package:     proto.String("twine"),
		Syntax:      proto.String("proto2"),
		Dependency:  []string{durationFile.Path()},
		MessageType: []*descriptorpb.DescriptorProto{{Name: proto.String("Config"), Field: fields}},
	}

	dependencies := new(protoregistry.Files)
	if err := dependencies.RegisterFile(durationFile); err != nil {
		return nil, fmt.Errorf("failed to register duration.proto: %w", err)
	}
	fileDescriptor, err := protodesc.NewFile(file, dependencies)
	if err != nil {
		return nil, fmt.Errorf("failed to build config schema: %w", err)
	}
	return fileDescriptor.Messages().ByName("Config"), nil
}
