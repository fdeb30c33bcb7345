// twine uses flags and a single config file for configuration.
// A config file is stored in .txtpb format and contains the values that can be set via flags.

package config

import (
	"encoding/base64"
	"flag"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// skippedProtobufFlags is the list of command line flags on which the protobuf check is disabled.
var skippedProtobufFlags = []string{"print_version", "config_file"}

// durationToString reads a google.protobuf.Duration message field by field.
// Decoded messages are dynamic, so they can't be asserted to *durationpb.Duration.
func durationToString(m protoreflect.Message) string {
	fields := m.Descriptor().Fields()
	seconds := m.Get(fields.ByName("seconds")).Int()
	nanos := m.Get(fields.ByName("nanos")).Int()
	return (time.Duration(seconds)*time.Second + time.Duration(nanos)).String()
}

// protobufValueToString converts a protobuf field value to its string representation suitable for flag setting.
func protobufValueToString(fd protoreflect.FieldDescriptor, v protoreflect.Value) (string, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return strconv.FormatBool(v.Bool()), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.FormatInt(v.Int(), 10), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return strconv.FormatUint(v.Uint(), 10), nil
	case protoreflect.FloatKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), nil
	case protoreflect.DoubleKind:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case protoreflect.StringKind:
		return v.String(), nil
	case protoreflect.BytesKind:
		return base64.StdEncoding.EncodeToString(v.Bytes()), nil
	case protoreflect.EnumKind:
		// Use enum name for readability.
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name()), nil
		}
		return strconv.FormatInt(int64(v.Enum()), 10), nil
	case protoreflect.MessageKind:
		if fullName := fd.Message().FullName(); fullName != "google.protobuf.Duration" {
			return "", fmt.Errorf("unsupported message leaf: %s", fullName)
		}
		return durationToString(v.Message()), nil
	default:
		return "", fmt.Errorf("unsupported kind: %v", fd.Kind())
	}
}

// parseConfig decodes a .txtpb config into a Config message.
func parseConfig(configBytes []byte) (protoreflect.Message, error) {
	md, err := configDescriptor()
	if err != nil {
		return nil, err
	}
	conf := dynamicpb.NewMessage(md)
	if err := prototext.Unmarshal(configBytes, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return conf, nil
}

// collectFlags collects the flag values set in the given Config message. Each field name is a flag name.
func collectFlags(m protoreflect.Message) (map[ /*flagName*/ string] /*flagValue*/ string, error) {
	flags := make(map[ /*flagName*/ string] /*flagValue*/ string)
	var err error
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		// Lists/maps are not supported by design.
		if fd.IsList() || fd.IsMap() {
			err = fmt.Errorf("repeated/map not supported: %s", fd.FullName())
			return false
		}
		stringValue, convErr := protobufValueToString(fd, v)
		if convErr != nil {
			err = fmt.Errorf("failed to convert %s: %w", fd.FullName(), convErr)
			return false
		}
		flags[string(fd.Name())] = stringValue
		return true
	})
	return flags, err
}

// setConfigFlags sets all the filled fields in the given `conf` to the global flag variables.
func setConfigFlags(conf protoreflect.Message) error {
	configuredFlags, err := collectFlags(conf)
	if err != nil {
		return fmt.Errorf("failed to collect flags: %w", err)
	}
	for flagName, flagValue := range configuredFlags {
		if setErr := flag.Set(flagName, flagValue); setErr != nil {
			return fmt.Errorf("failed to set flag %s: %w", flagName, setErr)
		}
	}
	return nil
}

// getDefinedFlags returns the set of flags defined in the Config schema.
func getDefinedFlags(md protoreflect.MessageDescriptor) map[ /*flagName*/ string]struct{} {
	flagSet := make(map[ /*flagName*/ string]struct{})
	for fieldIdx := 0; fieldIdx < md.Fields().Len(); fieldIdx++ {
		flagSet[string(md.Fields().Get(fieldIdx).Name())] = struct{}{}
	}
	return flagSet
}

// CollectUnregisteredFlags collects all flags that haven't been registered in the protobuf config, and all config
// fields that no flag is defined for. An error exists in the results corresponding to each mismatch.
func CollectUnregisteredFlags() []error {
	md, err := configDescriptor()
	if err != nil {
		return []error{err}
	}
	definedFlags := getDefinedFlags(md)
	errs := make([]error, 0)
	flag.VisitAll(func(f *flag.Flag) {
		if strings.HasPrefix(f.Name, "test.") { // Skip test flags.
			return
		}
		if slices.Contains(skippedProtobufFlags, f.Name) {
			return
		}
		if _, flagHasConfigEntry := definedFlags[f.Name]; !flagHasConfigEntry {
			errs = append(errs, fmt.Errorf("flag '%s' has not been defined in protobuf config", f.Name))
		}
	})
	for flagName := range definedFlags {
		if flag.Lookup(flagName) == nil {
			errs = append(errs, fmt.Errorf("config field '%s' has no command line flag", flagName))
		}
	}
	return errs
}
