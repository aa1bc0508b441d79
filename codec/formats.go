package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

// JSONCodec is the telemetry backend's native format.
type JSONCodec struct{}

func (c *JSONCodec) Name() string        { return JSON }
func (c *JSONCodec) ContentType() string { return "application/json" }

func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Unmarshal(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

// YAMLCodec is used for human-readable dumps.
type YAMLCodec struct{}

func (c *YAMLCodec) Name() string        { return YAML }
func (c *YAMLCodec) ContentType() string { return "application/yaml" }

func (c *YAMLCodec) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (c *YAMLCodec) Unmarshal(b []byte, v any) error {
	return yaml.Unmarshal(b, v)
}

// ProtoCodec encodes values as a google.protobuf.Value. Values that are not
// proto messages are mapped through their JSON form, so they must be JSON
// marshalable.
type ProtoCodec struct{}

func (c *ProtoCodec) Name() string        { return Proto }
func (c *ProtoCodec) ContentType() string { return "application/x-protobuf" }

func (c *ProtoCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("proto codec: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("proto codec: %w", err)
	}
	pv, err := structpb.NewValue(generic)
	if err != nil {
		return nil, fmt.Errorf("proto codec: %w", err)
	}
	return proto.Marshal(pv)
}

func (c *ProtoCodec) Unmarshal(b []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(b, m)
	}

	pv := &structpb.Value{}
	if err := proto.Unmarshal(b, pv); err != nil {
		return fmt.Errorf("proto codec: %w", err)
	}
	raw, err := protojson.Marshal(pv)
	if err != nil {
		return fmt.Errorf("proto codec: %w", err)
	}
	return json.Unmarshal(raw, v)
}
