package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Reason explains why the director switched viewpoints.
type Reason string

const (
	ReasonInitial Reason = "initial"
	ReasonLost    Reason = "subject_lost"
	ReasonTooFar  Reason = "too_far"
	ReasonCloser  Reason = "closer_candidate"
	ReasonRefocus Reason = "refocus"
)

// NoViewpoint marks an absent previous viewpoint.
const NoViewpoint = -1

// Change describes a committed viewpoint switch. Sequence is assigned by the
// stream on publish.
type Change struct {
	Sequence      uint64
	ViewpointID   int
	ViewpointName string
	PreviousID    int
	Reason        Reason
	At            time.Time
	Position      r3.Vector
	Yaw           float64
	Pitch         float64
	FieldOfView   float64
}

// ToStruct converts the change into its protobuf wire form.
func (c Change) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"sequence":       float64(c.Sequence),
		"viewpoint_id":   float64(c.ViewpointID),
		"viewpoint_name": c.ViewpointName,
		"previous_id":    float64(c.PreviousID),
		"reason":         string(c.Reason),
		"at":             c.At.UTC().Format(time.RFC3339Nano),
		"position":       []any{c.Position.X, c.Position.Y, c.Position.Z},
		"yaw":            c.Yaw,
		"pitch":          c.Pitch,
		"field_of_view":  c.FieldOfView,
	})
}

// MarshalProto encodes the change with the binary protobuf wire format.
func (c Change) MarshalProto() ([]byte, error) {
	msg, err := c.ToStruct()
	if err != nil {
		return nil, fmt.Errorf("encode change: %w", err)
	}
	return proto.Marshal(msg)
}

// MarshalJSON encodes the change through protojson so websocket clients and
// capture logs see the same field names as the protobuf form.
func (c Change) MarshalJSON() ([]byte, error) {
	msg, err := c.ToStruct()
	if err != nil {
		return nil, fmt.Errorf("encode change: %w", err)
	}
	return protojson.Marshal(msg)
}

// UnmarshalProto decodes a change produced by MarshalProto.
func UnmarshalProto(data []byte) (Change, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	return fromStruct(&msg)
}

// ParseJSON decodes a change produced by MarshalJSON.
func ParseJSON(data []byte) (Change, error) {
	var msg structpb.Struct
	if err := protojson.Unmarshal(data, &msg); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	return fromStruct(&msg)
}

func fromStruct(msg *structpb.Struct) (Change, error) {
	if msg == nil {
		return Change{}, errors.New("decode change: empty message")
	}
	fields := msg.GetFields()
	number := func(key string) float64 { return fields[key].GetNumberValue() }
	change := Change{
		Sequence:      uint64(number("sequence")),
		ViewpointID:   int(number("viewpoint_id")),
		ViewpointName: fields["viewpoint_name"].GetStringValue(),
		PreviousID:    int(number("previous_id")),
		Reason:        Reason(fields["reason"].GetStringValue()),
		Yaw:           number("yaw"),
		Pitch:         number("pitch"),
		FieldOfView:   number("field_of_view"),
	}
	if raw := fields["at"].GetStringValue(); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Change{}, fmt.Errorf("decode change timestamp: %w", err)
		}
		change.At = at
	}
	if values := fields["position"].GetListValue().GetValues(); len(values) == 3 {
		change.Position = r3.Vector{X: values[0].GetNumberValue(), Y: values[1].GetNumberValue(), Z: values[2].GetNumberValue()}
	}
	return change, nil
}
