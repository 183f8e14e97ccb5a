package services

import (
	"encoding/json"
	"strings"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/model"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrEncodingFailed  = errors.New("failed to encode notification payload")
	ErrUnknownEncoding = errors.New("unknown payload encoding")
)

// PayloadEncoder turns a notification payload into bytes for a publisher.
type PayloadEncoder interface {
	Encode(payload model.NotificationPayload) ([]byte, error)
	Name() string
}

// NewPayloadEncoder returns the encoder configured by name: json, protobuf or cbor.
func NewPayloadEncoder(name string) (PayloadEncoder, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSONEncoder{}, nil
	case "protobuf", "proto":
		return ProtobufEncoder{}, nil
	case "cbor":
		return NewCBOREncoder()
	}
	return nil, errors.Wrapf(ErrUnknownEncoding, "%q", name)
}

type JSONEncoder struct{}

func (JSONEncoder) Name() string { return "json" }

func (JSONEncoder) Encode(payload model.NotificationPayload) ([]byte, error) {
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(ErrEncodingFailed, err.Error())
	}
	return out, nil
}

// ProtobufEncoder encodes the payload as a google.protobuf.Struct.
type ProtobufEncoder struct{}

func (ProtobufEncoder) Name() string { return "protobuf" }

func (ProtobufEncoder) Encode(payload model.NotificationPayload) ([]byte, error) {
	msg, err := structpb.NewStruct(payload.ToMap())
	if err != nil {
		return nil, errors.Wrap(ErrEncodingFailed, err.Error())
	}
	out, err := proto.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(ErrEncodingFailed, err.Error())
	}
	return out, nil
}

type CBOREncoder struct {
	mode cbor.EncMode
}

// NewCBOREncoder returns an encoder with canonical key ordering and
// RFC 3339 timestamps.
func NewCBOREncoder() (*CBOREncoder, error) {
	opts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	mode, err := opts.EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "cbor encoder mode")
	}
	return &CBOREncoder{mode: mode}, nil
}

func (*CBOREncoder) Name() string { return "cbor" }

func (e *CBOREncoder) Encode(payload model.NotificationPayload) ([]byte, error) {
	out, err := e.mode.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(ErrEncodingFailed, err.Error())
	}
	return out, nil
}
