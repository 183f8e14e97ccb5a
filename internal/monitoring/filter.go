package monitoring

import (
	"bytes"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/deadband"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

var (
	// DataChangeFilterEncodingID is DataChangeFilter_Encoding_DefaultBinary.
	DataChangeFilterEncodingID = ua.NewNodeIDNumeric(0, 724)
	// EventFilterEncodingID is EventFilter_Encoding_DefaultBinary.
	EventFilterEncodingID = ua.NewNodeIDNumeric(0, 727)
	// AggregateFilterEncodingID is AggregateFilter_Encoding_DefaultBinary.
	AggregateFilterEncodingID = ua.NewNodeIDNumeric(0, 730)
)

// EncodedFilter is a monitoring filter as carried in a create request:
// the binary encoding id of the filter type and its encoded body.
type EncodedFilter struct {
	TypeID ua.NodeID
	Body   []byte
}

// EncodeDataChangeFilter encodes f with the OPC UA binary encoding.
func EncodeDataChangeFilter(f ua.DataChangeFilter) (EncodedFilter, error) {
	var buf bytes.Buffer
	if err := ua.NewBinaryEncoder(&buf, ua.NewEncodingContext()).Encode(f); err != nil {
		return EncodedFilter{}, errors.Wrap(err, "encode data change filter")
	}
	return EncodedFilter{TypeID: DataChangeFilterEncodingID, Body: buf.Bytes()}, nil
}

// FilterKind selects the concrete filter held by a Filter.
type FilterKind int

const (
	FilterKindDataChange FilterKind = iota + 1
)

// Filter is the decoded filter of a monitored item.
type Filter struct {
	Kind       FilterKind
	DataChange ua.DataChangeFilter
}

func decodeFilter(enc EncodedFilter) (Filter, error) {
	id, ok := enc.TypeID.(ua.NodeIDNumeric)
	if !ok || id != DataChangeFilterEncodingID {
		return Filter{}, errors.Wrapf(FilterNotAllowed, "filter encoding %v", enc.TypeID)
	}
	var dcf ua.DataChangeFilter
	if err := ua.NewBinaryDecoder(bytes.NewReader(enc.Body), ua.NewEncodingContext()).Decode(&dcf); err != nil {
		return Filter{}, &DecodeError{Err: err}
	}
	if err := deadband.Validate(dcf); err != nil {
		return Filter{}, errors.Wrap(FilterNotAllowed, err.Error())
	}
	return Filter{Kind: FilterKindDataChange, DataChange: dcf}, nil
}

// equivalent reports whether current and previous need no notification.
func (f Filter) equivalent(current, previous ua.DataValue, ctx deadband.Context) (bool, error) {
	switch f.Kind {
	case FilterKindDataChange:
		return deadband.Compare(f.DataChange, current, previous, ctx)
	default:
		return false, errors.Errorf("unknown filter kind %d", f.Kind)
	}
}
