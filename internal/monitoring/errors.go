package monitoring

import (
	"fmt"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

// Error is a failure kind raised while creating or sampling a monitored item.
type Error int

const (
	FilterNotAllowed Error = iota + 1
	NodeNotFound
	AttributeNotFound
	InvalidAttributeID
	FilterEvaluationFailed
)

func (e Error) Error() string {
	switch e {
	case FilterNotAllowed:
		return "filter not allowed"
	case NodeNotFound:
		return "node not found"
	case AttributeNotFound:
		return "attribute not found"
	case InvalidAttributeID:
		return "invalid attribute id"
	case FilterEvaluationFailed:
		return "filter evaluation failed"
	default:
		return fmt.Sprintf("monitoring error %d", int(e))
	}
}

// StatusCode returns the protocol status reported for the kind.
func (e Error) StatusCode() ua.StatusCode {
	switch e {
	case FilterNotAllowed:
		return ua.BadFilterNotAllowed
	case NodeNotFound:
		return ua.BadNodeIDUnknown
	case AttributeNotFound, InvalidAttributeID:
		return ua.BadAttributeIDInvalid
	default:
		return ua.BadInternalError
	}
}

// DecodeError reports a filter payload the binary decoder could not read.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "undecodable filter payload: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusCode resolves err to the status returned in a per-item result.
func StatusCode(err error) ua.StatusCode {
	if err == nil {
		return ua.Good
	}
	var kind Error
	if errors.As(err, &kind) {
		return kind.StatusCode()
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return ua.BadDecodingError
	}
	var sc ua.StatusCode
	if errors.As(err, &sc) {
		return sc
	}
	return ua.BadInternalError
}
