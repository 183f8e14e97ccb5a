// Package deadband decides whether two successive data values are
// equivalent under a data change filter.
package deadband

import (
	"bytes"
	"math"
	"reflect"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

// statusMask drops the info bits of a status code before comparison.
const statusMask = 0xFFFFF000

var (
	// ErrUnsupported is returned for a trigger or deadband type this package does not know.
	ErrUnsupported = errors.New("deadband: unsupported filter")
	// ErrIncomparable is returned when the two values cannot be compared numerically.
	ErrIncomparable = errors.New("deadband: values are not comparable")
	// ErrRangeUnavailable is returned for a percent deadband without a usable EU range.
	ErrRangeUnavailable = errors.New("deadband: engineering units range unavailable")
)

// Range is the engineering units range of an analog item.
type Range struct {
	Low  float64
	High float64
}

// Span returns High - Low.
func (r Range) Span() float64 {
	return r.High - r.Low
}

// Context carries what a comparison may need beyond the two values.
type Context struct {
	// EURange is required by percent deadbands.
	EURange *Range
}

// Validate checks a filter before it is attached to a monitored item.
func Validate(filter ua.DataChangeFilter) error {
	switch filter.Trigger {
	case ua.DataChangeTriggerStatus, ua.DataChangeTriggerStatusValue, ua.DataChangeTriggerStatusValueTimestamp:
	default:
		return errors.Wrapf(ErrUnsupported, "trigger %d", filter.Trigger)
	}
	switch ua.DeadbandType(filter.DeadbandType) {
	case ua.DeadbandTypeNone:
	case ua.DeadbandTypeAbsolute, ua.DeadbandTypePercent:
		if math.IsNaN(filter.DeadbandValue) || math.IsInf(filter.DeadbandValue, 0) || filter.DeadbandValue < 0 {
			return errors.Errorf("deadband: invalid deadband value %v", filter.DeadbandValue)
		}
		if ua.DeadbandType(filter.DeadbandType) == ua.DeadbandTypePercent && filter.DeadbandValue > 100 {
			return errors.Errorf("deadband: percent deadband %v exceeds 100", filter.DeadbandValue)
		}
	default:
		return errors.Wrapf(ErrUnsupported, "deadband type %d", filter.DeadbandType)
	}
	return nil
}

// Compare reports whether current and previous are equivalent under filter,
// i.e. whether no notification is needed.
func Compare(filter ua.DataChangeFilter, current, previous ua.DataValue, ctx Context) (bool, error) {
	if current.StatusCode&statusMask != previous.StatusCode&statusMask {
		return false, nil
	}
	switch filter.Trigger {
	case ua.DataChangeTriggerStatus:
		return true, nil
	case ua.DataChangeTriggerStatusValue:
	case ua.DataChangeTriggerStatusValueTimestamp:
		if !current.SourceTimestamp.Equal(previous.SourceTimestamp) || current.SourcePicoseconds != previous.SourcePicoseconds {
			return false, nil
		}
	default:
		return false, errors.Wrapf(ErrUnsupported, "trigger %d", filter.Trigger)
	}
	return CompareValues(filter, current.Value, previous.Value, ctx)
}

// CompareValues applies the deadband of filter to two variants.
func CompareValues(filter ua.DataChangeFilter, current, previous ua.Variant, ctx Context) (bool, error) {
	switch ua.DeadbandType(filter.DeadbandType) {
	case ua.DeadbandTypeNone:
		return reflect.DeepEqual(current, previous), nil
	case ua.DeadbandTypeAbsolute:
		return withinDeadband(current, previous, filter.DeadbandValue)
	case ua.DeadbandTypePercent:
		if ctx.EURange == nil {
			return false, ErrRangeUnavailable
		}
		span := ctx.EURange.Span()
		if math.IsNaN(span) || math.IsInf(span, 0) || span <= 0 {
			return false, errors.Wrapf(ErrRangeUnavailable, "span %v", span)
		}
		return withinDeadband(current, previous, filter.DeadbandValue/100*span)
	default:
		return false, errors.Wrapf(ErrUnsupported, "deadband type %d", filter.DeadbandType)
	}
}

func withinDeadband(current, previous any, deadband float64) (bool, error) {
	if current == nil || previous == nil {
		return current == previous, nil
	}
	return equalWithin(reflect.ValueOf(current), reflect.ValueOf(previous), deadband)
}

func equalWithin(vc, vp reflect.Value, deadband float64) (bool, error) {
	if vc.Kind() == reflect.Interface {
		vc = vc.Elem()
	}
	if vp.Kind() == reflect.Interface {
		vp = vp.Elem()
	}
	if !vc.IsValid() || !vp.IsValid() {
		return vc.IsValid() == vp.IsValid(), nil
	}
	fc, cNumeric := toFloat(vc)
	fp, pNumeric := toFloat(vp)
	switch {
	case cNumeric && pNumeric:
		return math.Abs(fc-fp) <= deadband, nil
	case cNumeric != pNumeric:
		return false, errors.Wrapf(ErrIncomparable, "%s and %s", vc.Type(), vp.Type())
	}

	if vc.Type() != vp.Type() {
		return false, errors.Wrapf(ErrIncomparable, "%s and %s", vc.Type(), vp.Type())
	}
	switch vc.Kind() {
	case reflect.Slice:
		if vc.IsNil() != vp.IsNil() || vc.Len() != vp.Len() {
			return false, nil
		}
		// special case for []byte, which is common.
		if vc.Type().Elem().Kind() == reflect.Uint8 {
			return bytes.Equal(vc.Bytes(), vp.Bytes()), nil
		}
		fallthrough
	case reflect.Array:
		if vc.Len() != vp.Len() {
			return false, nil
		}
		for i := 0; i < vc.Len(); i++ {
			eq, err := equalWithin(vc.Index(i), vp.Index(i), deadband)
			if err != nil || !eq {
				return eq, err
			}
		}
		return true, nil
	}
	return reflect.DeepEqual(vc.Interface(), vp.Interface()), nil
}

func toFloat(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}
