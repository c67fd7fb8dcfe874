package normalize

import (
	"math"
	"strconv"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
)

// Value is a resolved attribute value. It is one of StringValue, IntValue,
// DoubleValue, BoolValue or Map.
type Value interface {
	isValue()
}

type (
	StringValue string
	IntValue    int64
	DoubleValue float64
	BoolValue   bool
	// Map is a flat attribute map. Nested key/value lists resolve to a Map.
	Map map[string]Value
)

func (StringValue) isValue() {}
func (IntValue) isValue()    {}
func (DoubleValue) isValue() {}
func (BoolValue) isValue()   {}
func (Map) isValue()         {}

// ResolveValue maps an OTLP AnyValue onto Value. The second return is false
// for values that are omitted from normalized records: unset values, empty
// strings, non-finite doubles, arrays and raw bytes.
func ResolveValue(v *commonpb.AnyValue) (Value, bool) {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		if val.StringValue == "" {
			return nil, false
		}
		return StringValue(val.StringValue), true
	case *commonpb.AnyValue_IntValue:
		return IntValue(val.IntValue), true
	case *commonpb.AnyValue_DoubleValue:
		if math.IsNaN(val.DoubleValue) || math.IsInf(val.DoubleValue, 0) {
			return nil, false
		}
		return DoubleValue(val.DoubleValue), true
	case *commonpb.AnyValue_BoolValue:
		return BoolValue(val.BoolValue), true
	case *commonpb.AnyValue_KvlistValue:
		return ResolveAttributes(val.KvlistValue.GetValues()), true
	default:
		return nil, false
	}
}

// ResolveAttributes flattens a key/value list into a Map. Later duplicates of
// a key win. Keys without a resolvable value are left out.
func ResolveAttributes(kvs []*commonpb.KeyValue) Map {
	m := make(Map, len(kvs))
	resolveInto(m, kvs)
	return m
}

func resolveInto(m Map, kvs []*commonpb.KeyValue) {
	for _, kv := range kvs {
		if kv.GetKey() == "" {
			continue
		}
		if v, ok := ResolveValue(kv.GetValue()); ok {
			m[kv.GetKey()] = v
		}
	}
}

// Float returns the numeric value of v. Strings are parsed, so string encoded
// numbers are accepted.
func Float(v Value) (float64, bool) {
	switch val := v.(type) {
	case IntValue:
		return float64(val), true
	case DoubleValue:
		return float64(val), true
	case StringValue:
		f, err := strconv.ParseFloat(string(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
