package test

import (
	"math/rand"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

func StringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}}}
}

func IntAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}}}
}

func DoubleAttr(key string, value float64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: value}}}
}

func BoolAttr(key string, value bool) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: value}}}
}

func MakeSpan(traceID []byte, name string, startNanos, endNanos uint64, attrs ...*commonpb.KeyValue) *tracepb.Span {
	s := &tracepb.Span{
		Name:              name,
		TraceId:           traceID,
		SpanId:            make([]byte, 8),
		Kind:              tracepb.Span_SPAN_KIND_SERVER,
		StartTimeUnixNano: startNanos,
		EndTimeUnixNano:   endNanos,
		Attributes:        attrs,
	}
	rand.Read(s.SpanId)
	return s
}

// MakeTracesData wraps spans in a single resource and scope.
func MakeTracesData(resourceAttrs []*commonpb.KeyValue, spans ...*tracepb.Span) *tracepb.TracesData {
	return &tracepb.TracesData{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource:   &resourcepb.Resource{Attributes: resourceAttrs},
				ScopeSpans: []*tracepb.ScopeSpans{{Spans: spans}},
			},
		},
	}
}

// MakeBatch returns a trace batch with the given number of spans spread over a
// few scopes. Span durations are between 1 and 1000ms.
func MakeBatch(spans int, traceID []byte) *tracepb.TracesData {
	traceID = ValidTraceID(traceID)

	rs := &tracepb.ResourceSpans{
		Resource: &resourcepb.Resource{Attributes: []*commonpb.KeyValue{StringAttr("service_name", "test")}},
	}
	var ss *tracepb.ScopeSpans

	start := uint64(1_700_000_000_000_000_000)
	for i := 0; i < spans; i++ {
		// occasionally make a new scope
		if ss == nil || rand.Int()%3 == 0 {
			ss = &tracepb.ScopeSpans{
				Scope: &commonpb.InstrumentationScope{
					Name:    "super library",
					Version: "0.0.1",
				},
			}
			rs.ScopeSpans = append(rs.ScopeSpans, ss)
		}

		dur := uint64(rand.Intn(1000)+1) * 1_000_000
		ss.Spans = append(ss.Spans, MakeSpan(traceID, "test", start, start+dur))
	}

	return &tracepb.TracesData{ResourceSpans: []*tracepb.ResourceSpans{rs}}
}

func MakeLogRecord(traceID []byte, severity logspb.SeverityNumber, body string, timeNanos uint64, attrs ...*commonpb.KeyValue) *logspb.LogRecord {
	return &logspb.LogRecord{
		TimeUnixNano:         timeNanos,
		ObservedTimeUnixNano: timeNanos,
		SeverityNumber:       severity,
		SeverityText:         severityText(severity),
		Body:                 &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: body}},
		TraceId:              traceID,
		Attributes:           attrs,
	}
}

// MakeLogsData wraps log records in a single resource and scope.
func MakeLogsData(resourceAttrs []*commonpb.KeyValue, records ...*logspb.LogRecord) *logspb.LogsData {
	return &logspb.LogsData{
		ResourceLogs: []*logspb.ResourceLogs{
			{
				Resource:  &resourcepb.Resource{Attributes: resourceAttrs},
				ScopeLogs: []*logspb.ScopeLogs{{LogRecords: records}},
			},
		},
	}
}

func ValidTraceID(traceID []byte) []byte {
	if len(traceID) == 0 {
		traceID = make([]byte, 16)
		rand.Read(traceID)
	}

	for len(traceID) < 16 {
		traceID = append(traceID, 0)
	}

	return traceID
}

func severityText(s logspb.SeverityNumber) string {
	switch {
	case s == logspb.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED:
		return ""
	case s <= logspb.SeverityNumber_SEVERITY_NUMBER_TRACE4:
		return "TRACE"
	case s <= logspb.SeverityNumber_SEVERITY_NUMBER_DEBUG4:
		return "DEBUG"
	case s <= logspb.SeverityNumber_SEVERITY_NUMBER_INFO4:
		return "INFO"
	case s <= logspb.SeverityNumber_SEVERITY_NUMBER_WARN4:
		return "WARN"
	case s <= logspb.SeverityNumber_SEVERITY_NUMBER_ERROR4:
		return "ERROR"
	default:
		return "FATAL"
	}
}
