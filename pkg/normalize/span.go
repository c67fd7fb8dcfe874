// Package normalize flattens OTLP resource/scope/record trees into
// self-contained records for the UI.
package normalize

import (
	"iter"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/grafana/spyglass/pkg/util"
)

// Reserved attribute keys carrying resource and scope metadata.
const (
	ResourceAttributesKey = "resourceAttributes"
	ScopeNameKey          = "scopeName"
	ScopeVersionKey       = "scopeVersion"
)

const nanosPerMilli = 1_000_000

type SpanKind int32

const (
	SpanKindUnspecified SpanKind = SpanKind(tracepb.Span_SPAN_KIND_UNSPECIFIED)
	SpanKindInternal    SpanKind = SpanKind(tracepb.Span_SPAN_KIND_INTERNAL)
	SpanKindServer      SpanKind = SpanKind(tracepb.Span_SPAN_KIND_SERVER)
	SpanKindClient      SpanKind = SpanKind(tracepb.Span_SPAN_KIND_CLIENT)
	SpanKindProducer    SpanKind = SpanKind(tracepb.Span_SPAN_KIND_PRODUCER)
	SpanKindConsumer    SpanKind = SpanKind(tracepb.Span_SPAN_KIND_CONSUMER)
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindInternal:
		return "INTERNAL"
	case SpanKindServer:
		return "SERVER"
	case SpanKindClient:
		return "CLIENT"
	case SpanKindProducer:
		return "PRODUCER"
	case SpanKindConsumer:
		return "CONSUMER"
	default:
		return "UNSPECIFIED"
	}
}

func (k SpanKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Span is a flattened span. Times are unix epoch milliseconds.
type Span struct {
	TraceID       string   `json:"traceId"`
	SpanID        string   `json:"spanId"`
	ParentSpanID  string   `json:"parentSpanId"`
	Name          string   `json:"name"`
	Kind          SpanKind `json:"kind"`
	StartTime     int64    `json:"startTime"`
	EndTime       int64    `json:"endTime"`
	Duration      int64    `json:"duration"`
	StatusCode    string   `json:"statusCode,omitempty"`
	StatusMessage string   `json:"statusMessage,omitempty"`
	Attributes    Map      `json:"attributes"`
}

// Spans returns the spans of td as flat records, in batch order. The resource
// attribute map is shared between spans of the same resource and must not be
// modified.
func Spans(td *tracepb.TracesData) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		for _, rs := range td.GetResourceSpans() {
			resourceAttrs := ResolveAttributes(rs.GetResource().GetAttributes())

			for _, ss := range rs.GetScopeSpans() {
				scope := ss.GetScope()

				for _, s := range ss.GetSpans() {
					if !yield(newSpan(s, resourceAttrs, scope)) {
						return
					}
				}
			}
		}
	}
}

func newSpan(s *tracepb.Span, resourceAttrs Map, scope *commonpb.InstrumentationScope) Span {
	start := NanosToMillis(s.GetStartTimeUnixNano())
	end := NanosToMillis(s.GetEndTimeUnixNano())

	span := Span{
		TraceID:      util.IDToHex(s.GetTraceId()),
		SpanID:       util.IDToHex(s.GetSpanId()),
		ParentSpanID: util.IDToHex(s.GetParentSpanId()),
		Name:         s.GetName(),
		Kind:         SpanKind(s.GetKind()),
		StartTime:    start,
		EndTime:      end,
		Duration:     ClampedDuration(start, end),
		Attributes:   mergeAttributes(s.GetAttributes(), resourceAttrs, scope),
	}

	if st := s.GetStatus(); st != nil && st.GetCode() != tracepb.Status_STATUS_CODE_UNSET {
		span.StatusCode = statusCode(st.GetCode())
		span.StatusMessage = st.GetMessage()
	}

	return span
}

// NanosToMillis truncates a unix nanosecond timestamp to milliseconds.
func NanosToMillis(nanos uint64) int64 {
	return int64(nanos / nanosPerMilli)
}

// ClampedDuration is end - start, or 0 when end precedes start.
func ClampedDuration(startMillis, endMillis int64) int64 {
	if endMillis < startMillis {
		return 0
	}
	return endMillis - startMillis
}

// mergeAttributes builds the attribute map of a record. Record level
// attributes take precedence over the scope and resource entries.
func mergeAttributes(leaf []*commonpb.KeyValue, resourceAttrs Map, scope *commonpb.InstrumentationScope) Map {
	m := make(Map, len(leaf)+3)
	m[ResourceAttributesKey] = resourceAttrs
	if name := scope.GetName(); name != "" {
		m[ScopeNameKey] = StringValue(name)
	}
	if version := scope.GetVersion(); version != "" {
		m[ScopeVersionKey] = StringValue(version)
	}

	resolveInto(m, leaf)
	return m
}

func statusCode(c tracepb.Status_StatusCode) string {
	switch c {
	case tracepb.Status_STATUS_CODE_OK:
		return "OK"
	case tracepb.Status_STATUS_CODE_ERROR:
		return "ERROR"
	default:
		return "UNSET"
	}
}
