package normalize

import (
	"iter"
	"strconv"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/grafana/spyglass/pkg/util"
)

// Log is a flattened log record. Times are unix epoch milliseconds. Body is
// either a StringValue or a Map.
type Log struct {
	Time           int64  `json:"timeMs"`
	ObservedTime   int64  `json:"observedTimeMs"`
	SeverityNumber int32  `json:"severityNumber"`
	SeverityText   string `json:"severityText"`
	Body           Value  `json:"body"`
	TraceID        string `json:"traceId"`
	SpanID         string `json:"spanId"`
	Attributes     Map    `json:"attributes"`
}

// Logs returns the log records of ld as flat records, in batch order.
func Logs(ld *logspb.LogsData) iter.Seq[Log] {
	return func(yield func(Log) bool) {
		for _, rl := range ld.GetResourceLogs() {
			resourceAttrs := ResolveAttributes(rl.GetResource().GetAttributes())

			for _, sl := range rl.GetScopeLogs() {
				scope := sl.GetScope()

				for _, lr := range sl.GetLogRecords() {
					if !yield(newLog(lr, resourceAttrs, scope)) {
						return
					}
				}
			}
		}
	}
}

func newLog(lr *logspb.LogRecord, resourceAttrs Map, scope *commonpb.InstrumentationScope) Log {
	return Log{
		Time:           NanosToMillis(lr.GetTimeUnixNano()),
		ObservedTime:   NanosToMillis(lr.GetObservedTimeUnixNano()),
		SeverityNumber: int32(lr.GetSeverityNumber()),
		SeverityText:   lr.GetSeverityText(),
		Body:           Body(lr.GetBody()),
		TraceID:        util.IDToHex(lr.GetTraceId()),
		SpanID:         util.IDToHex(lr.GetSpanId()),
		Attributes:     mergeAttributes(lr.GetAttributes(), resourceAttrs, scope),
	}
}

// Body renders a log body. Strings stay strings and key/value lists become a
// Map. Scalars are rendered as text and anything else as its OTLP JSON form.
func Body(body *commonpb.AnyValue) Value {
	switch v := body.GetValue().(type) {
	case nil:
		return StringValue("")
	case *commonpb.AnyValue_StringValue:
		return StringValue(v.StringValue)
	case *commonpb.AnyValue_KvlistValue:
		return ResolveAttributes(v.KvlistValue.GetValues())
	case *commonpb.AnyValue_IntValue:
		return StringValue(strconv.FormatInt(v.IntValue, 10))
	case *commonpb.AnyValue_DoubleValue:
		return StringValue(strconv.FormatFloat(v.DoubleValue, 'g', -1, 64))
	case *commonpb.AnyValue_BoolValue:
		return StringValue(strconv.FormatBool(v.BoolValue))
	default:
		b, err := protojson.Marshal(body)
		if err != nil {
			return StringValue("")
		}
		return StringValue(b)
	}
}
