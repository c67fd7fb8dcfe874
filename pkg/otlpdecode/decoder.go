// Package otlpdecode turns decompressed Kafka payloads into OTLP record trees.
//
// The binary form is decoded straight into the generated OTLP protobuf types.
// The JSON form goes through pdata, which understands the OTLP/JSON
// conventions (hex encoded IDs, string encoded 64-bit integers), and is then
// transcoded into the same protobuf types so that the normalizer only has to
// deal with one representation.
package otlpdecode

import (
	"fmt"

	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/ptrace"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

// Kind selects the record type carried by a topic.
type Kind int

const (
	KindTraces Kind = iota
	KindLogs
)

func (k Kind) String() string {
	switch k {
	case KindTraces:
		return "traces"
	case KindLogs:
		return "logs"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Encoding is the serialization used by the producer.
type Encoding string

const (
	EncodingProto Encoding = "otlp_proto"
	EncodingJSON  Encoding = "otlp_json"
)

// Validate returns an error for encodings the decoder does not support.
func (e Encoding) Validate() error {
	switch e {
	case EncodingProto, EncodingJSON:
		return nil
	default:
		return fmt.Errorf("unsupported encoding %q, expected %q or %q", string(e), EncodingProto, EncodingJSON)
	}
}

// Decoder decodes OTLP trace and log batches. It holds no state and is safe
// for concurrent use.
type Decoder struct {
	encoding Encoding

	unmarshal proto.UnmarshalOptions
}

func NewDecoder(enc Encoding) (*Decoder, error) {
	if err := enc.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{
		encoding: enc,
		// unknown fields come from newer schema revisions and are not needed
		unmarshal: proto.UnmarshalOptions{DiscardUnknown: true},
	}, nil
}

func (d *Decoder) Encoding() Encoding {
	return d.encoding
}

// DecodeTraces decodes a trace batch.
func (d *Decoder) DecodeTraces(b []byte) (*tracepb.TracesData, error) {
	if d.encoding == EncodingJSON {
		td, err := (&ptrace.JSONUnmarshaler{}).UnmarshalTraces(b)
		if err != nil {
			return nil, d.wrap(KindTraces, err)
		}
		b, err = (&ptrace.ProtoMarshaler{}).MarshalTraces(td)
		if err != nil {
			return nil, d.wrap(KindTraces, err)
		}
	}

	out := &tracepb.TracesData{}
	if err := d.unmarshal.Unmarshal(b, out); err != nil {
		return nil, d.wrap(KindTraces, err)
	}
	return out, nil
}

// DecodeLogs decodes a log batch.
func (d *Decoder) DecodeLogs(b []byte) (*logspb.LogsData, error) {
	if d.encoding == EncodingJSON {
		ld, err := (&plog.JSONUnmarshaler{}).UnmarshalLogs(b)
		if err != nil {
			return nil, d.wrap(KindLogs, err)
		}
		b, err = (&plog.ProtoMarshaler{}).MarshalLogs(ld)
		if err != nil {
			return nil, d.wrap(KindLogs, err)
		}
	}

	out := &logspb.LogsData{}
	if err := d.unmarshal.Unmarshal(b, out); err != nil {
		return nil, d.wrap(KindLogs, err)
	}
	return out, nil
}

func (d *Decoder) wrap(k Kind, err error) error {
	return fmt.Errorf("decoding %s as %s: %w", k, d.encoding, err)
}
