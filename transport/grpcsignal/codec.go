// Package grpcsignal propagates exec.Signal values across process
// boundaries over gRPC. It deliberately skips protoc codegen: the wire
// message is a single google.protobuf.Struct (structpb.Struct already
// implements proto.Message, so grpc's default proto codec can marshal it
// directly), and the service is registered by hand via a grpc.ServiceDesc
// rather than a generated one. This mirrors how the registry exposes its
// gRPC surface (grpc.NewServer plus a registered service) without carrying
// that package's Goa-generated server/client glue, which has no home here
// since this transport only ever exchanges one small, fixed message shape.
package grpcsignal

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fiberloom/engine/exec"
)

// encodeSignal flattens sig into a structpb.Struct wire payload.
func encodeSignal(sig exec.Signal) (*structpb.Struct, error) {
	fields := map[string]any{
		"type":       string(sig.Type),
		"source":     sig.Source,
		"pid":        sig.PID,
		"parent_pid": sig.ParentPID,
		"reason":     sig.Reason,
		"timestamp":  sig.Timestamp.Format(time.RFC3339Nano),
	}
	if len(sig.Metadata) > 0 {
		fields["metadata"] = sig.Metadata
	}
	return structpb.NewStruct(fields)
}

// decodeSignal reconstructs an exec.Signal from a wire payload produced by
// encodeSignal.
func decodeSignal(s *structpb.Struct) (exec.Signal, error) {
	if s == nil {
		return exec.Signal{}, fmt.Errorf("grpcsignal: nil payload")
	}
	m := s.AsMap()

	sig := exec.Signal{
		Type:      exec.SignalType(stringField(m, "type")),
		Source:    stringField(m, "source"),
		PID:       stringField(m, "pid"),
		ParentPID: stringField(m, "parent_pid"),
		Reason:    stringField(m, "reason"),
	}
	if ts := stringField(m, "timestamp"); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return exec.Signal{}, fmt.Errorf("grpcsignal: parse timestamp: %w", err)
		}
		sig.Timestamp = parsed
	}
	if raw, ok := m["metadata"].(map[string]any); ok {
		sig.Metadata = raw
	}
	return sig, nil
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key].(string)
	if !ok {
		return ""
	}
	return v
}
