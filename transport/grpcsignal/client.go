package grpcsignal

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fiberloom/engine/exec"
)

// SignalClient sends signals to a remote execution graph over gRPC. Use it
// when an execution's fork/spawn descendants run in a different process and
// abort/interrupt/shutdown signals must cross that boundary (§4.6 signal
// propagation is in-process only without this transport).
type SignalClient struct {
	cc grpc.ClientConnInterface
}

// NewSignalClient wraps an established connection.
func NewSignalClient(cc grpc.ClientConnInterface) SignalClient {
	return SignalClient{cc: cc}
}

// Propagate sends sig to the remote graph and blocks for acknowledgement.
func (c SignalClient) Propagate(ctx context.Context, sig exec.Signal, opts ...grpc.CallOption) error {
	in, err := encodeSignal(sig)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	return c.cc.Invoke(ctx, "/"+serviceName+"/Propagate", in, out, opts...)
}
