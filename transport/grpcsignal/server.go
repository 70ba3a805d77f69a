package grpcsignal

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fiberloom/engine/exec"
)

// GraphServer implements SignalServer by propagating decoded signals into a
// local exec.Graph, the far side of a cross-process fork/spawn boundary.
type GraphServer struct {
	graph *exec.Graph
}

// NewGraphServer returns a SignalServer backed by graph.
func NewGraphServer(graph *exec.Graph) *GraphServer {
	return &GraphServer{graph: graph}
}

// Propagate decodes in and calls exec.Graph.Propagate against the target
// PID, relaying the same fork-only propagation rule the in-process path
// uses.
func (s *GraphServer) Propagate(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sig, err := decodeSignal(in)
	if err != nil {
		return nil, err
	}
	s.graph.Propagate(sig.PID, sig)
	return structpb.NewStruct(map[string]any{"ok": true})
}
