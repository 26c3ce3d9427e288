package tracing

import (
	"context"
	"testing"
)

func TestChildSpansJoinParent(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "run", "trace-1")
	_, child := StartChildSpan(ctx, "fetch-makes")
	child.SetAttr("makes", 3)
	child.End()
	root.End()

	if len(root.Children) != 1 || root.Children[0] != child {
		t.Fatalf("children = %v", root.Children)
	}
	if child.TraceID != "trace-1" {
		t.Errorf("child trace id = %q", child.TraceID)
	}
	if SpanFromContext(ctx) != root {
		t.Error("root span not stored in context")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	_, s := StartSpan(context.Background(), "run", "t")
	s.End()
	first := s.Duration
	s.End()
	if s.Duration != first {
		t.Errorf("second End changed duration %v -> %v", first, s.Duration)
	}
}

func TestDetachedChild(t *testing.T) {
	_, child := StartChildSpan(context.Background(), "orphan")
	if child.TraceID != "" {
		t.Errorf("detached child trace id = %q", child.TraceID)
	}
}
